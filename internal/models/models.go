// Package models collects the line shapes and decay curves we fit over and
// over: resonances, optomechanically induced transparency and qubit
// time-domain traces. Every model comes with a data-driven starting point.
package models

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sourav-majumder/qtlab/internal/fit"
)

// Model pairs a fit function with its initial parameter guess.
type Model struct {
	Name  string
	Func  fit.Model
	Guess func(x, y []float64) *fit.Params
}

// Lorentzian: amp (γ/2)² / ((f-f0)² + (γ/2)²) + offset, γ = fwhm.
func Lorentzian(f float64, p fit.Values) float64 {
	hw := p["fwhm"] / 2
	return p["amp"]*hw*hw/((f-p["f0"])*(f-p["f0"])+hw*hw) + p["offset"]
}

// LorentzianParams is the parameter set for Lorentzian with fwhm > 0.
func LorentzianParams(amp, f0, fwhm, offset float64) *fit.Params {
	return fit.NewParams().
		Add("amp", amp).
		Add("f0", f0).
		Add("fwhm", fwhm).
		Add("offset", offset).
		Bound("fwhm", 0, math.Inf(1))
}

// GuessLorentzian finds a peak or dip in y and estimates its width from the
// half-maximum crossings.
func GuessLorentzian(x, y []float64) *fit.Params {
	offset := edgeMedian(y)

	peak := 0
	for i := range y {
		if math.Abs(y[i]-offset) > math.Abs(y[peak]-offset) {
			peak = i
		}
	}
	amp := y[peak] - offset
	half := offset + amp/2

	lo, hi := peak, peak
	for lo > 0 && (y[lo]-half)*amp > 0 {
		lo--
	}
	for hi < len(y)-1 && (y[hi]-half)*amp > 0 {
		hi++
	}

	fwhm := math.Abs(x[hi] - x[lo])
	if fwhm == 0 && len(x) > 1 {
		fwhm = math.Abs(x[1] - x[0])
	}

	return LorentzianParams(amp, x[peak], fwhm, offset)
}

// OMIT is the probe power transmission of a cavity with an
// optomechanically induced transparency window. x is the probe detuning
// from the cavity, all rates in the same (angular) units:
//
//	t = 1 - (κe/2) / (κ/2 - iΔ + G² / (Γm/2 - i(Δ-Ωm)))
func OMIT(x float64, p fit.Values) float64 {
	d := complex(x, 0)
	mech := complex(p["gamma_m"]/2, 0) - 1i*(d-complex(p["omega_m"], 0))
	g2 := complex(p["g"]*p["g"], 0)
	cav := complex(p["kappa"]/2, 0) - 1i*d + g2/mech
	t := 1 - complex(p["kappa_ext"]/2, 0)/cav

	return p["scale"] * math.Pow(cmplx.Abs(t), 2)
}

// OMITParams is the parameter set for OMIT. Linewidths are positive.
func OMITParams(kappa, kappaExt, gammaM, omegaM, g, scale float64) *fit.Params {
	inf := math.Inf(1)
	return fit.NewParams().
		Add("kappa", kappa).
		Add("kappa_ext", kappaExt).
		Add("gamma_m", gammaM).
		Add("omega_m", omegaM).
		Add("g", g).
		Add("scale", scale).
		Bound("kappa", 0, inf).
		Bound("kappa_ext", 0, inf).
		Bound("gamma_m", 0, inf)
}

// GuessOMIT takes the cavity dip from a Lorentzian guess and places the
// transparency window at the largest upward excursion inside it.
func GuessOMIT(x, y []float64) *fit.Params {
	l := GuessLorentzian(x, y)
	kappa := l.Value("fwhm")
	scale := l.Value("offset")
	depth := 0.5
	if scale != 0 {
		depth = math.Min(math.Max(-l.Value("amp")/scale, 0.05), 0.95)
	}

	// Window: the point inside the dip that sits furthest above the
	// Lorentzian guess.
	fitted := fit.Eval(Lorentzian, x, l)
	win := -1
	for i := range x {
		if math.Abs(x[i]-l.Value("f0")) > kappa {
			continue
		}
		if win < 0 || y[i]-fitted[i] > y[win]-fitted[win] {
			win = i
		}
	}
	omega := l.Value("f0")
	if win >= 0 {
		omega = x[win]
	}

	// Depth on resonance is 1 - |1 - κe/κ|², take the undercoupled branch.
	kappaExt := kappa * (1 - math.Sqrt(1-depth))

	return OMITParams(kappa, kappaExt, kappa/100, omega, kappa/10, scale)
}

// ExpDecay (T1): amp exp(-t/tau) + offset.
func ExpDecay(t float64, p fit.Values) float64 {
	return p["amp"]*math.Exp(-t/p["tau"]) + p["offset"]
}

// ExpDecayParams is the parameter set for ExpDecay with tau > 0.
func ExpDecayParams(amp, tau, offset float64) *fit.Params {
	return fit.NewParams().
		Add("amp", amp).
		Add("tau", tau).
		Add("offset", offset).
		Bound("tau", 0, math.Inf(1))
}

// GuessExpDecay uses the tail for the offset and the 1/e crossing for tau.
func GuessExpDecay(t, y []float64) *fit.Params {
	offset := tailMean(y)
	amp := y[0] - offset

	tau := (t[len(t)-1] - t[0]) / 3
	for i := range y {
		if math.Abs(y[i]-offset) <= math.Abs(amp)/math.E {
			if d := t[i] - t[0]; d > 0 {
				tau = d
			}
			break
		}
	}

	return ExpDecayParams(amp, tau, offset)
}

// DampedRabi: amp exp(-t/tau) cos(2π freq t + phase) + offset. It is also
// the Ramsey fringe, with freq the detuning.
func DampedRabi(t float64, p fit.Values) float64 {
	return p["amp"]*math.Exp(-t/p["tau"])*math.Cos(2*math.Pi*p["freq"]*t+p["phase"]) + p["offset"]
}

// DampedRabiParams is the parameter set for DampedRabi and Ramsey.
func DampedRabiParams(amp, freq, tau, phase, offset float64) *fit.Params {
	inf := math.Inf(1)
	return fit.NewParams().
		Add("amp", amp).
		Add("freq", freq).
		Add("tau", tau).
		Add("phase", phase).
		Add("offset", offset).
		Bound("freq", 0, inf).
		Bound("tau", 0, inf)
}

// GuessDampedRabi picks the oscillation frequency from the FFT of the
// mean-subtracted trace. The samples are assumed evenly spaced.
func GuessDampedRabi(t, y []float64) *fit.Params {
	n := len(y)
	offset := stat.Mean(y, nil)
	amp := (floats.Max(y) - floats.Min(y)) / 2
	span := t[n-1] - t[0]

	freq := 1 / span
	if n >= 4 && span > 0 {
		centered := make([]float64, n)
		for i := range y {
			centered[i] = y[i] - offset
		}
		coeffs := fourier.NewFFT(n).Coefficients(nil, centered)

		best := 1
		for k := 2; k < len(coeffs); k++ {
			if cmplx.Abs(coeffs[k]) > cmplx.Abs(coeffs[best]) {
				best = k
			}
		}
		dt := span / float64(n-1)
		freq = float64(best) / (float64(n) * dt)
	}

	// Start at a maximum or a minimum depending on the first sample.
	phase := 0.0
	if y[0] < offset {
		phase = math.Pi
	}

	return DampedRabiParams(amp, freq, span, phase, offset)
}

// Echo (T2 Hahn echo): amp exp(-(t/tau)^n) + offset. n is fixed at 1
// unless freed by the caller.
func Echo(t float64, p fit.Values) float64 {
	return p["amp"]*math.Exp(-math.Pow(t/p["tau"], p["n"])) + p["offset"]
}

// EchoParams is the parameter set for Echo.
func EchoParams(amp, tau, offset float64) *fit.Params {
	return fit.NewParams().
		Add("amp", amp).
		Add("tau", tau).
		Add("offset", offset).
		Add("n", 1).
		Bound("tau", 0, math.Inf(1)).
		Bound("n", 0.5, 4).
		Fix("n")
}

// GuessEcho reuses the exponential decay guess.
func GuessEcho(t, y []float64) *fit.Params {
	e := GuessExpDecay(t, y)
	return EchoParams(e.Value("amp"), e.Value("tau"), e.Value("offset"))
}

var registry = map[string]Model{
	"lorentzian": {"lorentzian", Lorentzian, GuessLorentzian},
	"omit":       {"omit", OMIT, GuessOMIT},
	"t1":         {"t1", ExpDecay, GuessExpDecay},
	"rabi":       {"rabi", DampedRabi, GuessDampedRabi},
	"ramsey":     {"ramsey", DampedRabi, GuessDampedRabi},
	"echo":       {"echo", Echo, GuessEcho},
}

// Lookup returns a model by name.
func Lookup(name string) (Model, bool) {
	m, ok := registry[name]
	return m, ok
}

// Names lists the registered models.
func Names() []string {
	var names []string
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func edgeMedian(y []float64) float64 {
	n := len(y) / 10
	if n < 1 {
		n = 1
	}
	edges := append(append([]float64(nil), y[:n]...), y[len(y)-n:]...)
	sort.Float64s(edges)

	return stat.Quantile(0.5, stat.Empirical, edges, nil)
}

func tailMean(y []float64) float64 {
	n := len(y) / 10
	if n < 1 {
		n = 1
	}

	return stat.Mean(y[len(y)-n:], nil)
}
