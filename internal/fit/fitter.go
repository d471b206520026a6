// Package fit is a small least-squares curve-fitting layer on top of the
// Levenberg-Marquardt solver in github.com/maorshutman/lm.
//
// Models are plain functions of x and a set of named parameters. Parameters
// can be fixed or bounded; the fitter only hands the varying ones to the
// solver and estimates their standard errors from the jacobian at the
// solution.
package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var (
	ErrLength    = errors.New("fit: mismatched or insufficient data")
	ErrNoFree    = errors.New("fit: no varying parameters")
	ErrBounds    = errors.New("fit: parameter outside its bounds")
	ErrSingular  = errors.New("fit: singular normal equations")
	ErrNonFinite = errors.New("fit: data contains NaN or Inf")
)

// Model evaluates a curve at x.
type Model func(x float64, p Values) float64

// Settings are passed through to the LM solver.
type Settings struct {
	Iterations   int
	ObjectiveTol float64
	Tau          float64
	Eps1         float64
	Eps2         float64
}

// DefaultSettings match what we have always used for Lorentzian fits.
func DefaultSettings() Settings {
	return Settings{
		Iterations:   1000,
		ObjectiveTol: 1e-16,
		Tau:          1e-6,
		Eps1:         1e-8,
		Eps2:         1e-8,
	}
}

// Fitter fits Model to data starting from Params.
type Fitter struct {
	Model    Model
	Params   *Params
	Settings Settings
}

// New returns a Fitter with default settings.
func New(model Model, params *Params) *Fitter {
	return &Fitter{
		Model:    model,
		Params:   params,
		Settings: DefaultSettings(),
	}
}

// Fit runs the optimizer. sigma may be nil; otherwise residuals are weighted
// by 1/sigma wherever sigma is non-zero. f.Params is not modified.
func (f *Fitter) Fit(x, y, sigma []float64) (res *Result, err error) {
	if err := validate(x, y, sigma); err != nil {
		return nil, err
	}

	params := f.Params.Copy()
	free := params.free()
	if len(free) == 0 {
		return nil, ErrNoFree
	}
	if len(x) <= len(free) {
		return nil, fmt.Errorf("%w: %d points for %d free parameters", ErrLength, len(x), len(free))
	}

	init := make([]float64, len(free))
	for i, p := range free {
		if p.Min >= p.Max {
			return nil, fmt.Errorf("%w: %s has empty range [%g, %g], fix it instead", ErrBounds, p.Name, p.Min, p.Max)
		}
		if p.Value < p.Min || p.Value > p.Max {
			return nil, fmt.Errorf("%w: %s = %g not in [%g, %g]", ErrBounds, p.Name, p.Value, p.Min, p.Max)
		}
		init[i] = toInternal(*p, p.Value)
	}

	base := params.Values()

	// Called concurrently by the numerical jacobian, so it must not share
	// state between calls.
	external := func(u []float64) Values {
		vals := make(Values, len(base))
		for k, v := range base {
			vals[k] = v
		}
		for i, p := range free {
			vals[p.Name] = toExternal(*p, u[i])
		}

		return vals
	}

	residuals := func(dst []float64, vals Values) {
		for i := range x {
			r := y[i] - f.Model(x[i], vals)
			if len(sigma) > 0 && sigma[i] != 0 {
				r /= sigma[i]
			}
			dst[i] = r
		}
	}

	g := func(dst, u []float64) {
		residuals(dst, external(u))
	}

	jac := lm.NumJac{Func: g}

	problem := lm.LMProblem{
		Dim:        len(free),
		Size:       len(x),
		Func:       g,
		Jac:        jac.Jac,
		InitParams: init,
		Tau:        f.Settings.Tau,
		Eps1:       f.Settings.Eps1,
		Eps2:       f.Settings.Eps2,
	}

	// lm panics on a singular damped system.
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrSingular, r)
		}
	}()

	out, err := lm.LM(problem, &lm.Settings{
		Iterations:   f.Settings.Iterations,
		ObjectiveTol: f.Settings.ObjectiveTol,
	})
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	best := external(out.X)
	for _, p := range free {
		p.Value = best[p.Name]
	}

	res = &Result{
		Params:   params,
		Model:    f.Model,
		NData:    len(x),
		NFree:    len(free),
		Residual: make([]float64, len(x)),
		Status:   out.Status,
		Success:  out.Status != optimize.IterationLimit,
	}
	residuals(res.Residual, best)

	for _, r := range res.Residual {
		res.Chisqr += r * r
	}
	res.Redchi = res.Chisqr / float64(res.NData-res.NFree)

	res.covariance(free, best, residuals)

	return res, nil
}

// covariance estimates (JᵀJ)⁻¹·redchi on the external free parameters.
func (res *Result) covariance(free []*Param, best Values, residuals func([]float64, Values)) {
	p0 := make([]float64, len(free))
	for i, p := range free {
		p0[i] = p.Value
		res.FreeNames = append(res.FreeNames, p.Name)
	}

	j := mat.NewDense(res.NData, len(free), nil)
	fd.Jacobian(j, func(dst, p []float64) {
		vals := make(Values, len(best))
		for k, v := range best {
			vals[k] = v
		}
		for i, fp := range free {
			vals[fp.Name] = p[i]
		}
		residuals(dst, vals)
	}, p0, &fd.JacobianSettings{Formula: fd.Central})

	var jtj, inv mat.Dense
	jtj.Mul(j.T(), j)
	if err := inv.Inverse(&jtj); err != nil {
		return
	}
	inv.Scale(res.Redchi, &inv)

	for i, p := range free {
		if v := inv.At(i, i); v >= 0 && !math.IsNaN(v) {
			p.Stderr = math.Sqrt(v)
		}
	}
	res.Covar = &inv
}

func validate(x, y, sigma []float64) error {
	if len(x) != len(y) || len(x) == 0 {
		return fmt.Errorf("%w: len(x)=%d len(y)=%d", ErrLength, len(x), len(y))
	}
	if len(sigma) > 0 && len(sigma) != len(x) {
		return fmt.Errorf("%w: len(sigma)=%d", ErrLength, len(sigma))
	}

	for _, s := range [][]float64{x, y, sigma} {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ErrNonFinite
			}
		}
	}

	return nil
}

// Eval evaluates model over x with the given parameters. It is the manual
// fit: overlay a hand-tuned guess on data before (or instead of) fitting.
func Eval(model Model, x []float64, params *Params) []float64 {
	vals := params.Values()
	y := make([]float64, len(x))
	for i := range x {
		y[i] = model(x[i], vals)
	}

	return y
}
