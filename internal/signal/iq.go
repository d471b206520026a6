package signal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var ErrCalibration = errors.New("signal: ground and excited references coincide")

// Rotate rotates the IQ plane by -theta so a signal along theta ends up
// on I.
func Rotate(i, q []float64, theta float64) (ri, rq []float64) {
	c, s := math.Cos(theta), math.Sin(theta)
	ri = make([]float64, len(i))
	rq = make([]float64, len(q))
	for k := range i {
		ri[k] = i[k]*c + q[k]*s
		rq[k] = -i[k]*s + q[k]*c
	}

	return ri, rq
}

// RotateQuadrature finds the principal axis of the IQ cloud and rotates it
// onto I, so all of the signal ends up in one quadrature.
func RotateQuadrature(i, q []float64) (ri, rq []float64, theta float64, err error) {
	if len(i) != len(q) {
		return nil, nil, 0, fmt.Errorf("signal: len(i)=%d len(q)=%d", len(i), len(q))
	}
	if len(i) < 2 {
		return nil, nil, 0, ErrEmpty
	}

	vi := stat.Variance(i, nil)
	vq := stat.Variance(q, nil)
	cov := stat.Covariance(i, q, nil)
	theta = 0.5 * math.Atan2(2*cov, vi-vq)

	ri, rq = Rotate(i, q, theta)

	return ri, rq, theta, nil
}

// Population maps a rotated quadrature to excited-state population given the
// ground and excited state readout levels.
func Population(v []float64, ground, excited float64) ([]float64, error) {
	if ground == excited {
		return nil, ErrCalibration
	}

	p := make([]float64, len(v))
	for k := range v {
		p[k] = (v[k] - ground) / (excited - ground)
	}

	return p, nil
}

// PopulationFromRefs is Population with levels taken as the mean of
// calibration traces recorded with the qubit prepared in |g> and |e>.
func PopulationFromRefs(v, groundRef, excitedRef []float64) ([]float64, error) {
	if len(groundRef) == 0 || len(excitedRef) == 0 {
		return nil, ErrEmpty
	}

	return Population(v, stat.Mean(groundRef, nil), stat.Mean(excitedRef, nil))
}

// MagPhase converts IQ to magnitude and phase (radians).
func MagPhase(i, q []float64) (mag, phase []float64) {
	mag = make([]float64, len(i))
	phase = make([]float64, len(i))
	for k := range i {
		mag[k] = math.Hypot(i[k], q[k])
		phase[k] = math.Atan2(q[k], i[k])
	}

	return mag, phase
}

// UnwrapPhase removes 2π jumps.
func UnwrapPhase(phase []float64) []float64 {
	out := make([]float64, len(phase))
	if len(phase) == 0 {
		return out
	}

	out[0] = phase[0]
	offset := 0.0
	for k := 1; k < len(phase); k++ {
		d := phase[k] - phase[k-1]
		switch {
		case d > math.Pi:
			offset -= 2 * math.Pi
		case d < -math.Pi:
			offset += 2 * math.Pi
		}
		out[k] = phase[k] + offset
	}

	return out
}

// RemoveCableDelay removes the linear phase 2π f τ of an electrical delay
// from an unwrapped phase trace. f in Hz, tau in seconds.
func RemoveCableDelay(f, phase []float64, tau float64) []float64 {
	out := make([]float64, len(phase))
	for k := range phase {
		out[k] = phase[k] + 2*math.Pi*f[k]*tau
	}

	return out
}
