package signal

import (
	"errors"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	ErrEmpty   = errors.New("signal: empty input")
	ErrEpsilon = errors.New("signal: epsilon must be positive")
)

// Convolve returns the full linear convolution of a and b.
func Convolve(a, b []float64) []float64 {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	out := make([]float64, len(a)+len(b)-1)
	for i, av := range a {
		for j, bv := range b {
			out[i+j] += av * bv
		}
	}

	return out
}

// Deconvolve undoes a convolution with kernel using regularized spectral
// division, X = Y·conj(H) / (|H|² + ε·max|H|²). epsilon is relative to the
// peak kernel power. The result has the length of signal.
func Deconvolve(signal, kernel []float64, epsilon float64) ([]float64, error) {
	if len(signal) == 0 || len(kernel) == 0 {
		return nil, ErrEmpty
	}
	if epsilon <= 0 {
		return nil, ErrEpsilon
	}

	n := 1
	for n < len(signal)+len(kernel) {
		n <<= 1
	}

	y := make([]float64, n)
	copy(y, signal)
	h := make([]float64, n)
	copy(h, kernel)

	fft := fourier.NewFFT(n)
	Y := fft.Coefficients(nil, y)
	H := fft.Coefficients(nil, h)

	peak := 0.0
	for _, c := range H {
		if p := real(c)*real(c) + imag(c)*imag(c); p > peak {
			peak = p
		}
	}
	reg := complex(epsilon*peak, 0)

	for k := range Y {
		p := complex(real(H[k])*real(H[k])+imag(H[k])*imag(H[k]), 0)
		Y[k] = Y[k] * cmplx.Conj(H[k]) / (p + reg)
	}

	x := fft.Sequence(nil, Y)
	out := make([]float64, len(signal))
	for i := range out {
		out[i] = x[i] / float64(n)
	}

	return out, nil
}
