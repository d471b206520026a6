// Package signal has the small trace-processing helpers shared by the
// analysis tools.
package signal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
)

// Subtract returns sig - bg point by point.
func Subtract(sig, bg []float64) ([]float64, error) {
	if len(sig) != len(bg) {
		return nil, fmt.Errorf("signal: background has %d points, signal %d", len(bg), len(sig))
	}

	out := make([]float64, len(sig))
	for i := range sig {
		out[i] = sig[i] - bg[i]
	}

	return out, nil
}

// SubtractBackground subtracts a background trace recorded on bgX from sig
// recorded on x. The background is linearly interpolated when the grids
// differ; points of x outside bgX use the nearest background value.
func SubtractBackground(x, sig, bgX, bg []float64) ([]float64, error) {
	if len(x) != len(sig) || len(bgX) != len(bg) {
		return nil, fmt.Errorf("signal: mismatched trace lengths")
	}
	if sameGrid(x, bgX) {
		return Subtract(sig, bg)
	}
	if len(bgX) < 2 {
		return nil, fmt.Errorf("signal: need two background points to interpolate, have %d", len(bgX))
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(bgX, bg); err != nil {
		return nil, fmt.Errorf("signal: background: %w", err)
	}

	out := make([]float64, len(sig))
	for i := range sig {
		xv := math.Min(math.Max(x[i], bgX[0]), bgX[len(bgX)-1])
		out[i] = sig[i] - pl.Predict(xv)
	}

	return out, nil
}

func sameGrid(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9*math.Max(1, math.Abs(a[i])) {
			return false
		}
	}

	return true
}

// Binned is the result of Bin.
type Binned struct {
	X     []float64
	Y     []float64
	Sigma []float64
	N     []int
}

// Bin averages y into bins of fixed width starting at the smallest x, so x
// may run in either direction or be unordered. Each bin covers
// [lo, lo+width); empty bins are dropped and the result is in increasing x. Sigma is the sample standard
// deviation of the bin, zero for single-point bins.
func Bin(x, y []float64, width float64) (Binned, error) {
	var b Binned
	if len(x) != len(y) {
		return b, fmt.Errorf("signal: len(x)=%d len(y)=%d", len(x), len(y))
	}
	if width <= 0 {
		return b, fmt.Errorf("signal: bin width must be positive, got %g", width)
	}
	if len(x) == 0 {
		return b, ErrEmpty
	}

	start, stop := floats.Min(x), floats.Max(x)
	if math.IsNaN(start) || math.IsInf(start, 0) || math.IsInf(stop, 0) {
		return b, fmt.Errorf("signal: cannot bin x spanning [%g, %g]", start, stop)
	}
	nBins := int((stop-start)/width) + 1
	groups := make([][]float64, nBins)
	for i, xv := range x {
		k := int(math.Floor((xv - start) / width))
		if k < 0 || k >= nBins {
			continue
		}
		groups[k] = append(groups[k], y[i])
	}

	for k, g := range groups {
		if len(g) == 0 {
			continue
		}
		b.X = append(b.X, start+(float64(k)+0.5)*width)
		b.Y = append(b.Y, stat.Mean(g, nil))
		sd := 0.0
		if len(g) > 1 {
			sd = stat.StdDev(g, nil)
		}
		b.Sigma = append(b.Sigma, sd)
		b.N = append(b.N, len(g))
	}

	return b, nil
}

// Average returns the point-wise mean and sample standard deviation of
// repeated traces of equal length. Sigma is zero for a single trace.
func Average(traces [][]float64) (mean, sigma []float64, err error) {
	if len(traces) == 0 || len(traces[0]) == 0 {
		return nil, nil, ErrEmpty
	}
	n := len(traces[0])
	for k, tr := range traces {
		if len(tr) != n {
			return nil, nil, fmt.Errorf("signal: trace %d has %d points, want %d", k, len(tr), n)
		}
	}

	mean = make([]float64, n)
	sigma = make([]float64, n)
	col := make([]float64, len(traces))
	for i := 0; i < n; i++ {
		for k, tr := range traces {
			col[k] = tr[i]
		}
		mean[i] = stat.Mean(col, nil)
		if len(col) > 1 {
			sigma[i] = stat.StdDev(col, nil)
		}
	}

	return mean, sigma, nil
}

// Normalize shifts y so the average of its first and last points is zero.
func Normalize(y []float64) []float64 {
	out := make([]float64, len(y))
	if len(y) == 0 {
		return out
	}

	shift := (y[0] + y[len(y)-1]) / 2
	for i := range y {
		out[i] = y[i] - shift
	}

	return out
}

// Map applies f to every value.
func Map(y []float64, f func(float64) float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = f(y[i])
	}

	return out
}
