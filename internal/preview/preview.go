// Package preview opens interactive gnuplot windows of data and fits.
//
// gnuplot support is linked only with the gnuplot build tag, since the glot
// package refuses to initialise without a gnuplot binary on PATH. Default
// builds return ErrUnavailable from Show.
package preview

import "errors"

// ErrUnavailable is returned by Show when the binary was built without
// gnuplot support.
var ErrUnavailable = errors.New("preview: built without gnuplot support (build with -tags gnuplot)")

// Group is one data set of a preview.
type Group struct {
	Name  string
	Style string // "points" or "lines"
	X, Y  []float64
}

func (g Group) style() string {
	if g.Style == "" {
		return "points"
	}
	return g.Style
}
