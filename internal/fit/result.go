package fit

import (
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Result holds the outcome of Fitter.Fit.
type Result struct {
	Params   *Params
	Model    Model
	Chisqr   float64
	Redchi   float64
	NData    int
	NFree    int
	Residual []float64
	Status   optimize.Status
	Success  bool

	// Covar is ordered like FreeNames. It is nil when JᵀJ was singular.
	Covar     *mat.Dense
	FreeNames []string
}

// Eval evaluates the best-fit model over x.
func (r *Result) Eval(x []float64) []float64 {
	return Eval(r.Model, x, r.Params)
}

// Value is shorthand for r.Params.Value(name).
func (r *Result) Value(name string) float64 {
	return r.Params.Value(name)
}

// Stderr returns the standard error of name, zero if unknown.
func (r *Result) Stderr(name string) float64 {
	p, _ := r.Params.Get(name)
	return p.Stderr
}

// Correl returns the correlation coefficient between two free parameters.
func (r *Result) Correl(a, b string) float64 {
	if r.Covar == nil {
		return math.NaN()
	}

	ia, ib := -1, -1
	for i, name := range r.FreeNames {
		switch name {
		case a:
			ia = i
		case b:
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return math.NaN()
	}

	return r.Covar.At(ia, ib) / math.Sqrt(r.Covar.At(ia, ia)*r.Covar.At(ib, ib))
}

// Report formats the parameters and goodness of fit as a table.
func (r *Result) Report() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "param\tvalue\tstderr\t")
	for _, name := range r.Params.Names() {
		p, _ := r.Params.Get(name)
		switch {
		case !p.Vary:
			fmt.Fprintf(w, "%s\t%.6g\t(fixed)\t\n", name, p.Value)
		case p.Stderr > 0:
			fmt.Fprintf(w, "%s\t%.6g\t%.2g\t\n", name, p.Value, p.Stderr)
		default:
			fmt.Fprintf(w, "%s\t%.6g\t-\t\n", name, p.Value)
		}
	}
	w.Flush()

	fmt.Fprintf(&b, "chisqr %.4g  redchi %.4g  ndata %d  nfree %d  %s\n",
		r.Chisqr, r.Redchi, r.NData, r.NFree, r.Status)

	return b.String()
}
