package main

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"

	"github.com/sourav-majumder/qtlab/internal/cli"
	"github.com/sourav-majumder/qtlab/internal/plotting"
)

type plotPlan struct {
	plot *plot.Plot
}

func newPlotPlan(title, xlabel, ylabel string, ax *plotting.Axes) *plotPlan {
	return &plotPlan{plot: plotting.New(title, xlabel, ylabel, "", ax)}
}

// add draws one set. fitX may be nil when the fit failed.
func (pp *plotPlan) add(x, y, sigma, fitX, fitY []float64, brush int, label string) error {
	if sigma != nil {
		if err := plotting.AddErrors(pp.plot, x, y, sigma, brush); err != nil {
			return err
		}
	}
	if fitX == nil {
		return plotting.AddScatter(pp.plot, x, y, brush, label)
	}

	return plotting.DataWithFit(pp.plot, x, y, fitX, fitY, brush, label)
}

// trend collects fitted linewidths against pump power.
type trend struct {
	power, width, stderr []float64
}

func (t *trend) add(power, width, stderr float64) {
	t.power = append(t.power, power)
	t.width = append(t.width, width)
	t.stderr = append(t.stderr, stderr)
}

// saveTrend plots linewidth against power with a straight-line fit, the
// power broadening check we do after every power series.
func (f *fitter) saveTrend(t trend, xlabel string) error {
	alpha, beta := stat.LinearRegression(t.power, t.width, nil, false)
	f.sess.Logf("FWHM = %.4g + %.4g * P (P in mW)", alpha, beta)

	ax := cli.Axes(f.cfg, f.opts.sample, "pow vs wid")
	p := plotting.New("Pump Power vs Widths of Fits", "Pump Power (mW)", "Full Width Half Max ("+xUnit(xlabel)+")", "", ax)
	if err := plotting.AddErrors(p, t.power, t.width, t.stderr, 0); err != nil {
		return err
	}
	if err := plotting.GuideLines(p, t.power, t.width, 0, 0, 0); err != nil {
		return err
	}
	if err := plotting.AddScatter(p, t.power, t.width, 0, ""); err != nil {
		return err
	}

	lx := []float64{floats.Min(t.power), floats.Max(t.power)}
	ly := []float64{alpha + beta*lx[0], alpha + beta*lx[1]}
	if err := plotting.AddLine(p, lx, ly, 8, "linear fit"); err != nil {
		return err
	}

	return cli.SaveFigure(f.sess, f.cfg.Plot, p, "pow vs wid")
}

// saveResiduals histograms the residuals of every fit.
func (f *fitter) saveResiduals(r []float64) error {
	p := plotting.New("Fit Residuals", "Residual", "Count", "", nil)
	bins := max(5, min(50, len(r)/10))
	if err := plotting.AddHistogram(p, r, bins, 4); err != nil {
		return err
	}

	return cli.SaveFigure(f.sess, f.cfg.Plot, p, "residuals")
}

// xUnit pulls "GHz" out of "Frequency (GHz)".
func xUnit(label string) string {
	i, j := -1, -1
	for k, r := range label {
		switch r {
		case '(':
			i = k
		case ')':
			j = k
		}
	}
	if i < 0 || j <= i {
		return "a.u."
	}
	return label[i+1 : j]
}
