// Package plotting sets up figures in our house style (large Liberation Sans
// type, transparent background, hand-placed ticks) and saves them.
package plotting

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Axes fixes the ranges and ticks of a figure. Empty fields leave the
// gonum/plot defaults in place.
type Axes struct {
	XRange      []float64
	YRange      []float64
	XTicks      []float64
	YTicks      []float64
	XTickLabels []string
	YTickLabels []string
}

// New returns a styled, empty plot.
func New(title, xlabel, ylabel, legend string, ax *Axes) *plot.Plot {
	p := plot.New()
	p.BackgroundColor = color.RGBA{A: 0}
	p.Title.Text = title
	p.Title.TextStyle.Font.Typeface = "Liberation"
	p.Title.TextStyle.Font.Variant = "Sans"
	p.Title.TextStyle.Font.Size = 50
	p.Title.Padding = font.Length(50)

	p.X.Label.Text = xlabel
	p.X.Label.TextStyle.Font.Variant = "Sans"
	p.X.Label.TextStyle.Font.Size = 36
	p.X.Label.Padding = font.Length(20)
	p.X.LineStyle.Width = vg.Points(1.5)
	p.X.Tick.LineStyle.Width = vg.Points(1.5)
	p.X.Tick.Label.Font.Size = 36
	p.X.Tick.Label.Font.Variant = "Sans"

	p.Y.Label.Text = ylabel
	p.Y.Label.TextStyle.Font.Variant = "Sans"
	p.Y.Label.TextStyle.Font.Size = 36
	p.Y.Label.Padding = font.Length(20)
	p.Y.LineStyle.Width = vg.Points(1.5)
	p.Y.Tick.LineStyle.Width = vg.Points(1.5)
	p.Y.Tick.Label.Font.Size = 36
	p.Y.Tick.Label.Font.Variant = "Sans"

	if ax != nil {
		if len(ax.XRange) == 2 {
			p.X.Min, p.X.Max = ax.XRange[0], ax.XRange[1]
		}
		if len(ax.YRange) == 2 {
			p.Y.Min, p.Y.Max = ax.YRange[0], ax.YRange[1]
		}
		if len(ax.XTicks) > 0 {
			p.X.Tick.Marker = plot.ConstantTicks(ticks(ax.XTicks, ax.XTickLabels))
			p.X.Padding = vg.Points(-12.5)
		}
		if len(ax.YTicks) > 0 {
			p.Y.Tick.Marker = plot.ConstantTicks(ticks(ax.YTicks, ax.YTickLabels))
			p.Y.Padding = vg.Points(-4.75)
		}
	}

	p.Legend.TextStyle.Font.Size = 36
	p.Legend.TextStyle.Font.Variant = "Sans"
	p.Legend.Top = true
	p.Legend.XOffs = vg.Points(-50)
	p.Legend.YOffs = vg.Points(-50)
	p.Legend.Padding = vg.Points(10)
	p.Legend.ThumbnailWidth = vg.Points(50)
	if legend != "" {
		p.Legend.Add(legend)
	}

	return p
}

// ticks labels each value with its label, or with the formatted value when
// no labels are given.
func ticks(values []float64, labels []string) []plot.Tick {
	out := make([]plot.Tick, len(values))
	for i, v := range values {
		label := fmt.Sprintf("%g", v)
		if i < len(labels) {
			label = labels[i]
		}
		out[i] = plot.Tick{Value: v, Label: label}
	}

	return out
}

// XYs zips x and y.
func XYs(x, y []float64) plotter.XYs {
	n := min(len(x), len(y))
	xy := make(plotter.XYs, n)
	for i := range xy {
		xy[i].X = x[i]
		xy[i].Y = y[i]
	}

	return xy
}

// AddScatter adds a data set drawn as circles. An empty label keeps it out
// of the legend.
func AddScatter(p *plot.Plot, x, y []float64, brush int, label string) error {
	pts := XYs(x, y)
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("plotting: %w", err)
	}
	s.GlyphStyle.Color = Palette(brush, false)
	s.GlyphStyle.Radius = vg.Points(3)
	s.Shape = draw.CircleGlyph{}
	p.Add(s)

	if label != "" {
		// Bigger glyph for the legend thumbnail.
		l, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("plotting: %w", err)
		}
		l.GlyphStyle.Color = Palette(brush, false)
		l.GlyphStyle.Radius = vg.Points(6)
		l.Shape = draw.CircleGlyph{}
		p.Legend.Add(label, l)
	}

	return nil
}

// AddLine adds a curve, typically a fit, in the dark variant of brush.
func AddLine(p *plot.Plot, x, y []float64, brush int, label string) error {
	l, err := plotter.NewLine(XYs(x, y))
	if err != nil {
		return fmt.Errorf("plotting: %w", err)
	}
	l.LineStyle.Color = Palette(brush, true)
	l.LineStyle.Width = vg.Points(3)
	p.Add(l)
	if label != "" {
		p.Legend.Add(label, l)
	}

	return nil
}

type errorData struct {
	plotter.XYs
	plotter.YErrors
}

// AddErrors adds symmetric y error bars.
func AddErrors(p *plot.Plot, x, y, sigma []float64, brush int) error {
	if len(sigma) != len(x) || len(y) != len(x) {
		return fmt.Errorf("plotting: %d x, %d y, %d errors", len(x), len(y), len(sigma))
	}

	data := errorData{XYs: XYs(x, y), YErrors: make(plotter.YErrors, len(sigma))}
	for i, s := range sigma {
		data.YErrors[i].Low = s
		data.YErrors[i].High = s
	}

	e, err := plotter.NewYErrorBars(data)
	if err != nil {
		return fmt.Errorf("plotting: %w", err)
	}
	e.LineStyle.Color = Palette(brush, true)
	e.LineStyle.Width = vg.Points(1.5)
	p.Add(e)

	return nil
}

// DataWithFit draws data points and the fitted curve with the same brush.
func DataWithFit(p *plot.Plot, x, y, fitX, fitY []float64, brush int, label string) error {
	if err := AddScatter(p, x, y, brush, label); err != nil {
		return err
	}

	return AddLine(p, fitX, fitY, brush, "")
}

// Save writes p as dir/name.<format> for each format (png, svg, pdf, ...),
// size inches square, and returns the written paths.
func Save(p *plot.Plot, dir, name string, size float64, formats ...string) ([]string, error) {
	if len(formats) == 0 {
		formats = []string{"png"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("plotting: %w", err)
	}

	var paths []string
	w := vg.Length(size) * vg.Inch
	for _, f := range formats {
		path := filepath.Join(dir, name+"."+f)
		if err := p.Save(w, w, path); err != nil {
			return paths, fmt.Errorf("plotting: saving %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}
