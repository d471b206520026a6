package plotting

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// AddHistogram adds a histogram of values with the given number of bins.
func AddHistogram(p *plot.Plot, values []float64, bins, brush int) error {
	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return fmt.Errorf("plotting: %w", err)
	}
	h.FillColor = Palette(brush, false)
	h.LineStyle.Color = Palette(brush, true)
	h.LineStyle.Width = vg.Points(1.5)
	p.Add(h)

	return nil
}

// AddBoxes adds one box plot per group at x = 0, 1, ... and labels the x
// axis with names.
func AddBoxes(p *plot.Plot, groups [][]float64, names []string, brush int) error {
	ticks := make([]plot.Tick, len(groups))
	for i, g := range groups {
		b, err := plotter.NewBoxPlot(vg.Points(60), float64(i), plotter.Values(g))
		if err != nil {
			return fmt.Errorf("plotting: %w", err)
		}
		b.FillColor = Palette(brush+4*i, false)
		b.BoxStyle.Color = Palette(brush+4*i, true)
		b.BoxStyle.Width = vg.Points(2)
		p.Add(b)

		ticks[i].Value = float64(i)
		if i < len(names) {
			ticks[i].Label = names[i]
		}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)

	return nil
}

// GuideLines draws the dashed eye guides from each point down to yFloor and
// across to xFloor.
func GuideLines(p *plot.Plot, x, y []float64, xFloor, yFloor float64, brush int) error {
	for i := range x {
		v, err := plotter.NewLine(plotter.XYs{{X: x[i], Y: yFloor}, {X: x[i], Y: y[i]}})
		if err != nil {
			return fmt.Errorf("plotting: %w", err)
		}
		v.LineStyle.Color = Palette(brush+4*i, true)
		v.LineStyle.Width = vg.Points(4)
		v.LineStyle.Dashes = []vg.Length{vg.Points(15), vg.Points(5)}

		h, err := plotter.NewLine(plotter.XYs{{X: xFloor, Y: y[i]}, {X: x[i], Y: y[i]}})
		if err != nil {
			return fmt.Errorf("plotting: %w", err)
		}
		h.LineStyle.Color = grey
		h.LineStyle.Width = vg.Points(1)
		h.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}

		p.Add(v, h)
	}

	return nil
}
