//go:build gnuplot

package preview

import (
	"fmt"

	"github.com/Arafatk/glot"
)

// Show opens a persistent gnuplot window with the groups.
func Show(title, xlabel, ylabel string, groups ...Group) error {
	gp, err := glot.NewPlot(2, true, false)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	if err := gp.SetTitle(title); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	if err := gp.SetXLabel(xlabel); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	if err := gp.SetYLabel(ylabel); err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	for _, g := range groups {
		if err := gp.AddPointGroup(g.Name, g.style(), [][]float64{g.X, g.Y}); err != nil {
			return fmt.Errorf("preview %s: %w", g.Name, err)
		}
	}

	return nil
}
