// Package cli holds the plumbing shared by the qtlab commands: logging
// setup, loading a data series from disk and saving figures into a session.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"

	"github.com/sourav-majumder/qtlab/internal/config"
	"github.com/sourav-majumder/qtlab/internal/datafile"
	"github.com/sourav-majumder/qtlab/internal/fit"
	"github.com/sourav-majumder/qtlab/internal/plotting"
	"github.com/sourav-majumder/qtlab/internal/session"
)

// Logger sets up console logging on w and installs it as the global logger.
func Logger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// Series is one x/y data set with axis labels.
type Series struct {
	Name   string
	X, Y   []float64
	XLabel string
	YLabel string
}

// LoadSeries reads a data set. CSV files are treated as spectrum analyzer
// exports (x in Hz, shown in GHz; y converted to nV when the unit allows).
// Anything else is read as a .dat file, using the named columns or the
// first two.
func LoadSeries(path, xcol, ycol string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		tr, err := datafile.ReadTrace(f, datafile.SpectrumAnalyzer)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		s := &Series{Name: name, XLabel: "Frequency (GHz)", YLabel: "Signal (" + tr.Unit + ")"}
		for _, x := range tr.X {
			s.X = append(s.X, x*1e-9)
		}
		y, ok := tr.Linear()
		if ok {
			s.YLabel = "Spectral Density (nV)"
		} else {
			log.Warn().Str("file", path).Str("unit", tr.Unit).Msg("unknown unit, plotting raw values")
		}
		s.Y = y

		return s, nil
	}

	tab, err := datafile.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(tab.Data) < 2 {
		return nil, fmt.Errorf("%s: need two columns, have %d", path, len(tab.Data))
	}

	s := &Series{Name: name, XLabel: tab.Columns[0], YLabel: tab.Columns[1], X: tab.Col(0), Y: tab.Col(1)}
	if xcol != "" {
		if s.X, err = tab.Column(xcol); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		s.XLabel = xcol
	}
	if ycol != "" {
		if s.Y, err = tab.Column(ycol); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		s.YLabel = ycol
	}

	return s, nil
}

// ApplyGuess overrides starting values with a sample preset and returns the
// preset names the model does not have.
func ApplyGuess(ps *fit.Params, guess map[string]float64) []string {
	var unknown []string
	for name, v := range guess {
		if err := ps.Set(name, v); err != nil {
			unknown = append(unknown, name)
		}
	}

	return unknown
}

// FitSettings adapts the configured solver limits.
func FitSettings(c config.FitConfig) fit.Settings {
	s := fit.DefaultSettings()
	if c.Iterations > 0 {
		s.Iterations = c.Iterations
	}
	if c.ObjectiveTol > 0 {
		s.ObjectiveTol = c.ObjectiveTol
	}

	return s
}

// Axes returns the preset for figure of sample, or nil.
func Axes(c *config.Config, sample, figure string) *plotting.Axes {
	s, ok := c.Sample(sample)
	if !ok {
		return nil
	}
	ax, ok := s.Figures[figure]
	if !ok {
		return nil
	}
	pa := plotting.Axes(ax)

	return &pa
}

// SaveFigure writes p into the session folder in the configured formats and
// notes the files in the log book.
func SaveFigure(sess *session.Session, c config.PlotConfig, p *plot.Plot, name string) error {
	size := c.Size
	if size <= 0 {
		size = 15
	}

	paths, err := plotting.Save(p, sess.Dir, name, size, c.Formats...)
	if err != nil {
		return err
	}
	logger := sess.Logger()
	for _, path := range paths {
		logger.Debug().Str("file", path).Msg("saved figure")
	}

	return nil
}
