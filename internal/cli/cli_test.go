package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourav-majumder/qtlab/internal/config"
	"github.com/sourav-majumder/qtlab/internal/fit"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeriesCSV(t *testing.T) {
	path := write(t, t.TempDir(), "stokes.csv",
		"Keysight banner\nFrequency,x,Signal,Unit\n2.0e9,0,-60,dBm\n2.1e9,0,-50,dBm\n")

	s, err := LoadSeries(path, "", "")
	require.NoError(t, err)
	assert.Equal(t, "stokes", s.Name)
	assert.InDeltaSlice(t, []float64{2.0, 2.1}, s.X, 1e-12)
	assert.Equal(t, "Spectral Density (nV)", s.YLabel)
	assert.Greater(t, s.Y[1], s.Y[0])
}

func TestLoadSeriesDat(t *testing.T) {
	path := write(t, t.TempDir(), "sweep.dat",
		"# run 1\n# freq\tpower\tS21\n1\t-30\t0.5\n2\t-30\t0.4\n")

	s, err := LoadSeries(path, "", "")
	require.NoError(t, err)
	assert.Equal(t, "freq", s.XLabel)
	assert.Equal(t, []float64{-30, -30}, s.Y)

	s, err = LoadSeries(path, "freq", "S21")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.4}, s.Y)
	assert.Equal(t, "S21", s.YLabel)

	_, err = LoadSeries(path, "freq", "phase")
	assert.Error(t, err)

	_, err = LoadSeries(filepath.Join(t.TempDir(), "missing.dat"), "", "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyGuess(t *testing.T) {
	ps := fit.NewParams().Add("amp", 1).Add("f0", 2)
	unknown := ApplyGuess(ps, map[string]float64{"amp": 5, "kappa": 3})
	assert.Equal(t, []string{"kappa"}, unknown)
	assert.Equal(t, 5.0, ps.Value("amp"))
}

func TestFitSettings(t *testing.T) {
	s := FitSettings(config.FitConfig{Iterations: 50})
	assert.Equal(t, 50, s.Iterations)
	assert.Equal(t, fit.DefaultSettings().ObjectiveTol, s.ObjectiveTol)
}

func TestAxes(t *testing.T) {
	c := &config.Config{Samples: map[string]config.SampleConfig{
		"lcof": {Figures: map[string]config.Axes{"stokes": {XRange: []float64{2, 2.5}}}},
	}}

	ax := Axes(c, "LCOF", "stokes")
	require.NotNil(t, ax)
	assert.Equal(t, []float64{2, 2.5}, ax.XRange)
	assert.Nil(t, Axes(c, "lcof", "pump"))
	assert.Nil(t, Axes(c, "te", "stokes"))
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Logger(&buf, false)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
