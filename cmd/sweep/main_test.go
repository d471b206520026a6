package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourav-majumder/qtlab/internal/datafile"
	"github.com/sourav-majumder/qtlab/internal/instrument"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	return writeSettleConfig(t, dir, "0s")
}

func writeSettleConfig(t *testing.T, dir, settle string) string {
	t.Helper()
	path := filepath.Join(dir, "qtlab.yaml")
	cfg := fmt.Sprintf(`plot:
  dir: %s
  formats: [png]
  size: 4
sweep:
  settle: %s
  columns: [S21]
instrument:
  timeout: 2s
`, filepath.Join(dir, "plots"), settle)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func sessionDir(t *testing.T, root string) string {
	t.Helper()
	dirs, err := filepath.Glob(filepath.Join(root, "plots", "*", "*"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	return dirs[0]
}

func readTable(t *testing.T, path string) *datafile.Table {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	tab, err := datafile.Read(fh)
	require.NoError(t, err)
	return tab
}

func TestSimulated1D(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-config", cfg, "-sim", "-sample", "res1", "-sweep", "4.99e9:5.01e9:41"}, &stderr)
	require.NoError(t, err, stderr.String())

	out := sessionDir(t, dir)
	tab := readTable(t, filepath.Join(out, "sweep.dat"))
	assert.Equal(t, []string{"freq (Hz)", "S21"}, tab.Columns)
	assert.Equal(t, 41, tab.Len())
	assert.FileExists(t, filepath.Join(out, "sweep.png"))

	meta, err := datafile.ReadMeta(filepath.Join(out, "sweep.meta.toml"))
	require.NoError(t, err)
	assert.Equal(t, "res1", meta.Sample)
	assert.Equal(t, "qtlab,Simulator,0,1.0", meta.Instrument)
	require.Len(t, meta.Axes, 1)
	assert.Equal(t, 41, meta.Axes[0].Points)
	assert.NotContains(t, meta.Notes, "interrupted")

	book, err := os.ReadFile(filepath.Join(out, "log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(book), "Recorded 41 points")
}

func TestSimulated2D(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-config", cfg, "-sim", "-sweep", "4.99e9:5.01e9:11", "-outer", "-30:-10:3"}, &stderr)
	require.NoError(t, err, stderr.String())

	tab := readTable(t, filepath.Join(sessionDir(t, dir), "sweep.dat"))
	assert.Equal(t, []string{"power (dBm)", "freq (Hz)", "S21"}, tab.Columns)
	assert.Equal(t, []int{0, 11, 22}, tab.Blocks)
}

func TestInterruptedSweepKeepsPartialData(t *testing.T) {
	dir := t.TempDir()
	cfg := writeSettleConfig(t, dir, "20ms")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(150*time.Millisecond, cancel)

	var stderr bytes.Buffer
	err := run(ctx, []string{"-config", cfg, "-sim", "-sweep", "4.99e9:5.01e9:1000"}, &stderr)
	require.NoError(t, err, stderr.String())

	out := sessionDir(t, dir)
	tab := readTable(t, filepath.Join(out, "sweep.dat"))
	assert.Greater(t, tab.Len(), 0)
	assert.Less(t, tab.Len(), 1000)

	meta, err := datafile.ReadMeta(filepath.Join(out, "sweep.meta.toml"))
	require.NoError(t, err)
	assert.Equal(t, "true", meta.Notes["interrupted"])
	assert.Contains(t, stderr.String(), "sweep interrupted")

	book, err := os.ReadFile(filepath.Join(out, "log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(book), fmt.Sprintf("Recorded %d points", tab.Len()))
}

func TestSweepOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim := instrument.NewSimulator(instrument.DefaultResonator(),
		instrument.Commands{SetFrequency: "FREQ %g", SetPower: "POW %g", Measure: "MEAS?"}, 2)
	done := make(chan error, 1)
	go func() { done <- instrument.Serve(ctx, ln, sim, zerolog.Nop()) }()

	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	var stderr bytes.Buffer
	err = run(context.Background(), []string{"-config", cfg, "-addr", ln.Addr().String(), "-sweep", "4.99e9:5.01e9:5"}, &stderr)
	require.NoError(t, err, stderr.String())

	f, _ := sim.State()
	assert.Equal(t, 5.01e9, f)

	cancel()
	assert.NoError(t, <-done)
}

func TestParseAxis(t *testing.T) {
	a, err := parseAxis("freq", "Hz", "1e9:2e9:11", true)
	require.NoError(t, err)
	assert.Equal(t, 11, a.Points)
	assert.True(t, a.Log)

	for _, spec := range []string{"1:2", "a:2:3", "1:b:3", "1:2:x", "1:2:0"} {
		_, err := parseAxis("x", "", spec, false)
		assert.Error(t, err, spec)
	}
}

func TestNeedsAxisOrServe(t *testing.T) {
	var stderr bytes.Buffer
	assert.Error(t, run(context.Background(), []string{"-sim"}, &stderr))
}
