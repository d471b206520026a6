package main

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const theta = 0.6

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "qtlab.yaml")
	cfg := fmt.Sprintf("plot:\n  dir: %s\n  formats: [png]\n  size: 4\n", filepath.Join(dir, "plots"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

// writeIQ writes a trace whose population p(t) is read out along a line at
// angle theta in the IQ plane.
func writeIQ(t *testing.T, path string, n int, p func(float64) float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("# time\tI\tQ\n")
	for k := 0; k < n; k++ {
		tt := 5 * float64(k) / float64(n-1)
		s := 2*p(tt) - 1
		fmt.Fprintf(&b, "%g\t%g\t%g\n", tt, 0.3+s*math.Cos(theta), -0.1+s*math.Sin(theta))
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func sessionBook(t *testing.T, dir string) (string, string) {
	t.Helper()
	dirs, err := filepath.Glob(filepath.Join(dir, "plots", "*", "*"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	book, err := os.ReadFile(filepath.Join(dirs[0], "log.txt"))
	require.NoError(t, err)
	return dirs[0], string(book)
}

func TestRabiWithCalibration(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	data := filepath.Join(dir, "rabi.dat")
	writeIQ(t, data, 201, func(tt float64) float64 {
		return 0.5 - 0.5*math.Exp(-tt/3)*math.Cos(2*math.Pi*tt)
	})
	ground := filepath.Join(dir, "g.dat")
	writeIQ(t, ground, 20, func(float64) float64 { return 0 })
	excited := filepath.Join(dir, "e.dat")
	writeIQ(t, excited, 20, func(float64) float64 { return 1 })

	var stderr bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, "-ground", ground, "-excited", excited, data}, &stderr))

	out, book := sessionBook(t, dir)
	assert.FileExists(t, filepath.Join(out, "rabi.png"))
	assert.FileExists(t, filepath.Join(out, "iq.png"))
	assert.FileExists(t, filepath.Join(out, "readout.png"))
	assert.Contains(t, book, "Readout: ground")

	m := regexp.MustCompile(`Rabi frequency (\S+), pi pulse (\S+)`).FindStringSubmatch(book)
	require.Len(t, m, 3, book)
	f, err := strconv.ParseFloat(m[1], 64)
	require.NoError(t, err)
	assert.InDelta(t, 1, math.Abs(f), 0.01)
}

func TestT1(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	data := filepath.Join(dir, "t1.dat")
	writeIQ(t, data, 101, func(tt float64) float64 { return math.Exp(-tt / 1.5) })

	var stderr bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, "-model", "t1", "-note", "q1", data}, &stderr))

	_, book := sessionBook(t, dir)
	m := regexp.MustCompile(`T1 = (\S+)`).FindStringSubmatch(book)
	require.Len(t, m, 2, book)
	tau, err := strconv.ParseFloat(m[1], 64)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, tau, 1e-3)
}

func TestFlagErrors(t *testing.T) {
	var stderr bytes.Buffer
	assert.Error(t, run([]string{"-model", "cpmg", "x.dat"}, &stderr))
	assert.Error(t, run([]string{"-ground", "g.dat", "x.dat"}, &stderr))
	assert.Error(t, run(nil, &stderr))
}

func TestLoadIQNeedsThreeColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.dat")
	require.NoError(t, os.WriteFile(path, []byte("1\t2\n3\t4\n"), 0o644))
	_, err := loadIQ(path, "", "", "")
	assert.Error(t, err)
}
