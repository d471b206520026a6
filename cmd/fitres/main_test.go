package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourav-majumder/qtlab/internal/datafile"
	"github.com/sourav-majumder/qtlab/internal/models"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "qtlab.yaml")
	cfg := fmt.Sprintf("data:\n  dir: %s\nplot:\n  dir: %s\n  formats: [png]\n  size: 4\n",
		filepath.Join(dir, "Data"), filepath.Join(dir, "plots"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

// writeSpectrum writes a spectrum analyzer export of a Lorentzian peak.
func writeSpectrum(t *testing.T, path string, amp, f0, fwhm float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Spectrum Analyzer export\nFrequency,Ch,Signal,Unit\n")
	for i := 0; i <= 200; i++ {
		f := 2.0 + 0.5*float64(i)/200
		hw := fwhm / 2
		y := amp*hw*hw/((f-f0)*(f-f0)+hw*hw) + 1
		fmt.Fprintf(&b, "%.6e,0,%.9g,nV\n", f*1e9, y)
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func sessionDir(t *testing.T, root string) string {
	t.Helper()
	dirs, err := filepath.Glob(filepath.Join(root, "plots", "*", "*"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	return dirs[0]
}

func TestFitFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	writeSpectrum(t, a, 5, 2.25, 0.05)
	writeSpectrum(t, b, 8, 2.27, 0.04)

	var stderr bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, "-sample", "lcof", "-note", "stokes", a, b}, &stderr))

	out := sessionDir(t, dir)
	assert.True(t, strings.HasSuffix(out, ": stokes"), out)
	assert.FileExists(t, filepath.Join(out, "lorentzian.png"))

	book, err := os.ReadFile(filepath.Join(out, "log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(book), "Set 1 \t b.csv")
	assert.Contains(t, string(book), "Q = ")

	fh, err := os.Open(filepath.Join(out, "summary.dat"))
	require.NoError(t, err)
	defer fh.Close()
	tab, err := datafile.Read(fh)
	require.NoError(t, err)
	require.Equal(t, 2, tab.Len())

	f0, err := tab.Column("f0")
	require.NoError(t, err)
	assert.InDelta(t, 2.25, f0[0], 1e-4)
	assert.InDelta(t, 2.27, f0[1], 1e-4)

	fwhm, err := tab.Column("fwhm")
	require.NoError(t, err)
	assert.InDelta(t, 0.04, fwhm[1], 1e-4)
}

func TestFitIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	writeSpectrum(t, filepath.Join(dir, "Data", "run1", "s.csv"), 5, 2.3, 0.06)
	writeSpectrum(t, filepath.Join(dir, "Data", "run2", "s.csv"), 9, 2.3, 0.08)
	index := "Date,Run,Label,Filepath,Notes\n" +
		"2023-10-30,1,12.5 mW ras,run1/s.csv,\n" +
		"2023-10-30,2,25 mW ras,run2/s.csv,\n" +
		"2023-10-30,3,lock-in only,,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Data", "meta.csv"), []byte(index), 0o644))

	var stderr bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, "-index"}, &stderr))

	out := sessionDir(t, dir)
	book, err := os.ReadFile(filepath.Join(out, "log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(book), "12.50 mW")
	assert.Contains(t, string(book), "FWHM = ")
	assert.FileExists(t, filepath.Join(out, "pow vs wid.png"))
	assert.FileExists(t, filepath.Join(out, "residuals.png"))
	assert.Contains(t, stderr.String(), "skipping lock-in entry")
}

func TestFitAveraged(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	var files []string
	for i, amp := range []float64{4.9, 5.0, 5.1} {
		path := filepath.Join(dir, fmt.Sprintf("r%d.csv", i))
		writeSpectrum(t, path, amp, 2.25, 0.05)
		files = append(files, path)
	}

	var stderr bytes.Buffer
	args := append([]string{"-config", cfg, "-avg", "3"}, files...)
	require.NoError(t, run(args, &stderr))

	out := sessionDir(t, dir)
	book, err := os.ReadFile(filepath.Join(out, "log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(book), "Averaged 3 traces")

	fh, err := os.Open(filepath.Join(out, "summary.dat"))
	require.NoError(t, err)
	defer fh.Close()
	tab, err := datafile.Read(fh)
	require.NoError(t, err)
	require.Equal(t, 1, tab.Len())
	amp, err := tab.Column("amp")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, amp[0], 1e-2)
}

func summaryColumn(t *testing.T, out, name string) []float64 {
	t.Helper()
	fh, err := os.Open(filepath.Join(out, "summary.dat"))
	require.NoError(t, err)
	defer fh.Close()
	tab, err := datafile.Read(fh)
	require.NoError(t, err)
	col, err := tab.Column(name)
	require.NoError(t, err)
	return col
}

func TestCorrections(t *testing.T) {
	tests := []struct {
		name  string
		flags func(dir string) []string
		check func(t *testing.T, out, book string)
	}{
		{
			name: "background",
			flags: func(dir string) []string {
				bg := filepath.Join(dir, "bg.csv")
				writeSpectrum(t, bg, 0, 2.25, 0.05)
				return []string{"-bg", bg}
			},
			check: func(t *testing.T, out, book string) {
				assert.Contains(t, book, "Background: ")
				assert.InDelta(t, 0, summaryColumn(t, out, "offset")[0], 1e-6)
				assert.InDelta(t, 5, summaryColumn(t, out, "amp")[0], 1e-6)
			},
		},
		{
			name: "deconvolve",
			flags: func(dir string) []string {
				kernel := filepath.Join(dir, "kernel.dat")
				require.NoError(t, os.WriteFile(kernel, []byte("# t\tk\n0 1\n1 0\n2 0\n"), 0o644))
				return []string{"-kernel", kernel, "-eps", "1e-3"}
			},
			check: func(t *testing.T, out, book string) {
				assert.Contains(t, book, "Deconvolving ")
				// A delta kernel only scales by 1/(1+eps).
				assert.InDelta(t, 5/1.001, summaryColumn(t, out, "amp")[0], 1e-4)
				assert.InDelta(t, 2.25, summaryColumn(t, out, "f0")[0], 1e-6)
			},
		},
		{
			name: "binned",
			flags: func(string) []string {
				return []string{"-bin", "0.01"}
			},
			check: func(t *testing.T, out, book string) {
				assert.InDelta(t, 2.25, summaryColumn(t, out, "f0")[0], 2e-3)
				assert.InDelta(t, 0.05, summaryColumn(t, out, "fwhm")[0], 5e-3)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := writeConfig(t, dir)
			data := filepath.Join(dir, "s.csv")
			writeSpectrum(t, data, 5, 2.25, 0.05)

			args := append([]string{"-config", cfg}, tt.flags(dir)...)
			var stderr bytes.Buffer
			require.NoError(t, run(append(args, data), &stderr), stderr.String())

			out := sessionDir(t, dir)
			book, err := os.ReadFile(filepath.Join(out, "log.txt"))
			require.NoError(t, err)
			tt.check(t, out, string(book))
		})
	}
}

func TestFitOMIT(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	truth := models.OMITParams(1, 0.5, 0.01, 0.1, 0.05, 1)
	var b strings.Builder
	b.WriteString("# detuning\ttransmission\n")
	for i := 0; i <= 600; i++ {
		x := -3 + 6*float64(i)/600
		fmt.Fprintf(&b, "%g\t%.12g\n", x, models.OMIT(x, truth.Values()))
	}
	data := filepath.Join(dir, "omit.dat")
	require.NoError(t, os.WriteFile(data, []byte(b.String()), 0o644))

	var stderr bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, "-model", "omit", data}, &stderr), stderr.String())

	out := sessionDir(t, dir)
	assert.FileExists(t, filepath.Join(out, "omit.png"))
	assert.InDelta(t, 1, summaryColumn(t, out, "kappa")[0], 0.25)
	assert.InDelta(t, 1, summaryColumn(t, out, "scale")[0], 0.05)
}

func TestFailedSetIsStillLogged(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	good := filepath.Join(dir, "a.csv")
	writeSpectrum(t, good, 5, 2.25, 0.05)
	short := filepath.Join(dir, "short.dat")
	require.NoError(t, os.WriteFile(short, []byte("# f\tv\n2.2 1\n2.25 6\n2.3 1\n"), 0o644))

	var stderr bytes.Buffer
	require.NoError(t, run([]string{"-config", cfg, good, short}, &stderr), stderr.String())

	out := sessionDir(t, dir)
	book, err := os.ReadFile(filepath.Join(out, "log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(book), "Set 1 \t short.dat")
	assert.Contains(t, string(book), "short.dat: fit failed")
	assert.Len(t, summaryColumn(t, out, "f0"), 1)
}

func TestGroupSets(t *testing.T) {
	sets := make([]set, 5)
	assert.Len(t, groupSets(sets, 0), 5)
	g := groupSets(sets, 2)
	require.Len(t, g, 3)
	assert.Len(t, g[2], 1)
	assert.Equal(t, "GHz", xUnit("Frequency (GHz)"))
	assert.Equal(t, "a.u.", xUnit("freq"))
}

func TestFlagErrors(t *testing.T) {
	var stderr bytes.Buffer
	assert.Error(t, run([]string{"-model", "gaussian", "x.csv"}, &stderr))
	assert.Error(t, run(nil, &stderr))
}
