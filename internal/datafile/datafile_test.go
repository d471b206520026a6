package datafile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, []string{"power (dBm)", "freq (Hz)", "S21"}, "VNA sweep\nrun 3")
	require.NoError(t, err)

	for _, p := range []float64{-20, -10} {
		for _, f := range []float64{5e9, 5.001e9, 5.002e9} {
			require.NoError(t, w.WriteRow(p, f, 0.1234567890123))
		}
		require.NoError(t, w.EndBlock())
	}
	require.NoError(t, w.EndBlock())
	require.NoError(t, w.Flush())
	assert.Equal(t, 6, w.Rows())

	tab, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"power (dBm)", "freq (Hz)", "S21"}, tab.Columns)
	assert.Equal(t, []string{"VNA sweep", "run 3"}, tab.Comments)
	assert.Equal(t, 6, tab.Len())
	assert.Equal(t, []int{0, 3}, tab.Blocks)
	assert.Equal(t, 0.1234567890123, tab.Col(2)[5])

	freq, err := tab.Column("freq (Hz)")
	require.NoError(t, err)
	assert.Equal(t, 5.002e9, freq[2])

	_, err = tab.Column("phase")
	assert.ErrorIs(t, err, ErrNoColumn)

	b, err := tab.Block(1)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, -10.0, b.Col(0)[0])

	_, err = tab.Block(2)
	assert.Error(t, err)
}

func TestWriterRejectsWrongArity(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, []string{"x", "y"})
	require.NoError(t, err)
	assert.Error(t, w.WriteRow(1))

	_, err = NewWriter(&buf, nil)
	assert.Error(t, err)
}

func TestReadWithoutHeader(t *testing.T) {
	in := "# lock-in trace\n\n1 2\n3 4\n\n\n5 6\n"
	tab, err := Read(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"c0", "c1"}, tab.Columns)
	assert.Equal(t, []int{0, 2}, tab.Blocks)
	assert.Equal(t, []float64{1, 3, 5}, tab.Col(0))
}

func TestCommentAfterBlankKeepsBlock(t *testing.T) {
	in := "# f\tv\n1 2\n3 4\n\n# power -20 dBm\n5 6\n7 8\n"
	tab, err := Read(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"f", "v"}, tab.Columns)
	assert.Equal(t, []int{0, 2}, tab.Blocks)
	assert.Contains(t, tab.Comments, "power -20 dBm")

	b, err := tab.Block(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7}, b.Col(0))
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader("1 2\n3\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = Read(strings.NewReader("1 x\n"))
	assert.Error(t, err)

	tab, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, tab.Len())
}

const spectrumExport = `Keysight export banner
Frequency, Span, Signal, Unit
2.200000000E+09, 0, -60.0, dBm
2.250000000E+09, 0, -50.0, dBm
2.300000000E+09, 0, -60.0, dBm
`

func TestReadTrace(t *testing.T) {
	tr, err := ReadTrace(strings.NewReader(spectrumExport), SpectrumAnalyzer)
	require.NoError(t, err)

	assert.Equal(t, []float64{2.2e9, 2.25e9, 2.3e9}, tr.X)
	assert.Equal(t, "dBm", tr.Unit)

	y, ok := tr.Linear()
	assert.True(t, ok)
	assert.InDelta(t, 1e3, y[0], 1e-9)
	assert.InDelta(t, 1e4, y[1], 1e-8)

	uv := &Trace{Y: []float64{1.5}, Unit: "uV"}
	y, ok = uv.Linear()
	assert.True(t, ok)
	assert.Equal(t, []float64{1500}, y)

	odd := &Trace{Y: []float64{1.5}, Unit: "W"}
	y, ok = odd.Linear()
	assert.False(t, ok)
	assert.Equal(t, []float64{1.5}, y)
}

func TestReadTraceErrors(t *testing.T) {
	_, err := ReadTrace(strings.NewReader("banner\nh\n"), SpectrumAnalyzer)
	assert.Error(t, err)

	_, err = ReadTrace(strings.NewReader("banner\nh,h,h,h\n1,0,x,dBm\n"), SpectrumAnalyzer)
	assert.Error(t, err)

	_, err = ReadTrace(strings.NewReader(""), SpectrumAnalyzer)
	assert.Error(t, err)
}

func TestMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dat := filepath.Join(dir, "sweep.dat")
	path := MetaPath(dat)
	assert.Equal(t, filepath.Join(dir, "sweep.meta.toml"), path)

	m := Meta{
		Title:      "Resonator power sweep",
		Created:    time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		RunID:      "0b7c4f2e",
		Instrument: "simulator",
		Sample:     "R3",
		Columns:    []string{"power", "freq", "mag"},
		Axes: []AxisMeta{
			{Name: "power", Unit: "dBm", Start: -40, Stop: 0, Points: 5},
			{Name: "freq", Unit: "Hz", Start: 5e9, Stop: 5.01e9, Points: 101, Log: false},
		},
		Notes: map[string]string{"fridge": "20 mK"},
	}
	require.NoError(t, WriteMeta(path, m))

	got, err := ReadMeta(path)
	require.NoError(t, err)
	assert.Equal(t, m.Title, got.Title)
	assert.True(t, m.Created.Equal(got.Created))
	assert.Equal(t, m.Axes, got.Axes)
	assert.Equal(t, m.Notes, got.Notes)
	assert.Equal(t, m.Columns, got.Columns)

	_, err = ReadMeta(filepath.Join(dir, "missing.meta.toml"))
	assert.Error(t, err)
}

const index = `Date,Run,Label,Filepath,Notes
2023-Oct-30,2,0 mW bas,bas.csv,20.5
2023-Oct-30,2,12.5 mW ras,ras.csv,21
2023-Oct-30,2,12.5 mW rs,rs.csv,21
`

func TestReadIndex(t *testing.T) {
	entries, err := ReadIndex(strings.NewReader(index))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "2", entries[0].Run)
	assert.Equal(t, "bas", entries[0].Tag())
	assert.Equal(t, "ras.csv", entries[1].Filepath)

	p, err := entries[1].Power()
	require.NoError(t, err)
	assert.Equal(t, 12.5, p)

	temp, err := entries[0].Note()
	require.NoError(t, err)
	assert.Equal(t, 20.5, temp)

	_, err = Entry{Label: "bas"}.Power()
	assert.Error(t, err)
	_, err = Entry{}.Power()
	assert.Error(t, err)
	assert.Equal(t, "", Entry{}.Tag())
}

func TestReadIndexRequiresColumns(t *testing.T) {
	_, err := ReadIndex(strings.NewReader("Date,Filepath\nx,y\n"))
	assert.ErrorContains(t, err, "Label")

	_, err = ReadIndex(strings.NewReader("Label,Signal\nx,y\n"))
	assert.ErrorContains(t, err, "Filepath")

	entries, err := ReadIndex(strings.NewReader("Label,Signal,Frequency\n1 mW rs,s.csv,f.csv\n"))
	require.NoError(t, err)
	assert.Equal(t, "f.csv", entries[0].Frequency)

	_, err = ReadIndex(strings.NewReader(""))
	assert.Error(t, err)
}
