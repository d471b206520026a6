package datafile

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sourav-majumder/qtlab/internal/consts"
)

// ReadCSV reads an instrument CSV export, skipping the banner lines the
// instruments put above the table. Fields are trimmed.
func ReadCSV(r io.Reader, skip int) ([][]string, error) {
	br := bufio.NewReader(r)
	for i := 0; i < skip; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return nil, fmt.Errorf("datafile: skipping line %d: %w", i+1, err)
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("datafile: %w", err)
	}

	for _, row := range rows {
		for j := range row {
			row[j] = strings.TrimSpace(row[j])
		}
	}

	return rows, nil
}

// TraceFormat describes where the data sits in a CSV export. UnitCol < 0
// means the export carries no unit column.
type TraceFormat struct {
	Skip      int
	HasHeader bool
	XCol      int
	YCol      int
	UnitCol   int
}

// SpectrumAnalyzer is the layout of our spectrum analyzer exports:
// one banner line, a header row, then frequency, -, signal, unit.
var SpectrumAnalyzer = TraceFormat{Skip: 1, HasHeader: true, XCol: 0, YCol: 2, UnitCol: 3}

// Trace is a single x/y trace. Unit is the y unit reported by the
// instrument, if any.
type Trace struct {
	X    []float64
	Y    []float64
	Unit string
}

// ReadTrace reads one trace from a CSV export.
func ReadTrace(r io.Reader, f TraceFormat) (*Trace, error) {
	rows, err := ReadCSV(r, f.Skip)
	if err != nil {
		return nil, err
	}
	if f.HasHeader && len(rows) > 0 {
		rows = rows[1:]
	}

	tr := &Trace{}
	for i, row := range rows {
		if len(row) <= f.XCol || len(row) <= f.YCol {
			return nil, fmt.Errorf("datafile: row %d has %d fields", i+1, len(row))
		}
		x, err := strconv.ParseFloat(strings.ReplaceAll(row[f.XCol], " ", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("datafile: row %d: %w", i+1, err)
		}
		y, err := strconv.ParseFloat(strings.ReplaceAll(row[f.YCol], " ", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("datafile: row %d: %w", i+1, err)
		}
		tr.X = append(tr.X, x)
		tr.Y = append(tr.Y, y)

		if f.UnitCol >= 0 && f.UnitCol < len(row) && tr.Unit == "" {
			tr.Unit = row[f.UnitCol]
		}
	}
	if len(tr.X) == 0 {
		return nil, fmt.Errorf("datafile: trace has no rows")
	}

	return tr, nil
}

// Linear returns y on a linear nV scale. ok is false if the unit is not one
// we know how to convert, in which case y is returned unchanged.
func (tr *Trace) Linear() (y []float64, ok bool) {
	y = make([]float64, len(tr.Y))

	switch strings.ToLower(tr.Unit) {
	case "dbm":
		for i, v := range tr.Y {
			y[i] = consts.DBmToNanovolts(v)
		}
	case "uv":
		for i, v := range tr.Y {
			y[i] = 1000 * v
		}
	case "nv":
		copy(y, tr.Y)
	default:
		copy(y, tr.Y)
		return y, false
	}

	return y, true
}
