// Package datafile reads and writes the flat files our measurements end up
// in: whitespace-delimited .dat sweeps (gnuplot style, blank lines between
// blocks), CSV traces exported by the instruments, TOML metadata sidecars
// and the meta.csv index that lists the traces of a run.
package datafile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrNoColumn = errors.New("datafile: no such column")

// Table is a parsed .dat file. Data is column-major.
type Table struct {
	Columns  []string
	Data     [][]float64
	Blocks   []int
	Comments []string
}

// Len is the number of rows.
func (t *Table) Len() int {
	if len(t.Data) == 0 {
		return 0
	}
	return len(t.Data[0])
}

// Col returns column i.
func (t *Table) Col(i int) []float64 {
	return t.Data[i]
}

// Column returns the column with the given name.
func (t *Table) Column(name string) ([]float64, error) {
	for i, c := range t.Columns {
		if c == name {
			return t.Data[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %q (have %s)", ErrNoColumn, name, strings.Join(t.Columns, ", "))
}

// Block returns the rows of block k as their own table.
func (t *Table) Block(k int) (*Table, error) {
	if k < 0 || k >= len(t.Blocks) {
		return nil, fmt.Errorf("datafile: block %d out of range (%d blocks)", k, len(t.Blocks))
	}

	lo := t.Blocks[k]
	hi := t.Len()
	if k+1 < len(t.Blocks) {
		hi = t.Blocks[k+1]
	}

	b := &Table{Columns: t.Columns, Blocks: []int{0}}
	for _, col := range t.Data {
		b.Data = append(b.Data, col[lo:hi])
	}

	return b, nil
}

// Read parses a .dat file. A comment line directly above the first data row
// names the columns; otherwise they are called c0, c1, ...
func Read(r io.Reader) (*Table, error) {
	t := &Table{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var lastComment string
	prevComment, prevBlank := false, false
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())

		switch {
		case line == "":
			prevBlank, prevComment = true, false
			continue
		case strings.HasPrefix(line, "#"):
			lastComment = strings.TrimSpace(strings.TrimPrefix(line, "#"))
			t.Comments = append(t.Comments, lastComment)
			prevComment = true
			continue
		}

		fields := strings.Fields(line)
		if t.Data == nil {
			if prevComment && len(headerFields(lastComment)) == len(fields) {
				t.Columns = headerFields(lastComment)
				t.Comments = t.Comments[:len(t.Comments)-1]
			} else {
				for i := range fields {
					t.Columns = append(t.Columns, "c"+strconv.Itoa(i))
				}
			}
			t.Data = make([][]float64, len(fields))
			t.Blocks = []int{0}
		} else if prevBlank {
			t.Blocks = append(t.Blocks, t.Len())
		}
		prevBlank, prevComment = false, false

		if len(fields) != len(t.Data) {
			return nil, fmt.Errorf("datafile: line %d: %d values, want %d", lineNo, len(fields), len(t.Data))
		}
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("datafile: line %d: %w", lineNo, err)
			}
			t.Data[i] = append(t.Data[i], v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("datafile: %w", err)
	}

	return t, nil
}

func headerFields(s string) []string {
	if strings.Contains(s, "\t") {
		var out []string
		for _, f := range strings.Split(s, "\t") {
			out = append(out, strings.TrimSpace(f))
		}
		return out
	}

	return strings.Fields(s)
}

// Writer writes .dat files that Read understands.
type Writer struct {
	w       *bufio.Writer
	ncol    int
	inBlock int
	rows    int
}

// NewWriter writes comments and the column header.
func NewWriter(w io.Writer, columns []string, comments ...string) (*Writer, error) {
	if len(columns) == 0 {
		return nil, errors.New("datafile: no columns")
	}

	dw := &Writer{w: bufio.NewWriter(w), ncol: len(columns)}
	for _, c := range comments {
		for _, line := range strings.Split(c, "\n") {
			if _, err := fmt.Fprintf(dw.w, "# %s\n", line); err != nil {
				return nil, err
			}
		}
	}
	if _, err := fmt.Fprintf(dw.w, "# %s\n", strings.Join(columns, "\t")); err != nil {
		return nil, err
	}

	return dw, nil
}

// WriteRow writes one row.
func (dw *Writer) WriteRow(vals ...float64) error {
	if len(vals) != dw.ncol {
		return fmt.Errorf("datafile: row has %d values, want %d", len(vals), dw.ncol)
	}

	for i, v := range vals {
		if i > 0 {
			if err := dw.w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := dw.w.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return err
		}
	}
	dw.inBlock++
	dw.rows++

	return dw.w.WriteByte('\n')
}

// EndBlock closes the current block with a blank line. Empty blocks are
// not written.
func (dw *Writer) EndBlock() error {
	if dw.inBlock == 0 {
		return nil
	}
	dw.inBlock = 0

	return dw.w.WriteByte('\n')
}

// Rows is the number of rows written so far.
func (dw *Writer) Rows() int {
	return dw.rows
}

// Flush flushes buffered rows to the underlying writer.
func (dw *Writer) Flush() error {
	return dw.w.Flush()
}
