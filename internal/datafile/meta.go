package datafile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// AxisMeta describes a swept axis.
type AxisMeta struct {
	Name   string  `toml:"name"`
	Unit   string  `toml:"unit"`
	Start  float64 `toml:"start"`
	Stop   float64 `toml:"stop"`
	Points int     `toml:"points"`
	Log    bool    `toml:"log"`
}

// Meta is the sidecar written next to every .dat file.
type Meta struct {
	Title      string            `toml:"title"`
	Created    time.Time         `toml:"created"`
	RunID      string            `toml:"run_id"`
	Instrument string            `toml:"instrument"`
	Sample     string            `toml:"sample"`
	Columns    []string          `toml:"columns"`
	Axes       []AxisMeta        `toml:"axes"`
	Notes      map[string]string `toml:"notes"`
}

// MetaPath returns the sidecar path for a data file.
func MetaPath(dataPath string) string {
	return strings.TrimSuffix(dataPath, filepath.Ext(dataPath)) + ".meta.toml"
}

// WriteMeta writes m to path.
func WriteMeta(path string, m Meta) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("datafile: encoding %s: %w", path, err)
	}

	return f.Close()
}

// ReadMeta reads a sidecar.
func ReadMeta(path string) (Meta, error) {
	var m Meta
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return Meta{}, fmt.Errorf("datafile: decoding %s: %w", path, err)
	}

	return m, nil
}

// Entry is one row of a meta.csv run index.
type Entry struct {
	Date      string
	Run       string
	Label     string
	Filepath  string
	Signal    string
	Frequency string
	Notes     string
}

// Power parses the leading number of the label, "12.5 mW ras" -> 12.5.
func (e Entry) Power() (float64, error) {
	fields := strings.Fields(e.Label)
	if len(fields) == 0 {
		return 0, fmt.Errorf("datafile: empty label")
	}

	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("datafile: label %q: %w", e.Label, err)
	}

	return v, nil
}

// Tag is the last word of the label, e.g. "ras" or "bs".
func (e Entry) Tag() string {
	fields := strings.Fields(e.Label)
	if len(fields) == 0 {
		return ""
	}

	return fields[len(fields)-1]
}

// Note parses the notes column as a number (we keep temperatures there).
func (e Entry) Note() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(e.Notes), 64)
}

// ReadIndex reads a meta.csv index. Label is required, as well as either
// Filepath or the Signal/Frequency pair used for lock-in runs.
func ReadIndex(r io.Reader) ([]Entry, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("datafile: index: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("datafile: index is empty")
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	if _, ok := col["Label"]; !ok {
		return nil, fmt.Errorf("datafile: index has no Label column")
	}
	_, hasPath := col["Filepath"]
	_, hasSig := col["Signal"]
	_, hasFreq := col["Frequency"]
	if !hasPath && !(hasSig && hasFreq) {
		return nil, fmt.Errorf("datafile: index needs Filepath or Signal and Frequency columns")
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []Entry
	for _, row := range rows[1:] {
		entries = append(entries, Entry{
			Date:      get(row, "Date"),
			Run:       get(row, "Run"),
			Label:     get(row, "Label"),
			Filepath:  get(row, "Filepath"),
			Signal:    get(row, "Signal"),
			Frequency: get(row, "Frequency"),
			Notes:     get(row, "Notes"),
		})
	}

	return entries, nil
}
