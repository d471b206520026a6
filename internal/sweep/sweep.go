// Package sweep steps instrument settings along one or two axes and records
// a measurement at every point into a .dat file, one block per inner sweep.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/sourav-majumder/qtlab/internal/datafile"
	"github.com/sourav-majumder/qtlab/internal/instrument"
)

var (
	ErrPoints = errors.New("sweep: axis needs at least one point")
	ErrLog    = errors.New("sweep: log axis needs positive limits")
)

// Axis is one swept quantity.
type Axis struct {
	Name   string
	Unit   string
	Start  float64
	Stop   float64
	Points int
	Log    bool
}

// Values returns the setpoints, evenly spaced in value or in log(value).
func (a Axis) Values() ([]float64, error) {
	if a.Points < 1 {
		return nil, fmt.Errorf("%w: %s has %d", ErrPoints, a.Name, a.Points)
	}
	if a.Log && (a.Start <= 0 || a.Stop <= 0) {
		return nil, fmt.Errorf("%w: %s from %g to %g", ErrLog, a.Name, a.Start, a.Stop)
	}
	if a.Points == 1 {
		return []float64{a.Start}, nil
	}

	vals := make([]float64, a.Points)
	if a.Log {
		return floats.LogSpan(vals, a.Start, a.Stop), nil
	}
	return floats.Span(vals, a.Start, a.Stop), nil
}

// Meta describes the axis for the data sidecar.
func (a Axis) Meta() datafile.AxisMeta {
	return datafile.AxisMeta{Name: a.Name, Unit: a.Unit, Start: a.Start, Stop: a.Stop, Points: a.Points, Log: a.Log}
}

// Setter moves the instrument to v.
type Setter func(ctx context.Context, v float64) error

// Measurer reads the values recorded at one point.
type Measurer func(ctx context.Context) ([]float64, error)

// Runner runs sweeps. Settle is the wait between setting a point and
// measuring it.
type Runner struct {
	Settle time.Duration
	Logger zerolog.Logger
}

// Run1D sweeps axis and writes rows [value, measured...]. When ctx is
// cancelled the sweep stops after the current point; the rows taken so far
// are flushed and ctx.Err() is returned.
func (r Runner) Run1D(ctx context.Context, axis Axis, set Setter, measure Measurer, w *datafile.Writer) error {
	values, err := axis.Values()
	if err != nil {
		return err
	}

	err = r.line(ctx, axis, values, nil, set, measure, w)
	return finish(w, err)
}

// Run2D sweeps inner once for every value of outer and writes rows
// [outer, inner, measured...], ending a block after each inner sweep.
func (r Runner) Run2D(ctx context.Context, outer, inner Axis, setOuter, setInner Setter, measure Measurer, w *datafile.Writer) error {
	outerValues, err := outer.Values()
	if err != nil {
		return err
	}
	innerValues, err := inner.Values()
	if err != nil {
		return err
	}

	for i, ov := range outerValues {
		if err := ctx.Err(); err != nil {
			return finish(w, err)
		}
		if err := setOuter(ctx, ov); err != nil {
			return finish(w, fmt.Errorf("sweep: setting %s to %g: %w", outer.Name, ov, err))
		}
		r.Logger.Info().Str("axis", outer.Name).Float64("value", ov).Int("step", i+1).Int("of", len(outerValues)).Msg("outer step")

		if err := r.line(ctx, inner, innerValues, []float64{ov}, setInner, measure, w); err != nil {
			return finish(w, err)
		}
	}

	return finish(w, nil)
}

// line runs one inner sweep and closes its block.
func (r Runner) line(ctx context.Context, axis Axis, values, prefix []float64, set Setter, measure Measurer, w *datafile.Writer) error {
	for _, v := range values {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := set(ctx, v); err != nil {
			return fmt.Errorf("sweep: setting %s to %g: %w", axis.Name, v, err)
		}
		if err := r.settle(ctx); err != nil {
			return err
		}

		got, err := measure(ctx)
		if err != nil {
			return fmt.Errorf("sweep: measuring at %s=%g: %w", axis.Name, v, err)
		}

		row := make([]float64, 0, len(prefix)+1+len(got))
		row = append(row, prefix...)
		row = append(row, v)
		row = append(row, got...)
		if err := w.WriteRow(row...); err != nil {
			return err
		}
		r.Logger.Debug().Str("axis", axis.Name).Float64("value", v).Floats64("measured", got).Msg("point")
	}

	if err := w.EndBlock(); err != nil {
		return err
	}
	return w.Flush()
}

func (r Runner) settle(ctx context.Context) error {
	if r.Settle <= 0 {
		return nil
	}
	t := time.NewTimer(r.Settle)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func finish(w *datafile.Writer, err error) error {
	// Keep whatever was measured, even on failure.
	_ = w.EndBlock()
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// SetCommand returns a Setter writing template (a fmt format with one
// numeric verb) filled in with the setpoint.
func SetCommand(conn instrument.Conn, template string) Setter {
	return func(ctx context.Context, v float64) error {
		return conn.Write(ctx, fmt.Sprintf(template, v))
	}
}

// QueryCommand returns a Measurer sending cmd and parsing a list of numbers.
func QueryCommand(conn instrument.Conn, cmd string) Measurer {
	return func(ctx context.Context) ([]float64, error) {
		return instrument.QueryFloats(ctx, conn, cmd)
	}
}

// Columns is the .dat header for a sweep over axes recording measured.
func Columns(measured []string, axes ...Axis) []string {
	cols := make([]string, 0, len(axes)+len(measured))
	for _, a := range axes {
		name := a.Name
		if a.Unit != "" {
			name += " (" + a.Unit + ")"
		}
		cols = append(cols, name)
	}
	return append(cols, measured...)
}
