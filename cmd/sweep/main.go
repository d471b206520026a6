// Command sweep steps an instrument through a 1D or 2D sweep and records the
// readings to a .dat file with a TOML sidecar in a fresh session folder.
//
// Commands come from the sweep section of the configuration. With -sim the
// run talks to a built-in resonator simulator instead of hardware, and with
// -serve the simulator is exposed on a TCP port for other tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sourav-majumder/qtlab/internal/cli"
	"github.com/sourav-majumder/qtlab/internal/config"
	"github.com/sourav-majumder/qtlab/internal/datafile"
	"github.com/sourav-majumder/qtlab/internal/instrument"
	"github.com/sourav-majumder/qtlab/internal/plotting"
	"github.com/sourav-majumder/qtlab/internal/session"
	"github.com/sourav-majumder/qtlab/internal/sweep"
)

type options struct {
	config  string
	addr    string
	inner   string
	outer   string
	name    string
	unit    string
	oname   string
	ounit   string
	logAxis bool
	out     string
	note    string
	sample  string
	serve   string
	sim     bool
	seed    uint64
	verbose bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.config, "config", "", "config file (default qtlab.yaml)")
	fs.StringVar(&o.addr, "addr", "", "instrument address, overrides the config")
	fs.StringVar(&o.inner, "sweep", "", "inner axis as start:stop:points")
	fs.StringVar(&o.outer, "outer", "", "outer axis as start:stop:points, for 2D sweeps")
	fs.StringVar(&o.name, "name", "freq", "inner axis name")
	fs.StringVar(&o.unit, "unit", "Hz", "inner axis unit")
	fs.StringVar(&o.oname, "oname", "power", "outer axis name")
	fs.StringVar(&o.ounit, "ounit", "dBm", "outer axis unit")
	fs.BoolVar(&o.logAxis, "log", false, "logarithmic inner axis")
	fs.StringVar(&o.out, "out", "sweep.dat", "data file name inside the session folder")
	fs.StringVar(&o.note, "note", "", "note to append folder name")
	fs.StringVar(&o.sample, "sample", "", "sample name for the metadata")
	fs.StringVar(&o.serve, "serve", "", "serve the simulator on this address instead of sweeping")
	fs.BoolVar(&o.sim, "sim", false, "use the built-in simulator")
	fs.Uint64Var(&o.seed, "seed", 1, "simulator noise seed")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.serve == "" && o.inner == "" {
		return o, errors.New("need -sweep start:stop:points")
	}

	return o, nil
}

// parseAxis reads "start:stop:points".
func parseAxis(name, unit, spec string, logScale bool) (sweep.Axis, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return sweep.Axis{}, fmt.Errorf("axis %s: want start:stop:points, got %q", name, spec)
	}

	start, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return sweep.Axis{}, fmt.Errorf("axis %s: %w", name, err)
	}
	stop, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return sweep.Axis{}, fmt.Errorf("axis %s: %w", name, err)
	}
	points, err := strconv.Atoi(parts[2])
	if err != nil {
		return sweep.Axis{}, fmt.Errorf("axis %s: %w", name, err)
	}

	a := sweep.Axis{Name: name, Unit: unit, Start: start, Stop: stop, Points: points, Log: logScale}
	if _, err := a.Values(); err != nil {
		return sweep.Axis{}, err
	}

	return a, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("sweep")
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logger := cli.Logger(stderr, opts.verbose)

	cfg, err := config.Load(opts.config)
	if err != nil {
		return err
	}
	cmds := instrument.Commands{
		SetFrequency: cfg.Sweep.SetCommand,
		SetPower:     cfg.Sweep.OuterCommand,
		Measure:      cfg.Sweep.QueryCommand,
	}

	if opts.serve != "" {
		return serve(ctx, opts, cmds, logger)
	}

	inner, err := parseAxis(opts.name, opts.unit, opts.inner, opts.logAxis)
	if err != nil {
		return err
	}
	var outer *sweep.Axis
	if opts.outer != "" {
		a, err := parseAxis(opts.oname, opts.ounit, opts.outer, false)
		if err != nil {
			return err
		}
		outer = &a
	}

	conn, err := connect(ctx, opts, cfg, cmds, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	id, err := instrument.Identify(ctx, conn)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	logger.Info().Str("idn", id.String()).Msg("connected")

	sess, err := session.New(cfg.Plot.Dir, opts.note, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Error().Err(err).Msg("writing log book")
		}
	}()

	return record(ctx, sess, cfg, opts, conn, id, inner, outer)
}

func connect(ctx context.Context, opts options, cfg *config.Config, cmds instrument.Commands, logger zerolog.Logger) (instrument.Conn, error) {
	if opts.sim || cfg.Instrument.Simulate {
		logger.Info().Uint64("seed", opts.seed).Msg("using simulator")
		return instrument.NewSimulator(instrument.DefaultResonator(), cmds, opts.seed), nil
	}

	addr := opts.addr
	if addr == "" {
		addr = cfg.Instrument.Address
	}
	if addr == "" {
		return nil, errors.New("no instrument address (set instrument.address, -addr or -sim)")
	}

	conn, err := instrument.Dial(ctx, addr, instrument.Options{Timeout: cfg.Instrument.Timeout})
	if err != nil {
		return nil, err
	}

	return instrument.WithRetry(conn, instrument.RetryPolicy{
		Attempts: cfg.Instrument.Retries,
		Initial:  100 * time.Millisecond,
		Max:      2 * time.Second,
	}, logger), nil
}

func record(ctx context.Context, sess *session.Session, cfg *config.Config, opts options, conn instrument.Conn, id instrument.Identity, inner sweep.Axis, outer *sweep.Axis) error {
	axes := []sweep.Axis{inner}
	if outer != nil {
		axes = []sweep.Axis{*outer, inner}
	}
	columns := sweep.Columns(cfg.Sweep.Columns, axes...)

	path := sess.Path(opts.out)
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	w, err := datafile.NewWriter(fh, columns, "qtlab sweep "+sess.RunID.String(), "instrument "+id.String())
	if err != nil {
		return err
	}

	logger := sess.Logger()
	runner := sweep.Runner{Settle: cfg.Sweep.Settle, Logger: logger}
	set := sweep.SetCommand(conn, cfg.Sweep.SetCommand)
	measure := sweep.QueryCommand(conn, cfg.Sweep.QueryCommand)

	started := time.Now()
	if outer == nil {
		err = runner.Run1D(ctx, inner, set, measure, w)
	} else {
		err = runner.Run2D(ctx, *outer, inner, sweep.SetCommand(conn, cfg.Sweep.OuterCommand), set, measure, w)
	}

	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return err
	}
	sess.Logf("Recorded %d points to %s in %s", w.Rows(), opts.out, time.Since(started).Round(time.Millisecond))

	meta := datafile.Meta{
		Title:      opts.note,
		Created:    sess.Started,
		RunID:      sess.RunID.String(),
		Instrument: id.String(),
		Sample:     opts.sample,
		Columns:    columns,
		Notes: map[string]string{
			"set":   cfg.Sweep.SetCommand,
			"query": cfg.Sweep.QueryCommand,
		},
	}
	for _, a := range axes {
		meta.Axes = append(meta.Axes, a.Meta())
	}
	if outer != nil {
		meta.Notes["outer"] = cfg.Sweep.OuterCommand
	}
	if interrupted {
		meta.Notes["interrupted"] = "true"
		logger.Warn().Int("rows", w.Rows()).Msg("sweep interrupted, keeping partial data")
	}
	if err := datafile.WriteMeta(datafile.MetaPath(path), meta); err != nil {
		return err
	}
	if err := fh.Close(); err != nil {
		return err
	}

	return plotSweep(sess, cfg, path, outer != nil)
}

// plotSweep reads the data back and draws the last column against the
// inner axis, one curve per block.
func plotSweep(sess *session.Session, cfg *config.Config, path string, twoD bool) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	tab, err := datafile.Read(fh)
	if err != nil {
		return err
	}
	if tab.Len() == 0 {
		return nil
	}

	xi := 0
	if twoD {
		xi = 1
	}
	yi := len(tab.Columns) - 1

	p := plotting.New("", tab.Columns[xi], tab.Columns[yi], "", nil)
	for k := range tab.Blocks {
		b, err := tab.Block(k)
		if err != nil {
			return err
		}
		label := ""
		if twoD {
			label = fmt.Sprintf("%g", b.Col(0)[0])
		}
		if err := plotting.AddLine(p, b.Col(xi), b.Col(yi), k*4, label); err != nil {
			return err
		}
	}

	return cli.SaveFigure(sess, cfg.Plot, p, "sweep")
}

func serve(ctx context.Context, opts options, cmds instrument.Commands, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", opts.serve)
	if err != nil {
		return err
	}
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving simulator")

	sim := instrument.NewSimulator(instrument.DefaultResonator(), cmds, opts.seed)
	return instrument.Serve(ctx, ln, sim, logger)
}
