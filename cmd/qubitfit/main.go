// Command qubitfit analyses qubit time-domain data: it rotates the IQ trace
// onto one quadrature, optionally converts it to excited-state population
// with calibration traces, and fits Rabi, T1, Ramsey or echo curves.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sourav-majumder/qtlab/internal/cli"
	"github.com/sourav-majumder/qtlab/internal/config"
	"github.com/sourav-majumder/qtlab/internal/datafile"
	"github.com/sourav-majumder/qtlab/internal/fit"
	"github.com/sourav-majumder/qtlab/internal/models"
	"github.com/sourav-majumder/qtlab/internal/plotting"
	"github.com/sourav-majumder/qtlab/internal/preview"
	"github.com/sourav-majumder/qtlab/internal/session"
	"github.com/sourav-majumder/qtlab/internal/signal"
)

type options struct {
	config  string
	model   string
	note    string
	tcol    string
	icol    string
	qcol    string
	ground  string
	excited string
	preview bool
	verbose bool
	file    string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("qubitfit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.config, "config", "", "config file (default qtlab.yaml)")
	fs.StringVar(&o.model, "model", "rabi", "rabi, t1, ramsey or echo")
	fs.StringVar(&o.note, "note", "", "note to append folder name")
	fs.StringVar(&o.tcol, "t", "", "time column (default first)")
	fs.StringVar(&o.icol, "i", "", "I column (default second)")
	fs.StringVar(&o.qcol, "q", "", "Q column (default third)")
	fs.StringVar(&o.ground, "ground", "", "ground state calibration trace")
	fs.StringVar(&o.excited, "excited", "", "excited state calibration trace")
	fs.BoolVar(&o.preview, "preview", false, "open a gnuplot preview")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch o.model {
	case "rabi", "t1", "ramsey", "echo":
	default:
		return o, fmt.Errorf("unknown model %q", o.model)
	}
	if fs.NArg() != 1 {
		return o, errors.New("need exactly one data file")
	}
	if (o.ground == "") != (o.excited == "") {
		return o, errors.New("-ground and -excited go together")
	}
	o.file = fs.Arg(0)

	return o, nil
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("qubitfit")
	}
}

// iq is a time trace of both quadratures.
type iq struct {
	t, i, q []float64
}

func loadIQ(path, tcol, icol, qcol string) (iq, error) {
	fh, err := os.Open(path)
	if err != nil {
		return iq{}, err
	}
	defer fh.Close()

	tab, err := datafile.Read(fh)
	if err != nil {
		return iq{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(tab.Data) < 3 {
		return iq{}, fmt.Errorf("%s: need time, I and Q columns, have %d", path, len(tab.Data))
	}

	pick := func(name string, def int) ([]float64, error) {
		if name == "" {
			return tab.Col(def), nil
		}
		return tab.Column(name)
	}

	var d iq
	if d.t, err = pick(tcol, 0); err != nil {
		return iq{}, fmt.Errorf("%s: %w", path, err)
	}
	if d.i, err = pick(icol, 1); err != nil {
		return iq{}, fmt.Errorf("%s: %w", path, err)
	}
	if d.q, err = pick(qcol, 2); err != nil {
		return iq{}, fmt.Errorf("%s: %w", path, err)
	}

	return d, nil
}

func run(args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logger := cli.Logger(stderr, opts.verbose)

	cfg, err := config.Load(opts.config)
	if err != nil {
		return err
	}

	data, err := loadIQ(opts.file, opts.tcol, opts.icol, opts.qcol)
	if err != nil {
		return err
	}

	sess, err := session.New(cfg.Plot.Dir, opts.note, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Error().Err(err).Msg("writing log book")
		}
	}()
	sess.Logf("Data: %s", opts.file)

	ri, rq, theta, err := signal.RotateQuadrature(data.i, data.q)
	if err != nil {
		return err
	}
	sess.Logf("Rotation %.4f rad (%.2f deg)", theta, theta*180/math.Pi)

	y, ylabel := ri, "I' (a.u.)"
	if opts.ground != "" {
		y, err = population(sess, cfg.Plot, ri, theta, opts)
		if err != nil {
			return err
		}
		ylabel = "P(e)"
	}

	if err := saveIQ(sess, cfg.Plot, data, ri, rq); err != nil {
		return err
	}

	model, _ := models.Lookup(opts.model)
	ft := fit.New(model.Func, model.Guess(data.t, y))
	ft.Settings = cli.FitSettings(cfg.Fit)
	res, err := ft.Fit(data.t, y, nil)
	if err != nil {
		return fmt.Errorf("%s fit: %w", opts.model, err)
	}
	sess.Logf("%s", res.Report())
	reportDerived(sess, opts.model, res)

	fitT := floats.Span(make([]float64, 1000), floats.Min(data.t), floats.Max(data.t))
	fitY := res.Eval(fitT)
	p := plotting.New(title(opts.model), "Time", ylabel, "", cli.Axes(cfg, "qubit", opts.model))
	if err := plotting.DataWithFit(p, data.t, y, fitT, fitY, 0, "data"); err != nil {
		return err
	}
	if err := cli.SaveFigure(sess, cfg.Plot, p, opts.model); err != nil {
		return err
	}

	if opts.preview || cfg.Plot.Preview {
		err := preview.Show(title(opts.model), "Time", ylabel,
			preview.Group{Name: "data", X: data.t, Y: y},
			preview.Group{Name: "fit", Style: "lines", X: fitT, Y: fitY})
		if err != nil {
			logger.Warn().Err(err).Msg("no preview")
		}
	}

	logger.Info().Str("dir", sess.Dir).Msg("done")
	return nil
}

// population rotates the calibration traces like the data and maps the data
// onto [0, 1] between their means. The rotated references go to the readout
// box plot.
func population(sess *session.Session, c config.PlotConfig, ri []float64, theta float64, opts options) ([]float64, error) {
	g, err := loadIQ(opts.ground, opts.tcol, opts.icol, opts.qcol)
	if err != nil {
		return nil, fmt.Errorf("ground: %w", err)
	}
	e, err := loadIQ(opts.excited, opts.tcol, opts.icol, opts.qcol)
	if err != nil {
		return nil, fmt.Errorf("excited: %w", err)
	}

	gi, _ := signal.Rotate(g.i, g.q, theta)
	ei, _ := signal.Rotate(e.i, e.q, theta)

	sess.Logf("Readout: ground %.4g ± %.2g, excited %.4g ± %.2g",
		stat.Mean(gi, nil), stat.StdDev(gi, nil), stat.Mean(ei, nil), stat.StdDev(ei, nil))
	p := plotting.New("Readout", "", "I' (a.u.)", "", nil)
	if err := plotting.AddBoxes(p, [][]float64{gi, ei}, []string{"ground", "excited"}, 0); err != nil {
		return nil, err
	}
	if err := cli.SaveFigure(sess, c, p, "readout"); err != nil {
		return nil, err
	}

	return signal.PopulationFromRefs(ri, gi, ei)
}

func reportDerived(sess *session.Session, model string, res *fit.Result) {
	switch model {
	case "rabi":
		if f := res.Value("freq"); f != 0 {
			sess.Logf("Rabi frequency %.6g, pi pulse %.6g", f, 1/(2*math.Abs(f)))
		}
	case "t1":
		sess.Logf("T1 = %.6g ± %.2g", res.Value("tau"), res.Stderr("tau"))
	case "ramsey":
		sess.Logf("T2* = %.6g ± %.2g, detuning %.6g", res.Value("tau"), res.Stderr("tau"), res.Value("freq"))
	case "echo":
		sess.Logf("T2 = %.6g ± %.2g", res.Value("tau"), res.Stderr("tau"))
	}
}

func title(model string) string {
	switch model {
	case "rabi":
		return "Rabi Oscillation"
	case "t1":
		return "Energy Relaxation"
	case "ramsey":
		return "Ramsey Fringes"
	default:
		return "Spin Echo"
	}
}

func saveIQ(sess *session.Session, c config.PlotConfig, d iq, ri, rq []float64) error {
	p := plotting.New("IQ", "I", "Q", "", nil)
	if err := plotting.AddScatter(p, d.i, d.q, 0, "raw"); err != nil {
		return err
	}
	if err := plotting.AddScatter(p, ri, rq, 8, "rotated"); err != nil {
		return err
	}

	return cli.SaveFigure(sess, c, p, "iq")
}
