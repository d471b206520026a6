// Command fitres fits resonance spectra (spectrum analyzer CSV exports or
// .dat sweeps) to a Lorentzian or OMIT line shape, plots every set with its
// fit and writes the fit report to the session log.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"

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
	sample  string
	note    string
	title   string
	bg      string
	kernel  string
	xcol    string
	ycol    string
	eps     float64
	bin     float64
	avg     int
	index   bool
	preview bool
	verbose bool
	files   []string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("fitres", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.config, "config", "", "config file (default qtlab.yaml)")
	fs.StringVar(&o.model, "model", "lorentzian", "line shape: lorentzian or omit")
	fs.StringVar(&o.sample, "sample", "", "sample preset for guesses and axes (e.g. lcof, uhna3)")
	fs.StringVar(&o.note, "note", "", "note to append folder name")
	fs.StringVar(&o.title, "title", "", "figure title")
	fs.StringVar(&o.bg, "bg", "", "background trace to subtract")
	fs.StringVar(&o.kernel, "kernel", "", "instrument response to deconvolve")
	fs.StringVar(&o.xcol, "x", "", "x column of .dat input")
	fs.StringVar(&o.ycol, "y", "", "y column of .dat input")
	fs.Float64Var(&o.eps, "eps", 1e-3, "deconvolution regularization, relative to the peak response")
	fs.Float64Var(&o.bin, "bin", 0, "bin width in x units, 0 to keep every point")
	fs.IntVar(&o.avg, "avg", 0, "average every n consecutive files into one set")
	fs.BoolVar(&o.index, "index", false, "take the sets from the run index in the data folder")
	fs.BoolVar(&o.preview, "preview", false, "open a gnuplot preview")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.files = fs.Args()

	if o.model != "lorentzian" && o.model != "omit" {
		return o, fmt.Errorf("unknown model %q", o.model)
	}
	if !o.index && len(o.files) == 0 {
		return o, errors.New("no input files (or use -index)")
	}

	return o, nil
}

// set is one data file to fit and its legend label.
type set struct {
	path  string
	label string
	power float64
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("fitres")
	}
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

	sets, err := collectSets(opts, cfg)
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

	f := &fitter{opts: opts, cfg: cfg, sess: sess, logger: logger}
	if err := f.loadCorrections(); err != nil {
		return err
	}

	return f.fitAll(sets)
}

func collectSets(opts options, cfg *config.Config) ([]set, error) {
	if !opts.index {
		sets := make([]set, len(opts.files))
		for i, path := range opts.files {
			sets[i] = set{path: path, label: filepath.Base(path), power: math.NaN()}
		}
		return sets, nil
	}

	path := filepath.Join(cfg.Data.Dir, cfg.Data.Index)
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	entries, err := datafile.ReadIndex(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var sets []set
	for _, e := range entries {
		if e.Filepath == "" {
			log.Warn().Str("label", e.Label).Msg("skipping lock-in entry without a trace file")
			continue
		}
		p, err := e.Power()
		if err != nil {
			p = math.NaN()
		}
		sets = append(sets, set{path: filepath.Join(cfg.Data.Dir, e.Filepath), label: e.Label, power: p})
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%s: no sets with a trace file", path)
	}

	return sets, nil
}

type fitter struct {
	opts   options
	cfg    *config.Config
	sess   *session.Session
	logger zerolog.Logger

	bg     *cli.Series
	kernel []float64

	summary *datafile.Writer
	sumFile *os.File
}

func (f *fitter) loadCorrections() error {
	if f.opts.bg != "" {
		bg, err := cli.LoadSeries(f.opts.bg, f.opts.xcol, f.opts.ycol)
		if err != nil {
			return fmt.Errorf("background: %w", err)
		}
		f.bg = bg
		f.sess.Logf("Background: %s", f.opts.bg)
	}
	if f.opts.kernel != "" {
		k, err := cli.LoadSeries(f.opts.kernel, f.opts.xcol, f.opts.ycol)
		if err != nil {
			return fmt.Errorf("kernel: %w", err)
		}
		f.kernel = k.Y
		f.sess.Logf("Deconvolving %s, eps %g", f.opts.kernel, f.opts.eps)
	}

	return nil
}

func (f *fitter) fitAll(sets []set) error {
	model, _ := models.Lookup(f.opts.model)
	sample, hasSample := f.cfg.Sample(f.opts.sample)
	if f.opts.sample != "" && !hasSample {
		f.logger.Warn().Str("sample", f.opts.sample).Msg("no preset for sample")
	}

	var p *plotPlan
	var groups []preview.Group
	var tr trend
	var residuals []float64
	fitted := 0

	batches := groupSets(sets, f.opts.avg)
	for i, batch := range batches {
		s := batch[0]
		series, avgSigma, err := f.load(batch)
		if err != nil {
			return err
		}
		if p == nil {
			title := f.opts.title
			if title == "" && hasSample {
				title = sample.Name
			}
			p = newPlotPlan(title, series.XLabel, series.YLabel, cli.Axes(f.cfg, f.opts.sample, model.Name))
		}

		x, y, sigma, err := f.prepare(series, avgSigma)
		if err != nil {
			return fmt.Errorf("%s: %w", s.path, err)
		}

		params := model.Guess(x, y)
		if hasSample {
			if unknown := cli.ApplyGuess(params, sample.Guess); len(unknown) > 0 {
				f.logger.Debug().Strs("params", unknown).Msg("preset guesses not used by model")
			}
		}

		if !math.IsNaN(s.power) {
			f.sess.Logf("Set %d \t %.2f mW \t %s", i, s.power, s.label)
		} else {
			f.sess.Logf("Set %d \t %s", i, s.label)
		}
		if len(batch) > 1 {
			f.sess.Logf("Averaged %d traces", len(batch))
		}

		ft := fit.New(model.Func, params)
		ft.Settings = cli.FitSettings(f.cfg.Fit)
		res, err := ft.Fit(x, y, sigma)
		if err != nil {
			f.sess.Logf("%s: fit failed: %v", s.label, err)
			if err := p.add(x, y, sigma, nil, nil, i*4, s.label); err != nil {
				return err
			}
			continue
		}
		fitted++

		f.sess.Logf("%s", res.Report())
		if model.Name == "lorentzian" && res.Value("fwhm") > 0 {
			f.sess.Logf("Q = %.4g", res.Value("f0")/res.Value("fwhm"))
			if !math.IsNaN(s.power) {
				tr.add(s.power, res.Value("fwhm"), res.Stderr("fwhm"))
			}
		}
		residuals = append(residuals, res.Residual...)

		if err := f.record(i, s.power, res); err != nil {
			return err
		}

		fitX := floats.Span(make([]float64, 1000), floats.Min(x), floats.Max(x))
		fitY := res.Eval(fitX)
		if err := p.add(x, y, sigma, fitX, fitY, i*4, s.label); err != nil {
			return err
		}
		groups = append(groups,
			preview.Group{Name: s.label, Style: "points", X: x, Y: y},
			preview.Group{Name: s.label + " fit", Style: "lines", X: fitX, Y: fitY})
	}

	if err := f.closeSummary(); err != nil {
		return err
	}
	if err := cli.SaveFigure(f.sess, f.cfg.Plot, p.plot, model.Name); err != nil {
		return err
	}
	if len(residuals) > 0 {
		if err := f.saveResiduals(residuals); err != nil {
			return err
		}
	}
	if len(tr.power) >= 2 {
		if err := f.saveTrend(tr, p.plot.X.Label.Text); err != nil {
			return err
		}
	}
	f.logger.Info().Int("sets", len(batches)).Int("fitted", fitted).Str("dir", f.sess.Dir).Msg("done")

	if f.opts.preview || f.cfg.Plot.Preview {
		if err := preview.Show(p.plot.Title.Text, p.plot.X.Label.Text, p.plot.Y.Label.Text, groups...); err != nil {
			f.logger.Warn().Err(err).Msg("no preview")
		}
	}

	if fitted == 0 {
		return errors.New("no set could be fitted")
	}
	return nil
}

// groupSets splits sets into runs of n files to be averaged together.
func groupSets(sets []set, n int) [][]set {
	if n < 1 {
		n = 1
	}
	var out [][]set
	for len(sets) > 0 {
		k := min(n, len(sets))
		out = append(out, sets[:k])
		sets = sets[k:]
	}
	return out
}

// load reads a batch of traces and averages them. sigma is nil for a
// single trace.
func (f *fitter) load(batch []set) (*cli.Series, []float64, error) {
	first, err := cli.LoadSeries(batch[0].path, f.opts.xcol, f.opts.ycol)
	if err != nil {
		return nil, nil, err
	}
	if len(batch) == 1 {
		return first, nil, nil
	}

	traces := [][]float64{first.Y}
	for _, s := range batch[1:] {
		series, err := cli.LoadSeries(s.path, f.opts.xcol, f.opts.ycol)
		if err != nil {
			return nil, nil, err
		}
		traces = append(traces, series.Y)
	}
	mean, sigma, err := signal.Average(traces)
	if err != nil {
		return nil, nil, fmt.Errorf("averaging from %s: %w", batch[0].path, err)
	}
	first.Y = mean

	return first, sigma, nil
}

// prepare applies background subtraction, deconvolution and binning.
func (f *fitter) prepare(s *cli.Series, avgSigma []float64) (x, y, sigma []float64, err error) {
	x, y, sigma = s.X, s.Y, avgSigma
	if f.bg != nil {
		if y, err = signal.SubtractBackground(x, y, f.bg.X, f.bg.Y); err != nil {
			return nil, nil, nil, err
		}
	}
	if f.kernel != nil {
		if y, err = signal.Deconvolve(y, f.kernel, f.opts.eps); err != nil {
			return nil, nil, nil, err
		}
	}
	if f.opts.bin > 0 {
		b, err := signal.Bin(x, y, f.opts.bin)
		if err != nil {
			return nil, nil, nil, err
		}
		return b.X, b.Y, b.Sigma, nil
	}

	return x, y, sigma, nil
}

// record appends one row to summary.dat in the session folder.
func (f *fitter) record(set int, power float64, res *fit.Result) error {
	names := res.Params.Names()
	if f.summary == nil {
		cols := []string{"set", "power"}
		for _, n := range names {
			cols = append(cols, n, n+"_err")
		}
		cols = append(cols, "redchi")

		fh, err := os.Create(f.sess.Path("summary.dat"))
		if err != nil {
			return err
		}
		w, err := datafile.NewWriter(fh, cols, "fit summary, model "+f.opts.model)
		if err != nil {
			fh.Close()
			return err
		}
		f.summary, f.sumFile = w, fh
	}

	row := []float64{float64(set), power}
	for _, n := range names {
		row = append(row, res.Value(n), res.Stderr(n))
	}
	row = append(row, res.Redchi)

	return f.summary.WriteRow(row...)
}

func (f *fitter) closeSummary() error {
	if f.summary == nil {
		return nil
	}
	if err := f.summary.Flush(); err != nil {
		f.sumFile.Close()
		return err
	}
	return f.sumFile.Close()
}
