package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the settings shared by the qtlab tools.
type Config struct {
	Data       DataConfig
	Plot       PlotConfig
	Fit        FitConfig
	Instrument InstrumentConfig
	Sweep      SweepConfig
	Samples    map[string]SampleConfig
}

// DataConfig says where raw data lives.
type DataConfig struct {
	Dir   string
	Index string
}

// PlotConfig controls figure output.
type PlotConfig struct {
	Dir     string
	Formats []string
	Size    float64 // inches, square
	Preview bool
}

// FitConfig is passed through to the LM solver.
type FitConfig struct {
	Iterations   int
	ObjectiveTol float64
}

// InstrumentConfig describes how to reach the instrument used by sweep.
type InstrumentConfig struct {
	Address  string
	Timeout  time.Duration
	Retries  int
	Simulate bool
}

// SweepConfig holds the command templates for a generic set/measure sweep.
// Templates are fmt format strings; SetCommand gets the axis value.
type SweepConfig struct {
	SetCommand   string
	OuterCommand string
	QueryCommand string
	Settle       time.Duration
	Columns      []string
}

// Axes is a figure axis preset.
type Axes struct {
	XRange      []float64 `mapstructure:"xrange"`
	YRange      []float64 `mapstructure:"yrange"`
	XTicks      []float64 `mapstructure:"xticks"`
	YTicks      []float64 `mapstructure:"yticks"`
	XTickLabels []string  `mapstructure:"xticklabels"`
	YTickLabels []string  `mapstructure:"yticklabels"`
}

// SampleConfig is a per-sample preset: initial fit guesses and axis presets
// per figure name.
type SampleConfig struct {
	Name    string             `mapstructure:"name"`
	Guess   map[string]float64 `mapstructure:"guess"`
	Figures map[string]Axes    `mapstructure:"figures"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", "Data")
	v.SetDefault("data.index", "meta.csv")
	v.SetDefault("plot.dir", "plots")
	v.SetDefault("plot.formats", []string{"png", "svg", "pdf"})
	v.SetDefault("plot.size", 15.0)
	v.SetDefault("plot.preview", false)
	v.SetDefault("fit.iterations", 1000)
	v.SetDefault("fit.objectivetol", 1e-16)
	v.SetDefault("instrument.address", "")
	v.SetDefault("instrument.timeout", 5*time.Second)
	v.SetDefault("instrument.retries", 3)
	v.SetDefault("instrument.simulate", false)
	v.SetDefault("sweep.setcommand", "FREQ %g")
	v.SetDefault("sweep.outercommand", "POW %g")
	v.SetDefault("sweep.querycommand", "MEAS?")
	v.SetDefault("sweep.settle", 50*time.Millisecond)
	v.SetDefault("sweep.columns", []string{"signal"})

	// The two fiber samples we measure most.
	v.SetDefault("samples.lcof.name", "Liquid-Core")
	v.SetDefault("samples.lcof.guess", map[string]float64{"amp": 5, "fwhm": 0.2, "f0": 2.25})
	v.SetDefault("samples.uhna3.name", "UHNA3")
	v.SetDefault("samples.uhna3.guess", map[string]float64{"amp": 12, "fwhm": 0.2, "f0": 1.18})
}

// Load reads configuration from path (or qtlab.yaml in . and $HOME/.qtlab
// when path is empty) and QTLAB_* environment variables. A missing config
// file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("qtlab")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.qtlab")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("config loaded")
	}

	v.SetEnvPrefix("QTLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	for key, s := range c.Samples {
		for fig, ax := range s.Figures {
			if err := ax.validate(); err != nil {
				return nil, fmt.Errorf("config: samples.%s.figures.%s: %w", key, fig, err)
			}
		}
	}

	return &c, nil
}

func (a Axes) validate() error {
	if len(a.XRange) != 0 && len(a.XRange) != 2 {
		return errors.New("xrange needs two values")
	}
	if len(a.YRange) != 0 && len(a.YRange) != 2 {
		return errors.New("yrange needs two values")
	}
	if len(a.XTickLabels) != 0 && len(a.XTickLabels) != len(a.XTicks) {
		return fmt.Errorf("%d x tick labels for %d ticks", len(a.XTickLabels), len(a.XTicks))
	}
	if len(a.YTickLabels) != 0 && len(a.YTickLabels) != len(a.YTicks) {
		return fmt.Errorf("%d y tick labels for %d ticks", len(a.YTickLabels), len(a.YTicks))
	}

	return nil
}

// Sample returns the preset for key, if any.
func (c *Config) Sample(key string) (SampleConfig, bool) {
	s, ok := c.Samples[strings.ToLower(key)]
	return s, ok
}
