package instrument

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
)

// Resonator describes the device the simulator pretends to measure: a
// Lorentzian dip in transmitted power whose centre is pulled down by the
// drive power (Kerr shift, in Hz per mW).
type Resonator struct {
	F0       float64
	FWHM     float64
	Depth    float64
	Baseline float64
	Kerr     float64
	Noise    float64
}

// DefaultResonator is a 5 GHz mode with a 2 MHz linewidth.
func DefaultResonator() Resonator {
	return Resonator{F0: 5e9, FWHM: 2e6, Depth: 0.8, Baseline: 1, Kerr: 1e5, Noise: 0.005}
}

// Response is the noiseless transmission at frequency f and power p (dBm).
func (r Resonator) Response(f, p float64) float64 {
	f0 := r.F0 - r.Kerr*math.Pow(10, p/10)
	hw := r.FWHM / 2
	d := f - f0
	return r.Baseline - r.Depth*hw*hw/(d*d+hw*hw)
}

// Commands are the fmt templates the simulator answers to.
type Commands struct {
	SetFrequency string // e.g. "FREQ %g"
	SetPower     string // e.g. "POW %g"
	Measure      string // e.g. "MEAS?"
}

// Simulator is an in-process Conn backed by a Resonator.
type Simulator struct {
	mu     sync.Mutex
	res    Resonator
	cmds   Commands
	rng    *rand.Rand
	freq   float64
	power  float64
	writes int
	closed bool
}

// NewSimulator returns a simulator with its own seeded noise source, so runs
// with the same seed produce the same data.
func NewSimulator(res Resonator, cmds Commands, seed uint64) *Simulator {
	return &Simulator{
		res:   res,
		cmds:  cmds,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		freq:  res.F0,
		power: -30,
	}
}

// State returns the current frequency and power settings.
func (s *Simulator) State() (freq, power float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freq, s.power
}

// Writes counts accepted writes.
func (s *Simulator) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Simulator) Write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	cmd = strings.TrimSpace(cmd)
	switch {
	case scan(s.cmds.SetFrequency, cmd, &s.freq):
	case scan(s.cmds.SetPower, cmd, &s.power):
	case cmd == "*RST":
		s.freq, s.power = s.res.F0, -30
	case cmd == "*CLS":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	s.writes++
	return nil
}

func (s *Simulator) Query(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	switch cmd = strings.TrimSpace(cmd); cmd {
	case "*IDN?":
		return "qtlab,Simulator,0,1.0", nil
	case "*OPC?":
		return "1", nil
	case s.cmds.Measure:
		v := s.res.Response(s.freq, s.power) + s.res.Noise*s.rng.NormFloat64()
		return fmt.Sprintf("%g", v), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// scan parses cmd against a template with a single numeric verb.
func scan(template, cmd string, dst *float64) bool {
	if template == "" {
		return false
	}
	var v float64
	n, err := fmt.Sscanf(cmd, template, &v)
	if err != nil || n != 1 {
		return false
	}
	*dst = v
	return true
}
