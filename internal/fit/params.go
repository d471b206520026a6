package fit

import (
	"fmt"
	"math"
)

// Param is a single named model parameter.
type Param struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
	Vary  bool

	// Stderr is filled in by Fit when a covariance could be estimated.
	Stderr float64
}

func (p Param) bounded() bool {
	return !math.IsInf(p.Min, -1) || !math.IsInf(p.Max, 1)
}

// Values maps parameter names to values. Models read from it by name.
type Values map[string]float64

// Params is an ordered set of parameters.
type Params struct {
	order  []string
	byName map[string]*Param
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{byName: map[string]*Param{}}
}

// Add adds an unbounded, varying parameter. Adding an existing name resets
// it.
func (ps *Params) Add(name string, value float64) *Params {
	if _, ok := ps.byName[name]; !ok {
		ps.order = append(ps.order, name)
	}
	ps.byName[name] = &Param{
		Name:  name,
		Value: value,
		Min:   math.Inf(-1),
		Max:   math.Inf(1),
		Vary:  true,
	}

	return ps
}

// Bound constrains name to [lo, hi]. Use ±Inf for a one-sided bound.
func (ps *Params) Bound(name string, lo, hi float64) *Params {
	if p, ok := ps.byName[name]; ok {
		p.Min, p.Max = lo, hi
	}

	return ps
}

// Fix holds name at its current value during a fit.
func (ps *Params) Fix(name string) *Params {
	if p, ok := ps.byName[name]; ok {
		p.Vary = false
	}

	return ps
}

// Free lets name vary during a fit.
func (ps *Params) Free(name string) *Params {
	if p, ok := ps.byName[name]; ok {
		p.Vary = true
	}

	return ps
}

// Set changes the value of an existing parameter.
func (ps *Params) Set(name string, value float64) error {
	p, ok := ps.byName[name]
	if !ok {
		return fmt.Errorf("fit: unknown parameter %q", name)
	}
	p.Value = value

	return nil
}

// Get returns a copy of the named parameter.
func (ps *Params) Get(name string) (Param, bool) {
	p, ok := ps.byName[name]
	if !ok {
		return Param{}, false
	}

	return *p, true
}

// Value returns the value of name, or NaN if it does not exist.
func (ps *Params) Value(name string) float64 {
	if p, ok := ps.byName[name]; ok {
		return p.Value
	}

	return math.NaN()
}

// Names returns the parameter names in insertion order.
func (ps *Params) Names() []string {
	return append([]string(nil), ps.order...)
}

// Len is the number of parameters.
func (ps *Params) Len() int {
	return len(ps.order)
}

// Values returns the current values keyed by name.
func (ps *Params) Values() Values {
	v := make(Values, len(ps.order))
	for _, name := range ps.order {
		v[name] = ps.byName[name].Value
	}

	return v
}

// Copy returns a deep copy.
func (ps *Params) Copy() *Params {
	c := NewParams()
	for _, name := range ps.order {
		p := *ps.byName[name]
		c.order = append(c.order, name)
		c.byName[name] = &p
	}

	return c
}

func (ps *Params) free() []*Param {
	var free []*Param
	for _, name := range ps.order {
		if p := ps.byName[name]; p.Vary {
			free = append(free, p)
		}
	}

	return free
}
