// Package interaction holds the short-range interaction parameters and the
// pair force kernels.
package interaction

import (
	"errors"
	"fmt"
)

var ErrBadType = errors.New("interaction: particle type out of range")

// Params is the Lennard-Jones parameter block of one type pair. A zero
// Cutoff disables the interaction.
type Params struct {
	Epsilon float64 `yaml:"eps" json:"eps"`
	Sigma   float64 `yaml:"sig" json:"sig"`
	Cutoff  float64 `yaml:"cut" json:"cut"`
	Offset  float64 `yaml:"offset" json:"offset"`
	Shift   float64 `yaml:"shift" json:"shift"`
}

// Range is the distance below which the pair interacts.
func (p Params) Range() float64 {
	if p.Cutoff <= 0 {
		return 0
	}
	return p.Cutoff + p.Offset
}

// Table stores Params for every ordered pair of types 0..n-1. Writes always
// go through Update or Restore so (i,j) and (j,i) never diverge.
type Table struct {
	n      int
	params []Params
}

func NewTable(n int) *Table {
	t := &Table{}
	t.Resize(n)
	return t
}

func (t *Table) NumTypes() int { return t.n }

// Resize grows the table to hold n types. Existing entries are kept and new
// entries are zero. Shrinking is a no-op.
func (t *Table) Resize(n int) {
	if n <= t.n {
		return
	}
	params := make([]Params, n*n)
	for i := 0; i < t.n; i++ {
		copy(params[i*n:i*n+t.n], t.params[i*t.n:(i+1)*t.n])
	}
	t.n = n
	t.params = params
}

// EnsureType grows the table so that typ is addressable and reports whether
// it had to grow.
func (t *Table) EnsureType(typ int) bool {
	if typ < t.n {
		return false
	}
	t.Resize(typ + 1)
	return true
}

// Lookup returns the parameters of (i,j). Both indices must be in range.
func (t *Table) Lookup(i, j int) Params {
	return t.params[i*t.n+j]
}

func (t *Table) check(i, j int) error {
	if i < 0 || j < 0 || i >= t.n || j >= t.n {
		return fmt.Errorf("%w: (%d,%d) with %d types", ErrBadType, i, j, t.n)
	}
	return nil
}

// Update writes p to (i,j) and mirrors it into (j,i).
func (t *Table) Update(i, j int, p Params) error {
	if err := t.check(i, j); err != nil {
		return err
	}
	t.params[i*t.n+j] = p
	t.params[j*t.n+i] = p
	return nil
}

// MaxRange returns the largest interaction range in the table.
func (t *Table) MaxRange() float64 {
	var m float64
	for _, p := range t.params {
		if r := p.Range(); r > m {
			m = r
		}
	}
	return m
}

// Snapshot is a flat copy of a Table that travels between ranks.
type Snapshot struct {
	N      int
	Params []Params
}

func (t *Table) Snapshot() Snapshot {
	params := make([]Params, len(t.params))
	copy(params, t.params)
	return Snapshot{N: t.n, Params: params}
}

// Restore replaces the whole table with s.
func (t *Table) Restore(s Snapshot) error {
	if len(s.Params) != s.N*s.N {
		return fmt.Errorf("interaction: snapshot holds %d entries for %d types", len(s.Params), s.N)
	}
	for i := 0; i < s.N; i++ {
		for j := 0; j < i; j++ {
			if s.Params[i*s.N+j] != s.Params[j*s.N+i] {
				return fmt.Errorf("interaction: snapshot is asymmetric at (%d,%d)", i, j)
			}
		}
	}
	t.n = s.N
	t.params = make([]Params, len(s.Params))
	copy(t.params, s.Params)
	return nil
}

// Globals are the process-wide electrostatics constants. They are set once
// at startup and frozen when integration begins.
type Globals struct {
	Bjerrum    float64 `yaml:"bjerrum" json:"bjerrum"`
	Alpha      float64 `yaml:"alpha" json:"alpha"`
	CoulombCut float64 `yaml:"coulomb_cut" json:"coulomb_cut"`
}

// DefaultGlobals returns the reference electrostatics settings.
func DefaultGlobals() Globals {
	return Globals{Bjerrum: 1.68, Alpha: 1, CoulombCut: 20}
}
