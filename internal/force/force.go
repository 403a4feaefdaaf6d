// Package force evaluates short-range pair forces, energies and the virial
// over a rank's candidate pair list.
package force

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/interaction"
	"github.com/san-kum/mdmesh/internal/particle"
)

// Calculator applies the pair kernel. It never communicates; ghost forces
// are left on the ghosts for the caller to reduce.
type Calculator struct {
	Table   *interaction.Table
	Globals *interaction.Globals
	Coulomb bool
}

// Energy holds the potential energy terms of the pairs a rank computed.
type Energy struct {
	LJ      float64
	Coulomb float64
}

func (e Energy) Total() float64 { return e.LJ + e.Coulomb }

func (c *Calculator) pairForce(p1, p2 *particle.Particle) r3.Vec {
	d := r3.Sub(p1.Pos, p2.Pos)
	return interaction.PairForce(c.Table.Lookup(p1.Type, p2.Type), *c.Globals, c.Coulomb, p1.Q*p2.Q, d)
}

// ComputeForces resets every local and ghost particle, then accumulates each
// pair's force into both partners with opposite sign.
func (c *Calculator) ComputeForces(s *particle.Store, pairs particle.PairList) {
	for i := 0; i < s.NumSlots(); i++ {
		p := s.At(i)
		p.Force = r3.Vec{}
		p.PosOld = p.Pos
	}
	for _, pr := range pairs {
		p1, p2 := s.At(pr.I), s.At(pr.J)
		f := c.pairForce(p1, p2)
		p1.Force = r3.Add(p1.Force, f)
		p2.Force = r3.Sub(p2.Force, f)
	}
}

// Energy sums the pair potentials over pairs.
func (c *Calculator) Energy(s *particle.Store, pairs particle.PairList) Energy {
	var e Energy
	for _, pr := range pairs {
		p1, p2 := s.At(pr.I), s.At(pr.J)
		dist := r3.Norm(r3.Sub(p1.Pos, p2.Pos))
		e.LJ += interaction.LJEnergy(c.Table.Lookup(p1.Type, p2.Type), dist)
		if c.Coulomb {
			e.Coulomb += interaction.CoulombEnergy(*c.Globals, p1.Q*p2.Q, dist)
		}
	}
	return e
}

// Virial returns the pair virial tensor sum(d_a * f_b) in row-major order.
func (c *Calculator) Virial(s *particle.Store, pairs particle.PairList) [9]float64 {
	var w [9]float64
	for _, pr := range pairs {
		p1, p2 := s.At(pr.I), s.At(pr.J)
		d := r3.Sub(p1.Pos, p2.Pos)
		f := c.pairForce(p1, p2)
		da := [3]float64{d.X, d.Y, d.Z}
		fb := [3]float64{f.X, f.Y, f.Z}
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				w[a*3+b] += da[a] * fb[b]
			}
		}
	}
	return w
}

// Kinetic returns half the summed squared velocity of the local particles
// (unit mass).
func Kinetic(s *particle.Store) float64 {
	var k float64
	for _, p := range s.Locals() {
		k += r3.Dot(p.Vel, p.Vel)
	}
	return k / 2
}
