// Package integrators advances particle positions and velocities in time.
package integrators

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/particle"
)

// ForceField supplies the particles a rank integrates and refreshes their
// forces after positions change. UpdateForces may communicate.
type ForceField interface {
	Particles() *particle.Store
	UpdateForces() error
}

// VelocityVerlet is the half-kick, drift, half-kick scheme for unit masses.
type VelocityVerlet struct {
	Dt float64
}

func NewVelocityVerlet(dt float64) *VelocityVerlet {
	return &VelocityVerlet{Dt: dt}
}

// Run advances ff by n steps. Unless reuseForces is set, forces are
// recomputed before the first half kick.
func (v *VelocityVerlet) Run(ff ForceField, n int, reuseForces bool) error {
	if n <= 0 {
		return nil
	}
	if !reuseForces {
		if err := ff.UpdateForces(); err != nil {
			return err
		}
	}
	for i := 0; i < n; i++ {
		if err := v.Step(ff); err != nil {
			return err
		}
	}
	return nil
}

// Step performs one step using the forces already on the particles.
func (v *VelocityVerlet) Step(ff ForceField) error {
	v.kick(ff.Particles())
	v.drift(ff.Particles())
	if err := ff.UpdateForces(); err != nil {
		return err
	}
	v.kick(ff.Particles())
	return nil
}

func (v *VelocityVerlet) kick(s *particle.Store) {
	halfDt := 0.5 * v.Dt
	locals := s.Locals()
	for i := range locals {
		locals[i].Vel = r3.Add(locals[i].Vel, r3.Scale(halfDt, locals[i].Force))
	}
}

func (v *VelocityVerlet) drift(s *particle.Store) {
	locals := s.Locals()
	for i := range locals {
		locals[i].Pos = r3.Add(locals[i].Pos, r3.Scale(v.Dt, locals[i].Vel))
	}
}
