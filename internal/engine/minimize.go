package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/dispatch"
)

// MinimizeParams configures steepest descent.
type MinimizeParams struct {
	// Steps bounds the number of descent steps.
	Steps int
	// Gamma scales force into displacement.
	Gamma float64
	// MaxDisplacement caps how far one particle moves per step.
	MaxDisplacement float64
	// ForceTol stops the descent once no particle feels a larger force.
	ForceTol float64
}

type MinimizeResult struct {
	Steps     int
	MaxForce  float64
	Converged bool
}

// MinimizeEnergy relaxes every rank's particles by steepest descent on the
// pair potential. Time does not advance and velocities are left alone.
func (s *System) MinimizeEnergy(p MinimizeParams) (MinimizeResult, error) {
	if p.Steps < 0 || p.Gamma <= 0 || p.MaxDisplacement <= 0 || p.ForceTol < 0 {
		return MinimizeResult{}, fmt.Errorf("engine: invalid minimization parameters %+v", p)
	}
	s.pend.minimize = p
	if err := s.call(CmdMinimizeEnergy, 0, 0); err != nil {
		return MinimizeResult{}, err
	}
	return s.lastMin, nil
}

func (s *System) minimizeEnergy(_, _ int) error {
	p, err := minimizeRendezvous.Bcast(s.comm, dispatch.Root, s.pend.minimize)
	if err != nil {
		return err
	}
	var res MinimizeResult
	for {
		if err := s.updateForces(); err != nil {
			return err
		}
		var local float64
		for _, q := range s.store.Locals() {
			local = math.Max(local, r3.Norm(q.Force))
		}
		all, err := maxExchange.Allgather(s.comm, local)
		if err != nil {
			return err
		}
		res.MaxForce = 0
		for _, f := range all {
			res.MaxForce = math.Max(res.MaxForce, f)
		}
		if res.MaxForce <= p.ForceTol {
			res.Converged = true
			break
		}
		if res.Steps == p.Steps {
			break
		}

		locals := s.store.Locals()
		for i := range locals {
			q := &locals[i]
			d := r3.Scale(p.Gamma, q.Force)
			if n := r3.Norm(d); n > p.MaxDisplacement {
				d = r3.Scale(p.MaxDisplacement/n, d)
			}
			q.Pos = r3.Add(q.Pos, d)
		}
		s.forcesValid = false
		res.Steps++
	}
	if s.IsCoordinator() {
		s.lastMin = res
	}
	return nil
}
