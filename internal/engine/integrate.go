package engine

import (
	"fmt"
	"math"

	"github.com/san-kum/mdmesh/internal/dispatch"
	"github.com/san-kum/mdmesh/internal/particle"
)

// forceField exposes a System to the integrator.
type forceField struct {
	s *System
}

func (f forceField) Particles() *particle.Store { return f.s.store }
func (f forceField) UpdateForces() error        { return f.s.updateForces() }

// Integrate advances every rank by steps velocity Verlet steps and then
// collects runtime errors. A non-empty RuntimeErrors is returned as the
// error; the run may continue after it.
func (s *System) Integrate(steps int, reuseForces bool) error {
	if steps < 0 {
		return fmt.Errorf("engine: step count must be non-negative, got %d", steps)
	}
	if err := s.call(CmdIntegrate, steps, boolArg(reuseForces)); err != nil {
		return err
	}
	errs, err := s.CheckRuntimeErrors()
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *System) integrate(steps, reuse int) error {
	s.started = true
	ff := forceField{s}
	if steps == 0 {
		return ff.UpdateForces()
	}
	if err := s.integ.Run(ff, steps, reuse != 0 && s.forcesValid); err != nil {
		return err
	}
	s.step += steps
	s.time += float64(steps) * s.integ.Dt
	return nil
}

func (s *System) updateForces() error {
	if err := s.prepareNeighbors(); err != nil {
		return err
	}
	s.calc.ComputeForces(s.store, s.pairs)
	if err := s.reduceGhostForces(); err != nil {
		return err
	}
	for _, p := range s.store.Locals() {
		if math.IsNaN(p.Force.X+p.Force.Y+p.Force.Z) || math.IsInf(p.Force.X+p.Force.Y+p.Force.Z, 0) {
			s.runtimeError("particle %d: force is not finite", p.ID)
		}
	}
	s.forcesValid = true
	return nil
}

// CheckRuntimeErrors collects and clears the runtime error log of every
// rank.
func (s *System) CheckRuntimeErrors() (RuntimeErrors, error) {
	if err := s.call(CmdCheckRuntimeErrors, 0, 0); err != nil {
		return nil, err
	}
	return s.lastErrs, nil
}

func (s *System) checkRuntimeErrors(_, _ int) error {
	mine := s.errs
	s.errs = nil
	all, err := errorsGather.Gather(s.comm, dispatch.Root, mine)
	if err != nil || all == nil {
		return err
	}
	s.lastErrs = nil
	for _, errs := range all {
		s.lastErrs = append(s.lastErrs, errs...)
	}
	return nil
}

// ResortParticles moves every particle to the rank owning its position and
// returns the resulting per-rank particle counts. A local resort only
// exchanges with neighboring ranks and reports particles that jumped
// further as runtime errors.
func (s *System) ResortParticles(global bool) ([]int, error) {
	if err := s.call(CmdResortParticles, boolArg(global), 0); err != nil {
		return nil, err
	}
	return append([]int(nil), s.lastCounts...), nil
}

func (s *System) resortParticles(global, _ int) error {
	switch {
	case global != 0:
		s.resort = resortGlobal
	case s.resort == resortNone:
		s.resort = resortLocal
	}
	if err := s.rebuildNeighbors(); err != nil {
		return err
	}
	counts, err := countGather.Gather(s.comm, dispatch.Root, s.store.Len())
	if err != nil || counts == nil {
		return err
	}
	s.lastCounts = counts
	return nil
}
