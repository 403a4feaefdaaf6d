package engine

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/dispatch"
	"github.com/san-kum/mdmesh/internal/force"
	"github.com/san-kum/mdmesh/internal/vec"
)

// Job selects the observable computed by GatherStats.
type Job int

const (
	JobEnergy         Job = 1
	JobPressure       Job = 2
	JobPressureInst   Job = 3
	JobMomentum       Job = 4
	JobFluidMomentum  Job = 6
	JobBoundaryForces Job = 8
)

func (j Job) String() string {
	switch j {
	case JobEnergy:
		return "energy"
	case JobPressure:
		return "pressure"
	case JobPressureInst:
		return "pressure_inst"
	case JobMomentum:
		return "momentum"
	case JobFluidMomentum:
		return "fluid_momentum"
	case JobBoundaryForces:
		return "boundary_forces"
	default:
		return fmt.Sprintf("job(%d)", int(j))
	}
}

// ParseJob maps a job name as printed by Job.String back to the job.
func ParseJob(name string) (Job, error) {
	for _, j := range []Job{JobEnergy, JobPressure, JobPressureInst, JobMomentum, JobFluidMomentum, JobBoundaryForces} {
		if j.String() == name {
			return j, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedJob, name)
}

// Supports reports whether this System can compute job.
func (s *System) Supports(job Job) bool {
	switch job {
	case JobEnergy, JobPressure, JobPressureInst, JobMomentum:
		return true
	case JobFluidMomentum, JobBoundaryForces:
		return s.features.Fluid != nil
	}
	return false
}

// EnergyStats is the JobEnergy result.
type EnergyStats struct {
	Total   float64
	Kinetic float64
	LJ      float64
	Coulomb float64
}

// PressureStats is the JobPressure and JobPressureInst result. Tensor is
// row-major.
type PressureStats struct {
	Total     float64
	Ideal     float64
	NonBonded float64
	Tensor    [9]float64
}

// GatherStats computes job on every rank and returns the sum on the
// coordinator. An unsupported job is fatal.
//
// Layouts: JobEnergy [total, kinetic, lj, coulomb]; JobPressure and
// JobPressureInst [total, ideal, nonbonded, tensor...9]; JobMomentum and
// JobFluidMomentum [x, y, z]; JobBoundaryForces three per boundary.
func (s *System) GatherStats(job Job) ([]float64, error) {
	if !s.IsCoordinator() {
		return nil, dispatch.ErrNotCoordinator
	}
	if !s.Supports(job) {
		return nil, s.fatal(fmt.Errorf("%w: %s", ErrUnsupportedJob, job), "gather_stats", job)
	}
	if err := s.call(CmdGatherStats, 0, int(job)); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.lastStats...), nil
}

func (s *System) Energy() (EnergyStats, error) {
	v, err := s.GatherStats(JobEnergy)
	if err != nil {
		return EnergyStats{}, err
	}
	return EnergyStats{Total: v[0], Kinetic: v[1], LJ: v[2], Coulomb: v[3]}, nil
}

// Pressure returns the pressure from synchronous velocities, or from
// velocities half a step back when inst is set.
func (s *System) Pressure(inst bool) (PressureStats, error) {
	job := JobPressure
	if inst {
		job = JobPressureInst
	}
	v, err := s.GatherStats(job)
	if err != nil {
		return PressureStats{}, err
	}
	ps := PressureStats{Total: v[0], Ideal: v[1], NonBonded: v[2]}
	copy(ps.Tensor[:], v[3:])
	return ps, nil
}

func (s *System) Momentum() (r3.Vec, error) {
	v, err := s.GatherStats(JobMomentum)
	if err != nil {
		return r3.Vec{}, err
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

func (s *System) gatherStats(_, b int) error {
	job := Job(b)
	partial, err := s.statsPartial(job)
	if err != nil {
		return err
	}
	all, err := statsGather.Gather(s.comm, dispatch.Root, partial)
	if err != nil || all == nil {
		return err
	}
	sum := make([]float64, len(partial))
	for r, p := range all {
		if len(p) != len(sum) {
			return fmt.Errorf("engine: rank %d sent %d values for %s, want %d", r, len(p), job, len(sum))
		}
		floats.Add(sum, p)
	}
	s.lastStats = sum
	return nil
}

func (s *System) statsPartial(job Job) ([]float64, error) {
	switch job {
	case JobEnergy:
		if err := s.prepareNeighbors(); err != nil {
			return nil, err
		}
		e := s.calc.Energy(s.store, s.pairs)
		kin := force.Kinetic(s.store)
		return []float64{kin + e.Total(), kin, e.LJ, e.Coulomb}, nil
	case JobPressure, JobPressureInst:
		return s.pressurePartial(job == JobPressureInst)
	case JobMomentum:
		var p r3.Vec
		for _, q := range s.store.Locals() {
			p = r3.Add(p, q.Vel)
		}
		return []float64{p.X, p.Y, p.Z}, nil
	case JobFluidMomentum:
		if s.features.Fluid != nil {
			p := s.features.Fluid.FluidMomentum()
			return []float64{p.X, p.Y, p.Z}, nil
		}
	case JobBoundaryForces:
		if s.features.Fluid != nil {
			return s.features.Fluid.BoundaryForces(), nil
		}
	}
	return nil, &FatalError{Rank: s.Rank(), Command: "gather_stats", Job: job, Err: ErrUnsupportedJob}
}

func (s *System) pressurePartial(inst bool) ([]float64, error) {
	if inst && !s.forcesValid {
		if err := s.updateForces(); err != nil {
			return nil, err
		}
	} else if err := s.prepareNeighbors(); err != nil {
		return nil, err
	}
	volume := vec.Volume(s.box)
	w := s.calc.Virial(s.store, s.pairs)

	var kin [9]float64
	halfDt := 0.5 * s.integ.Dt
	for _, p := range s.store.Locals() {
		v := p.Vel
		if inst {
			v = r3.Sub(v, r3.Scale(halfDt, p.Force))
		}
		va := vec.ToArray(v)
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				kin[a*3+b] += va[a] * va[b]
			}
		}
	}

	out := make([]float64, 12)
	ideal := (kin[0] + kin[4] + kin[8]) / (3 * volume)
	nonBonded := (w[0] + w[4] + w[8]) / (3 * volume)
	out[0] = ideal + nonBonded
	out[1] = ideal
	out[2] = nonBonded
	for i := range w {
		out[3+i] = (kin[i] + w[i]) / volume
	}
	return out, nil
}
