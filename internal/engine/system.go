// Package engine runs a distributed short-range molecular dynamics system.
//
// Every rank owns one System. The coordinator (rank 0) drives the run by
// calling the exported command methods; each call is broadcast and applied
// on every rank in the same order. All other ranks sit in Loop.
package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/cells"
	"github.com/san-kum/mdmesh/internal/dispatch"
	"github.com/san-kum/mdmesh/internal/force"
	"github.com/san-kum/mdmesh/internal/integrators"
	"github.com/san-kum/mdmesh/internal/interaction"
	"github.com/san-kum/mdmesh/internal/mesh"
	"github.com/san-kum/mdmesh/internal/particle"
	"github.com/san-kum/mdmesh/internal/topology"
)

// FluidCoupling is an optional lattice-fluid plugin. Its presence enables
// the fluid statistics jobs.
type FluidCoupling interface {
	// FluidMomentum is this rank's share of the total fluid momentum.
	FluidMomentum() r3.Vec
	// BoundaryForces is this rank's share of the force on every boundary,
	// three components per boundary. Every rank returns the same length.
	BoundaryForces() []float64
}

// Features are resolved once at configuration time.
type Features struct {
	Electrostatics bool
	Fluid          FluidCoupling
}

type Options struct {
	Box      r3.Vec
	Dims     [3]int
	Periodic [3]bool
	Dt       float64
	Skin     float64
	Types    int
	Globals  interaction.Globals
	Features Features
	Logger   logrus.FieldLogger
	// Abort ends the process after a fatal error has been logged. It
	// defaults to exiting with status 1.
	Abort func(error)
}

// Event is a change notification that invalidates derived state.
type Event int

const (
	ParticleChange Event = iota
	ShortRangeChange
	CoulombChange
)

func (e Event) String() string {
	switch e {
	case ParticleChange:
		return "particle-change"
	case ShortRangeChange:
		return "short-range-change"
	case CoulombChange:
		return "coulomb-change"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

type resortMode int

const (
	resortNone resortMode = iota
	resortLocal
	resortGlobal
)

// pending holds coordinator-side arguments that follow a command header.
type pending struct {
	pos      r3.Vec
	params   interaction.Params
	table    interaction.Snapshot
	globals  interaction.Globals
	scale    float64
	update   particleUpdate
	partner  int
	vel      r3.Vec
	skin     float64
	minimize MinimizeParams
}

// System is one rank's share of the simulation.
type System struct {
	comm  mesh.Comm
	grid  *topology.Grid
	box   r3.Vec
	store *particle.Store

	table    *interaction.Table
	globals  interaction.Globals
	features Features
	calc     *force.Calculator
	builder  *cells.Builder
	pairs    particle.PairList
	integ    *integrators.VelocityVerlet

	reg  *dispatch.Registry
	disp *dispatch.Dispatcher
	log  logrus.FieldLogger

	abort     func(error)
	listeners []func(Event)

	resort      resortMode
	pairsValid  bool
	forcesValid bool
	started     bool
	step        int
	time        float64
	nPart       int
	maxSeenID   int
	errs        []RuntimeError

	// coordinator only
	pend        pending
	owners      map[int]int
	ownersValid bool
	lastStats   []float64
	lastCounts  []int
	lastErrs    RuntimeErrors
	lastPart    particle.Particle
	lastVec     r3.Vec
	lastMin     MinimizeResult
}

// New builds the System of comm's rank. Every rank must pass equal options.
func New(comm mesh.Comm, opts Options) (*System, error) {
	grid, err := topology.New(comm.Size(), opts.Dims, opts.Periodic)
	if err != nil {
		return nil, err
	}
	if opts.Box.X <= 0 || opts.Box.Y <= 0 || opts.Box.Z <= 0 {
		return nil, fmt.Errorf("engine: box must be positive, got %v", opts.Box)
	}
	if opts.Dt <= 0 {
		return nil, fmt.Errorf("engine: time step must be positive, got %v", opts.Dt)
	}
	if opts.Types < 1 {
		opts.Types = 1
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("rank", comm.Rank())

	s := &System{
		comm:      comm,
		grid:      grid,
		box:       opts.Box,
		store:     particle.NewStore(),
		table:     interaction.NewTable(opts.Types),
		globals:   opts.Globals,
		features:  opts.Features,
		integ:     integrators.NewVelocityVerlet(opts.Dt),
		log:       log,
		abort:     opts.Abort,
		maxSeenID: -1,
		owners:    make(map[int]int),
	}
	if s.abort == nil {
		s.abort = func(error) { os.Exit(1) }
	}
	s.calc = &force.Calculator{Table: s.table, Globals: &s.globals, Coulomb: opts.Features.Electrostatics}
	s.builder = &cells.Builder{Grid: grid, Box: opts.Box, Skin: opts.Skin}
	s.reg = s.registry()
	s.disp = dispatch.New(comm, s.reg, log)
	return s, nil
}

func (s *System) Rank() int                        { return s.comm.Rank() }
func (s *System) IsCoordinator() bool              { return s.disp.IsCoordinator() }
func (s *System) Grid() *topology.Grid             { return s.grid }
func (s *System) Box() r3.Vec                      { return s.box }
func (s *System) Store() *particle.Store           { return s.store }
func (s *System) Table() *interaction.Table        { return s.table }
func (s *System) Globals() interaction.Globals     { return s.globals }
func (s *System) Time() float64                    { return s.time }
func (s *System) Dt() float64                      { return s.integ.Dt }
func (s *System) NumParticles() int                { return s.nPart }
func (s *System) MaxSeenID() int                   { return s.maxSeenID }
func (s *System) Registry() *dispatch.Registry     { return s.reg }
func (s *System) Logger() logrus.FieldLogger       { return s.log }
func (s *System) Dispatcher() *dispatch.Dispatcher { return s.disp }

// Subscribe registers fn to be called on every change event.
func (s *System) Subscribe(fn func(Event)) {
	s.listeners = append(s.listeners, fn)
}

func (s *System) notify(e Event) {
	switch e {
	case ParticleChange, ShortRangeChange, CoulombChange:
		s.pairsValid = false
		s.forcesValid = false
	}
	for _, fn := range s.listeners {
		fn(e)
	}
}

// Replicated is the part of a System that every rank holds identically.
type Replicated struct {
	Table        interaction.Snapshot
	Globals      interaction.Globals
	NumParticles int
	MaxSeenID    int
	Step         int
	Time         float64
	Started      bool
	Seq          uint64
}

func (s *System) Replicated() Replicated {
	return Replicated{
		Table:        s.table.Snapshot(),
		Globals:      s.globals,
		NumParticles: s.nPart,
		MaxSeenID:    s.maxSeenID,
		Step:         s.step,
		Time:         s.time,
		Started:      s.started,
		Seq:          s.disp.Seq(),
	}
}

// Loop runs commands from the coordinator until it shuts the mesh down.
// Any error is fatal.
func (s *System) Loop() error {
	if err := s.disp.Loop(); err != nil {
		return s.fatal(err, "", 0)
	}
	return nil
}

// Shutdown releases every executor from Loop.
func (s *System) Shutdown() error {
	if err := s.disp.Shutdown(); err != nil {
		if errors.Is(err, dispatch.ErrNotCoordinator) {
			return err
		}
		return s.fatal(err, "shutdown", 0)
	}
	return nil
}

// call dispatches a command. Transfer and handler failures are fatal;
// misuse by a non-coordinator is returned as is.
func (s *System) call(id dispatch.CommandID, a, b int) error {
	err := s.disp.Call(id, a, b)
	if err == nil {
		return nil
	}
	if errors.Is(err, dispatch.ErrNotCoordinator) || errors.Is(err, dispatch.ErrUnknownCommand) {
		return err
	}
	return s.fatal(err, s.reg.Name(id), 0)
}

// fatal logs err with the failing rank, command and job, then aborts. It
// returns the diagnostic for abort hooks that do not exit.
func (s *System) fatal(err error, command string, job Job) error {
	fe := &FatalError{Rank: s.Rank(), Command: command, Job: job, Err: err}
	var ce *dispatch.CommandError
	if errors.As(err, &ce) {
		fe.Rank = ce.Rank
		fe.Command = ce.Command
	}
	var inner *FatalError
	if errors.As(err, &inner) {
		fe.Rank = inner.Rank
		if inner.Job != 0 {
			fe.Job = inner.Job
		}
	}
	fields := logrus.Fields{"failed_rank": fe.Rank}
	if fe.Command != "" {
		fields["command"] = fe.Command
	}
	if fe.Job != 0 {
		fields["job"] = int(fe.Job)
	}
	s.log.WithFields(fields).WithError(err).Error("fatal error, terminating")
	s.abort(fe)
	return fe
}

func (s *System) runtimeError(format string, args ...any) {
	e := RuntimeError{Rank: s.Rank(), Step: s.step, Message: fmt.Sprintf(format, args...)}
	s.log.WithField("step", s.step).Warn(e.Message)
	s.errs = append(s.errs, e)
}
