// Package runner drives a configured simulation from the coordinator rank
// and collects its observables.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/config"
	"github.com/san-kum/mdmesh/internal/engine"
	"github.com/san-kum/mdmesh/internal/mesh"
	"github.com/san-kum/mdmesh/internal/metrics"
)

// Result is what the coordinator observed over a run. Executor ranks
// return a nil Result.
type Result struct {
	Samples       []metrics.Sample
	Metrics       map[string]float64
	RuntimeErrors engine.RuntimeErrors
	// Counts is the number of particles per rank after the initial resort.
	Counts []int
	Steps  int
}

// EngineOptions translates cfg into the options every rank passes to
// engine.New.
func EngineOptions(cfg *config.Config, log logrus.FieldLogger) engine.Options {
	return engine.Options{
		Box:      r3.Vec{X: cfg.Box[0], Y: cfg.Box[1], Z: cfg.Box[2]},
		Dims:     cfg.Grid,
		Periodic: cfg.Periodic,
		Dt:       cfg.Dt,
		Skin:     cfg.Skin,
		Types:    cfg.NumTypes(),
		Globals:  cfg.Globals,
		Features: engine.Features{Electrostatics: cfg.Features.Electrostatics},
		Logger:   log,
	}
}

// Driver runs on the coordinator between startup and shutdown of the
// executors.
type Driver func(ctx context.Context, sys *engine.System) error

// Serve builds the System of comm's rank. Executors serve commands until
// shutdown; the coordinator runs drive and then shuts them down.
func Serve(ctx context.Context, comm mesh.Comm, cfg *config.Config, log logrus.FieldLogger, drive Driver, opts ...func(*engine.Options)) error {
	o := EngineOptions(cfg, log)
	for _, fn := range opts {
		fn(&o)
	}
	sys, err := engine.New(comm, o)
	if err != nil {
		return err
	}
	if !sys.IsCoordinator() {
		return sys.Loop()
	}

	err = drive(ctx, sys)
	if serr := sys.Shutdown(); err == nil {
		err = serr
	}
	return err
}

// ServeLocal runs drive on cfg.Ranks goroutine ranks of an in-process mesh.
func ServeLocal(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, drive Driver, opts ...func(*engine.Options)) error {
	return mesh.RunLocal(ctx, cfg.Ranks, func(ctx context.Context, comm mesh.Comm) error {
		return Serve(ctx, comm, cfg, log, drive, opts...)
	})
}

// ServeTCP runs rank of cfg as one process of a TCP mesh over
// cfg.Transport.Peers. Only rank 0 calls drive.
func ServeTCP(ctx context.Context, cfg *config.Config, rank int, log logrus.FieldLogger, drive Driver) error {
	comm, err := mesh.ListenTCP(rank, cfg.Transport.Peers, log)
	if err != nil {
		return fmt.Errorf("joining mesh: %w", err)
	}
	defer comm.Close()
	return Serve(ctx, comm, cfg, log, drive)
}

// Local runs cfg on an in-process mesh. Options may adjust each rank's
// engine options.
func Local(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts ...func(*engine.Options)) (*Result, error) {
	var res *Result
	err := ServeLocal(ctx, cfg, log, collect(cfg, &res), opts...)
	return res, err
}

// TCP runs one rank of cfg over TCP. Only rank 0 returns a Result.
func TCP(ctx context.Context, cfg *config.Config, rank int, log logrus.FieldLogger) (*Result, error) {
	var res *Result
	err := ServeTCP(ctx, cfg, rank, log, collect(cfg, &res))
	return res, err
}

func collect(cfg *config.Config, res **Result) Driver {
	return func(ctx context.Context, sys *engine.System) error {
		r, err := Drive(ctx, sys, cfg)
		*res = r
		return err
	}
}

// Drive sets the system up from cfg and alternates integration and
// sampling. It must run on the coordinator. Cancelling ctx stops the run
// after the current sample.
func Drive(ctx context.Context, sys *engine.System, cfg *config.Config) (*Result, error) {
	log := sys.Logger()
	if err := Setup(sys, cfg); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	res := &Result{}
	counts, err := sys.ResortParticles(true)
	if err != nil {
		return nil, err
	}
	res.Counts = counts
	log.WithField("counts", counts).Info("particles distributed")

	set := metrics.Default()
	observe := func() error {
		smp, err := sample(sys)
		if err != nil {
			return err
		}
		res.Samples = append(res.Samples, smp)
		set.Observe(smp)
		return nil
	}

	if err := sys.Integrate(0, false); err != nil {
		return res, err
	}
	if err := observe(); err != nil {
		return res, err
	}
	for i := 0; i < cfg.Schedule.Samples; i++ {
		if err := ctx.Err(); err != nil {
			res.Metrics = set.Values()
			return res, err
		}
		err := sys.Integrate(cfg.Schedule.StepsPerSample, true)
		var rerrs engine.RuntimeErrors
		if errors.As(err, &rerrs) {
			res.RuntimeErrors = append(res.RuntimeErrors, rerrs...)
			err = nil
		}
		if err != nil {
			return res, err
		}
		res.Steps += cfg.Schedule.StepsPerSample
		if err := observe(); err != nil {
			return res, err
		}
		last := res.Samples[len(res.Samples)-1]
		log.WithFields(logrus.Fields{
			"time":     last.Time,
			"total":    last.Total,
			"pressure": last.Pressure,
		}).Debug("sample")
	}

	rerrs, err := sys.CheckRuntimeErrors()
	if err != nil {
		return res, err
	}
	res.RuntimeErrors = append(res.RuntimeErrors, rerrs...)
	res.Metrics = set.Values()
	return res, nil
}

// Setup broadcasts the interaction parameters of cfg and places its
// particles.
func Setup(sys *engine.System, cfg *config.Config) error {
	if cfg.Features.Electrostatics {
		if err := sys.SetCoulombParams(cfg.Globals); err != nil {
			return err
		}
	}
	if err := sys.BcastMaxSeenType(cfg.NumTypes()); err != nil {
		return err
	}
	for _, ia := range cfg.Interactions {
		if err := sys.SetIAParams(ia.I, ia.J, ia.Params); err != nil {
			return err
		}
	}

	ps, err := Seed(cfg)
	if err != nil {
		return err
	}
	for _, p := range ps {
		if err := sys.PlaceParticle(p.ID, p.Pos); err != nil {
			return err
		}
		if p.Type != 0 {
			if err := sys.SetType(p.ID, p.Type); err != nil {
				return err
			}
		}
		if p.Q != 0 {
			if err := sys.SetCharge(p.ID, p.Q); err != nil {
				return err
			}
		}
		if p.Vel != (r3.Vec{}) {
			if err := sys.SetVelocity(p.ID, p.Vel); err != nil {
				return err
			}
		}
	}
	return nil
}

func sample(sys *engine.System) (metrics.Sample, error) {
	e, err := sys.Energy()
	if err != nil {
		return metrics.Sample{}, err
	}
	p, err := sys.Pressure(false)
	if err != nil {
		return metrics.Sample{}, err
	}
	m, err := sys.Momentum()
	if err != nil {
		return metrics.Sample{}, err
	}
	return metrics.Sample{
		Time:     sys.Time(),
		Kinetic:  e.Kinetic,
		LJ:       e.LJ,
		Coulomb:  e.Coulomb,
		Total:    e.Total,
		Pressure: p.Total,
		Momentum: r3.Norm(m),
	}, nil
}
