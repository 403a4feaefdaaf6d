// Package scenario runs YAML scripts of coordinator commands against a
// running engine.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/mdmesh/internal/engine"
	"github.com/san-kum/mdmesh/internal/interaction"
)

var ErrBadStep = errors.New("scenario: invalid step")

// Scenario defines a scripted sequence of coordinator commands.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is one command. Op selects which of the other fields are read.
type Step struct {
	Op string `yaml:"op"`

	// place, remove, bond
	ID      int       `yaml:"id"`
	Pos     []float64 `yaml:"pos,flow"`
	Vel     []float64 `yaml:"vel,flow"`
	Type    *int      `yaml:"type"`
	Charge  *float64  `yaml:"charge"`
	Partner int       `yaml:"partner"`
	All     bool      `yaml:"all"`

	// set_ia
	I      int                 `yaml:"i"`
	J      int                 `yaml:"j"`
	Params *interaction.Params `yaml:"params"`

	// coulomb
	Globals *interaction.Globals `yaml:"globals"`

	// integrate
	Steps       int  `yaml:"steps"`
	ReuseForces bool `yaml:"reuse_forces"`

	// stats
	Job string `yaml:"job"`

	// rescale
	Dim   int     `yaml:"dim"`
	Scale float64 `yaml:"scale"`

	// resort
	Global bool `yaml:"global"`
}

// Record is the outcome of one step that produced values.
type Record struct {
	Step   int
	Op     string
	Job    string
	Values []float64
}

// Result collects what a scenario observed. Runtime errors reported by
// integrate or resort steps do not stop the scenario.
type Result struct {
	Records       []Record
	RuntimeErrors engine.RuntimeErrors
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	for i, st := range sc.Steps {
		if err := st.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &sc, nil
}

func (st Step) validate() error {
	switch st.Op {
	case "place":
		if len(st.Pos) != 3 {
			return fmt.Errorf("%w: place needs a 3-component pos", ErrBadStep)
		}
		if st.Vel != nil && len(st.Vel) != 3 {
			return fmt.Errorf("%w: vel must have 3 components", ErrBadStep)
		}
	case "set_ia":
		if st.Params == nil {
			return fmt.Errorf("%w: set_ia needs params", ErrBadStep)
		}
	case "coulomb":
		if st.Globals == nil {
			return fmt.Errorf("%w: coulomb needs globals", ErrBadStep)
		}
	case "integrate":
		if st.Steps < 0 {
			return fmt.Errorf("%w: negative step count", ErrBadStep)
		}
	case "stats":
		if _, err := engine.ParseJob(st.Job); err != nil {
			return err
		}
	case "rescale":
		if st.Dim < -1 || st.Dim > 2 || st.Scale <= 0 {
			return fmt.Errorf("%w: rescale needs dim in [-1,2] and a positive scale", ErrBadStep)
		}
	case "remove", "bond", "resort", "galilei", "kill_motion", "kill_forces":
	default:
		return fmt.Errorf("%w: unknown op %q", ErrBadStep, st.Op)
	}
	return nil
}

// Run executes sc on the coordinator sys. It stops at the first error that
// is not a runtime error.
func Run(sys *engine.System, sc *Scenario, log logrus.FieldLogger) (*Result, error) {
	res := &Result{}
	for i, st := range sc.Steps {
		log.WithFields(logrus.Fields{"step": i + 1, "op": st.Op}).Debug("scenario step")
		vals, err := exec(sys, st)
		var rerrs engine.RuntimeErrors
		if errors.As(err, &rerrs) {
			res.RuntimeErrors = append(res.RuntimeErrors, rerrs...)
			err = nil
		}
		if err != nil {
			return res, fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		if vals != nil {
			res.Records = append(res.Records, Record{Step: i + 1, Op: st.Op, Job: st.Job, Values: vals})
		}
	}
	rerrs, err := sys.CheckRuntimeErrors()
	if err != nil {
		return res, err
	}
	res.RuntimeErrors = append(res.RuntimeErrors, rerrs...)
	return res, nil
}

func exec(sys *engine.System, st Step) ([]float64, error) {
	switch st.Op {
	case "place":
		if err := sys.PlaceParticle(st.ID, vec(st.Pos)); err != nil {
			return nil, err
		}
		if st.Type != nil {
			if err := sys.SetType(st.ID, *st.Type); err != nil {
				return nil, err
			}
		}
		if st.Charge != nil {
			if err := sys.SetCharge(st.ID, *st.Charge); err != nil {
				return nil, err
			}
		}
		if st.Vel != nil {
			return nil, sys.SetVelocity(st.ID, vec(st.Vel))
		}
		return nil, nil
	case "remove":
		if st.All {
			return nil, sys.RemoveAllParticles()
		}
		return nil, sys.RemoveParticle(st.ID)
	case "bond":
		return nil, sys.AddBond(st.ID, st.Partner)
	case "set_ia":
		return nil, sys.SetIAParams(st.I, st.J, *st.Params)
	case "coulomb":
		return nil, sys.SetCoulombParams(*st.Globals)
	case "integrate":
		return nil, sys.Integrate(st.Steps, st.ReuseForces)
	case "stats":
		job, err := engine.ParseJob(st.Job)
		if err != nil {
			return nil, err
		}
		return sys.GatherStats(job)
	case "rescale":
		return nil, sys.RescaleParticles(st.Dim, st.Scale)
	case "resort":
		counts, err := sys.ResortParticles(st.Global)
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(counts))
		for i, c := range counts {
			vals[i] = float64(c)
		}
		return vals, nil
	case "galilei":
		return nil, sys.GalileiTransform()
	case "kill_motion":
		return nil, sys.KillParticleMotion()
	case "kill_forces":
		return nil, sys.KillParticleForces()
	}
	return nil, fmt.Errorf("%w: unknown op %q", ErrBadStep, st.Op)
}

func vec(v []float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}
