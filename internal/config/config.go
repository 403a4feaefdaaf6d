package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/mdmesh/internal/interaction"
)

const (
	DefaultRanks    = 2
	DefaultBox      = 10.0
	DefaultDt       = 0.005
	DefaultSkin     = 0.4
	DefaultCount    = 125
	DefaultSteps    = 20
	DefaultSamples  = 50
	DefaultLogLevel = "info"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Ranks        int                 `yaml:"ranks"`
	Grid         [3]int              `yaml:"grid,flow"`
	Periodic     [3]bool             `yaml:"periodic,flow"`
	Box          [3]float64          `yaml:"box,flow"`
	Dt           float64             `yaml:"dt"`
	Skin         float64             `yaml:"skin"`
	Seed         int64               `yaml:"seed"`
	Types        int                 `yaml:"types"`
	Globals      interaction.Globals `yaml:"globals"`
	Features     FeaturesConfig      `yaml:"features"`
	Interactions []InteractionConfig `yaml:"interactions"`
	Particles    ParticlesConfig     `yaml:"particles"`
	Schedule     ScheduleConfig      `yaml:"schedule"`
	Transport    TransportConfig     `yaml:"transport"`
	LogLevel     string              `yaml:"log_level"`
}

type FeaturesConfig struct {
	Electrostatics bool `yaml:"electrostatics"`
}

type InteractionConfig struct {
	I      int                `yaml:"i"`
	J      int                `yaml:"j"`
	Params interaction.Params `yaml:",inline"`
}

type ParticlesConfig struct {
	Count int `yaml:"count"`
	// Layout is "lattice" or "random".
	Layout string `yaml:"layout"`
	// Charge is given to even ids; odd ids get its negation.
	Charge      float64 `yaml:"charge"`
	TypePattern []int   `yaml:"type_pattern,flow,omitempty"`
	// Temperature scales the initial random velocities.
	Temperature float64 `yaml:"temperature"`
	// MinDistance rejects random placements closer than this to a particle
	// already placed.
	MinDistance float64 `yaml:"min_distance"`
}

type ScheduleConfig struct {
	StepsPerSample int `yaml:"steps_per_sample"`
	Samples        int `yaml:"samples"`
}

type TransportConfig struct {
	// Kind is "local" for goroutine ranks or "tcp" for one process per rank.
	Kind  string   `yaml:"kind"`
	Peers []string `yaml:"peers,flow,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Ranks:    DefaultRanks,
		Periodic: [3]bool{true, true, true},
		Box:      [3]float64{DefaultBox, DefaultBox, DefaultBox},
		Dt:       DefaultDt,
		Skin:     DefaultSkin,
		Seed:     1,
		Types:    1,
		Globals:  interaction.DefaultGlobals(),
		Interactions: []InteractionConfig{
			{I: 0, J: 0, Params: interaction.Params{Epsilon: 1, Sigma: 1, Cutoff: 2.5}},
		},
		Particles: ParticlesConfig{
			Count:       DefaultCount,
			Layout:      "lattice",
			Temperature: 1,
			MinDistance: 0.9,
		},
		Schedule: ScheduleConfig{
			StepsPerSample: DefaultSteps,
			Samples:        DefaultSamples,
		},
		Transport: TransportConfig{Kind: "local"},
		LogLevel:  DefaultLogLevel,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// NumTypes is the type table size implied by the interactions and the
// particle type pattern.
func (c *Config) NumTypes() int {
	n := max(c.Types, 1)
	for _, ia := range c.Interactions {
		n = max(n, ia.I+1, ia.J+1)
	}
	for _, t := range c.Particles.TypePattern {
		n = max(n, t+1)
	}
	return n
}

// MaxRange is the largest interaction distance the configuration asks for.
func (c *Config) MaxRange() float64 {
	var r float64
	for _, ia := range c.Interactions {
		r = max(r, ia.Params.Range())
	}
	if c.Features.Electrostatics {
		r = max(r, c.Globals.CoulombCut)
	}
	return r
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}
	if c.Ranks < 1 {
		return invalid("ranks must be at least 1, got %d", c.Ranks)
	}
	if c.Grid != [3]int{} && c.Grid[0]*c.Grid[1]*c.Grid[2] != c.Ranks {
		return invalid("grid %v does not hold %d ranks", c.Grid, c.Ranks)
	}
	for d, l := range c.Box {
		if l <= 0 {
			return invalid("box length %d must be positive, got %v", d, l)
		}
		if c.Periodic[d] && c.MaxRange() > 0 && l <= 2*(c.MaxRange()+c.Skin) {
			return invalid("periodic box length %v must exceed twice the range %v", l, c.MaxRange()+c.Skin)
		}
	}
	if c.Dt <= 0 {
		return invalid("dt must be positive, got %v", c.Dt)
	}
	if c.Skin < 0 {
		return invalid("skin must be non-negative, got %v", c.Skin)
	}
	for _, ia := range c.Interactions {
		if ia.I < 0 || ia.J < 0 {
			return invalid("interaction types must be non-negative, got (%d,%d)", ia.I, ia.J)
		}
	}
	if c.Particles.Count < 0 {
		return invalid("particle count must be non-negative, got %d", c.Particles.Count)
	}
	switch c.Particles.Layout {
	case "lattice", "random":
	default:
		return invalid("unknown particle layout %q", c.Particles.Layout)
	}
	if c.Schedule.StepsPerSample < 1 || c.Schedule.Samples < 0 {
		return invalid("schedule needs steps_per_sample >= 1 and samples >= 0")
	}
	switch c.Transport.Kind {
	case "local":
	case "tcp":
		if len(c.Transport.Peers) != c.Ranks {
			return invalid("tcp transport needs one peer address per rank, got %d for %d ranks", len(c.Transport.Peers), c.Ranks)
		}
	default:
		return invalid("unknown transport %q", c.Transport.Kind)
	}
	return nil
}
