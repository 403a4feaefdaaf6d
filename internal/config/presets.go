package config

import (
	"sort"

	"github.com/san-kum/mdmesh/internal/interaction"
)

var ljUnit = []InteractionConfig{
	{I: 0, J: 0, Params: interaction.Params{Epsilon: 1, Sigma: 1, Cutoff: 2.5}},
}

var wca = []InteractionConfig{
	{I: 0, J: 0, Params: interaction.Params{Epsilon: 1, Sigma: 1, Cutoff: 1.122462}},
	{I: 0, J: 1, Params: interaction.Params{Epsilon: 1, Sigma: 1, Cutoff: 1.122462}},
	{I: 1, J: 1, Params: interaction.Params{Epsilon: 1, Sigma: 1, Cutoff: 1.122462}},
}

var Presets = map[string]map[string]*Config{
	"lj": {
		"gas": {
			Ranks: 2, Periodic: [3]bool{true, true, true}, Box: [3]float64{12, 12, 12},
			Dt: 0.005, Skin: 0.4, Seed: 1, Types: 1, Interactions: ljUnit,
			Particles: ParticlesConfig{Count: 64, Layout: "random", Temperature: 1.5, MinDistance: 1},
			Schedule:  ScheduleConfig{StepsPerSample: 20, Samples: 50},
		},
		"liquid": {
			Ranks: 4, Periodic: [3]bool{true, true, true}, Box: [3]float64{8, 8, 8},
			Dt: 0.005, Skin: 0.3, Seed: 1, Types: 1, Interactions: ljUnit,
			Particles: ParticlesConfig{Count: 343, Layout: "lattice", Temperature: 0.8},
			Schedule:  ScheduleConfig{StepsPerSample: 10, Samples: 100},
		},
		"slab": {
			Ranks: 2, Periodic: [3]bool{true, true, false}, Box: [3]float64{10, 10, 20},
			Dt: 0.005, Skin: 0.4, Seed: 3, Types: 1, Interactions: ljUnit,
			Particles: ParticlesConfig{Count: 125, Layout: "lattice", Temperature: 0.5},
			Schedule:  ScheduleConfig{StepsPerSample: 20, Samples: 40},
		},
	},
	"electrolyte": {
		"dilute": {
			Ranks: 2, Periodic: [3]bool{true, true, true}, Box: [3]float64{16, 16, 16},
			Dt: 0.002, Skin: 0.4, Seed: 7, Types: 2,
			Globals:      interaction.Globals{Bjerrum: 1.68, Alpha: 1, CoulombCut: 3},
			Features:     FeaturesConfig{Electrostatics: true},
			Interactions: wca,
			Particles:    ParticlesConfig{Count: 64, Layout: "lattice", Charge: 1, TypePattern: []int{0, 1}, Temperature: 1},
			Schedule:     ScheduleConfig{StepsPerSample: 25, Samples: 40},
		},
		"dense": {
			Ranks: 4, Periodic: [3]bool{true, true, true}, Box: [3]float64{10, 10, 10},
			Dt: 0.002, Skin: 0.3, Seed: 7, Types: 2,
			Globals:      interaction.Globals{Bjerrum: 1.68, Alpha: 1.2, CoulombCut: 3},
			Features:     FeaturesConfig{Electrostatics: true},
			Interactions: wca,
			Particles:    ParticlesConfig{Count: 216, Layout: "lattice", Charge: 1, TypePattern: []int{0, 1}, Temperature: 1},
			Schedule:     ScheduleConfig{StepsPerSample: 25, Samples: 40},
		},
	},
}

// GetPreset returns a copy of the named preset with unset ambient fields
// filled from DefaultConfig, or nil.
func GetPreset(system, preset string) *Config {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	p, ok := systemPresets[preset]
	if !ok {
		return nil
	}
	cfg := *p
	def := DefaultConfig()
	if cfg.Globals == (interaction.Globals{}) {
		cfg.Globals = def.Globals
	}
	cfg.Transport = def.Transport
	cfg.LogLevel = def.LogLevel
	return &cfg
}

func ListPresets(system string) []string {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(systemPresets))
	for name := range systemPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Systems lists the preset families.
func Systems() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
