package scenario

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/engine"
	"github.com/san-kum/mdmesh/internal/interaction"
	"github.com/san-kum/mdmesh/internal/mesh"
)

const twoParticles = `
name: lj-pair
description: two particles at unit distance
steps:
  - op: set_ia
    i: 0
    j: 0
    params: {eps: 1, sig: 1, cut: 2.5}
  - op: place
    id: 0
    pos: [4.5, 5, 5]
  - op: place
    id: 1
    pos: [5.5, 5, 5]
    vel: [0, 0, 0]
  - op: integrate
    steps: 0
  - op: stats
    job: energy
  - op: resort
    global: true
  - op: remove
    id: 1
  - op: stats
    job: momentum
  - op: galilei
`

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// runOn executes sc on an n-rank in-process mesh and returns the
// coordinator's result and its final System.
func runOn(t *testing.T, n int, sc *Scenario) (*Result, *engine.System) {
	t.Helper()
	var (
		res  *Result
		root *engine.System
	)
	err := mesh.RunLocal(context.Background(), n, func(ctx context.Context, comm mesh.Comm) error {
		sys, err := engine.New(comm, engine.Options{
			Box:      r3.Vec{X: 10, Y: 10, Z: 10},
			Periodic: [3]bool{true, true, true},
			Dt:       0.005,
			Skin:     0.4,
			Globals:  interaction.DefaultGlobals(),
			Logger:   quietLogger(),
			Abort:    func(error) {},
		})
		if err != nil {
			return err
		}
		if !sys.IsCoordinator() {
			return sys.Loop()
		}
		root = sys
		res, err = Run(sys, sc, quietLogger())
		if err != nil {
			return err
		}
		return sys.Shutdown()
	})
	require.NoError(t, err)
	return res, root
}

func TestParse(t *testing.T) {
	sc, err := Parse([]byte(twoParticles))
	require.NoError(t, err)
	assert.Equal(t, "lj-pair", sc.Name)
	require.Len(t, sc.Steps, 9)
	assert.Equal(t, interaction.Params{Epsilon: 1, Sigma: 1, Cutoff: 2.5}, *sc.Steps[0].Params)
	assert.Equal(t, []float64{0, 0, 0}, sc.Steps[2].Vel)
	assert.True(t, sc.Steps[5].Global)
	assert.Equal(t, "galilei", sc.Steps[8].Op)
}

func TestParseRejectsBadSteps(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown op", "steps: [{op: explode}]"},
		{"short pos", "steps: [{op: place, pos: [1, 2]}]"},
		{"missing params", "steps: [{op: set_ia, i: 0, j: 0}]"},
		{"bad rescale", "steps: [{op: rescale, dim: 3, scale: 1}]"},
		{"negative steps", "steps: [{op: integrate, steps: -1}]"},
		{"missing globals", "steps: [{op: coulomb}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrBadStep)
		})
	}

	_, err := Parse([]byte("steps: [{op: stats, job: virial}]"))
	assert.ErrorIs(t, err, engine.ErrUnsupportedJob)
}

func TestRunTwoParticles(t *testing.T) {
	sc, err := Parse([]byte(twoParticles))
	require.NoError(t, err)

	for _, n := range []int{1, 2, 4} {
		res, root := runOn(t, n, sc)
		require.Len(t, res.Records, 3, "ranks=%d", n)
		assert.Empty(t, res.RuntimeErrors)

		energy := res.Records[0]
		assert.Equal(t, "energy", energy.Job)
		// LJ at r=sigma is zero; nothing moves yet.
		assert.InDelta(t, 0, energy.Values[2], 1e-9, "ranks=%d", n)
		assert.InDelta(t, 0, energy.Values[1], 1e-12, "ranks=%d", n)

		counts := res.Records[1]
		assert.Equal(t, "resort", counts.Op)
		assert.Len(t, counts.Values, n)
		sum := 0.0
		for _, c := range counts.Values {
			sum += c
		}
		assert.Equal(t, 2.0, sum)

		assert.Equal(t, 1, root.NumParticles())
	}
}

func TestRunStopsAtFirstError(t *testing.T) {
	sc := &Scenario{Steps: []Step{
		{Op: "place", ID: 0, Pos: []float64{1, 1, 1}},
		{Op: "bond", ID: 7, Partner: 0},
		{Op: "galilei"},
	}}
	err := mesh.RunLocal(context.Background(), 2, func(ctx context.Context, comm mesh.Comm) error {
		sys, err := engine.New(comm, engine.Options{
			Box:      r3.Vec{X: 10, Y: 10, Z: 10},
			Periodic: [3]bool{true, true, true},
			Dt:       0.005,
			Logger:   quietLogger(),
			Abort:    func(error) {},
		})
		if err != nil {
			return err
		}
		if !sys.IsCoordinator() {
			return sys.Loop()
		}
		_, runErr := Run(sys, sc, quietLogger())
		assert.ErrorContains(t, runErr, "step 2 (bond)")
		assert.ErrorIs(t, runErr, engine.ErrNoParticle)
		return sys.Shutdown()
	})
	require.NoError(t, err)
}
