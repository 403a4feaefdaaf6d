package force

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/interaction"
	"github.com/san-kum/mdmesh/internal/particle"
)

func newCalc(t *testing.T, coulomb bool) *Calculator {
	t.Helper()
	tab := interaction.NewTable(2)
	require.NoError(t, tab.Update(0, 0, interaction.Params{Epsilon: 1, Sigma: 1, Cutoff: 2.5}))
	require.NoError(t, tab.Update(0, 1, interaction.Params{Epsilon: 0.5, Sigma: 1.2, Cutoff: 2.5, Shift: 0.01}))
	g := interaction.DefaultGlobals()
	return &Calculator{Table: tab, Globals: &g, Coulomb: coulomb}
}

func allPairs(s *particle.Store) particle.PairList {
	var pairs particle.PairList
	for i := 0; i < s.NumSlots(); i++ {
		for j := i + 1; j < s.NumSlots(); j++ {
			pairs = append(pairs, particle.Pair{I: i, J: j})
		}
	}
	return pairs
}

func TestLJScenario(t *testing.T) {
	c := newCalc(t, false)
	s := particle.NewStore()
	s.Place(0, r3.Vec{})
	s.Place(1, r3.Vec{X: 1})
	c.ComputeForces(s, allPairs(s))

	p0, _ := s.Get(0)
	p1, _ := s.Get(1)
	assert.InDelta(t, -24, p0.Force.X, 1e-12)
	assert.InDelta(t, 24, p1.Force.X, 1e-12)
	assert.Zero(t, p0.Force.Y)
	assert.Zero(t, p0.Force.Z)
}

func TestCoulombScenario(t *testing.T) {
	c := newCalc(t, true)
	tab := interaction.NewTable(1)
	c.Table = tab
	s := particle.NewStore()
	a := s.Place(0, r3.Vec{})
	a.Q = 1
	b := s.Place(1, r3.Vec{X: 5})
	b.Q = -1
	c.ComputeForces(s, allPairs(s))

	a, _ = s.Get(0)
	b, _ = s.Get(1)
	const r = 5.0
	mag := 1.68 * math.Exp(-r*r) * (interaction.ErfcPart(r)/r + 2/math.Sqrt(math.Pi)) / r
	assert.InDelta(t, mag, a.Force.X, 1e-15, "pulled towards b")
	assert.InDelta(t, -mag, b.Force.X, 1e-15, "pulled towards a")
	assert.Greater(t, a.Force.X, 0.0)
}

func TestNewtonThirdLaw(t *testing.T) {
	c := newCalc(t, true)
	rng := rand.New(rand.NewSource(3))
	s := particle.NewStore()
	id := 0
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 3; z++ {
				jitter := r3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: rng.Float64() - 0.5}
				pos := r3.Add(r3.Scale(1.2, r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}), r3.Scale(0.2, jitter))
				p := s.Place(id, pos)
				p.Type = id % 2
				p.Q = float64(1 - 2*(id%2))
				id++
			}
		}
	}
	pairs := allPairs(s)
	c.ComputeForces(s, pairs)

	var total r3.Vec
	var scale float64
	for _, p := range s.Locals() {
		total = r3.Add(total, p.Force)
		scale = math.Max(scale, r3.Norm(p.Force))
	}
	assert.InDelta(t, 0, r3.Norm(total), 1e-10*math.Max(scale, 1))

	for _, pr := range pairs[:10] {
		p1, p2 := s.At(pr.I), s.At(pr.J)
		f := c.pairForce(p1, p2)
		g := c.pairForce(p2, p1)
		assert.Equal(t, r3.Scale(-1, f), g)
	}
}

func TestExclusiveCutoff(t *testing.T) {
	c := newCalc(t, false)
	tests := []struct {
		name string
		x    float64
		zero bool
	}{
		{"just below", math.Nextafter(2.5, 0), false},
		{"exactly at", 2.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := particle.NewStore()
			s.Place(0, r3.Vec{})
			s.Place(1, r3.Vec{X: tt.x})
			c.ComputeForces(s, allPairs(s))
			p, _ := s.Get(1)
			assert.Equal(t, tt.zero, p.Force == r3.Vec{})
		})
	}
}

func TestComputeForcesIsIdempotent(t *testing.T) {
	c := newCalc(t, true)
	s := particle.NewStore()
	for id, x := range []float64{0, 1.1, 2.3, 3.2} {
		p := s.Place(id, r3.Vec{X: x, Y: 0.1 * float64(id)})
		p.Q = 1
	}
	s.SetGhosts([]particle.Particle{{ID: 10, Pos: r3.Vec{X: -1}, Q: -1}})
	pairs := allPairs(s)

	c.ComputeForces(s, pairs)
	first := make([]r3.Vec, s.NumSlots())
	for i := range first {
		first[i] = s.At(i).Force
	}
	c.ComputeForces(s, pairs)
	for i := range first {
		assert.Equal(t, first[i], s.At(i).Force, "slot %d", i)
		assert.Equal(t, s.At(i).Pos, s.At(i).PosOld)
	}
	assert.NotEqual(t, r3.Vec{}, s.At(s.Len()).Force, "ghost keeps its share")
}

func TestEnergyAndVirial(t *testing.T) {
	c := newCalc(t, false)
	s := particle.NewStore()
	s.Place(0, r3.Vec{})
	s.Place(1, r3.Vec{X: 1})
	pairs := allPairs(s)

	e := c.Energy(s, pairs)
	assert.InDelta(t, 0, e.LJ, 1e-12)
	assert.Zero(t, e.Coulomb)

	w := c.Virial(s, pairs)
	// d = -1 along x, force on the first particle is -24
	assert.InDelta(t, 24, w[0], 1e-12)
	assert.Zero(t, w[4])

	p, _ := s.Get(1)
	p.Vel = r3.Vec{X: 2}
	assert.InDelta(t, 2, Kinetic(s), 1e-12)
}
