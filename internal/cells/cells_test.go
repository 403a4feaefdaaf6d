package cells

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/particle"
	"github.com/san-kum/mdmesh/internal/topology"
)

var box = r3.Vec{X: 10, Y: 10, Z: 10}

func periodicGrid(t *testing.T, n int) *topology.Grid {
	t.Helper()
	g, err := topology.New(n, [3]int{}, [3]bool{true, true, true})
	require.NoError(t, err)
	return g
}

func storeFor(b *Builder, rank int, sources []Source) *particle.Store {
	s := particle.NewStore()
	for _, src := range sources {
		if src.Owner != rank {
			continue
		}
		p := s.Place(src.ID, src.Pos)
		p.Type = src.Type
		p.Q = src.Q
	}
	s.SetGhosts(b.Ghosts(rank, sources))
	return s
}

func TestPeriodicImagePair(t *testing.T) {
	b := &Builder{Grid: periodicGrid(t, 1), Box: box, Cutoff: 2, Skin: 0.5}
	sources := []Source{
		{ID: 1, Pos: r3.Vec{X: 0.5, Y: 5, Z: 5}},
		{ID: 2, Pos: r3.Vec{X: 9.5, Y: 5, Z: 5}},
	}
	s := storeFor(b, 0, sources)

	pairs := b.Pairs(s)
	require.Len(t, pairs, 1)
	pi, pj := s.At(pairs[0].I), s.At(pairs[0].J)
	assert.Equal(t, 1, pi.ID)
	assert.Equal(t, 2, pj.ID)
	assert.True(t, pj.Ghost)
	assert.InDelta(t, 1, r3.Norm(r3.Sub(pi.Pos, pj.Pos)), 1e-12)
	assert.Equal(t, r3.Vec{X: -10}, pj.Shift)
}

func TestNoGhostsWhenOpen(t *testing.T) {
	g, err := topology.New(1, [3]int{}, [3]bool{})
	require.NoError(t, err)
	b := &Builder{Grid: g, Box: box, Cutoff: 2, Skin: 0.5}
	s := storeFor(b, 0, []Source{
		{ID: 1, Pos: r3.Vec{X: 0.5, Y: 5, Z: 5}},
		{ID: 2, Pos: r3.Vec{X: 9.5, Y: 5, Z: 5}},
	})
	assert.Zero(t, s.NumGhosts())
	assert.Empty(t, b.Pairs(s))
}

func minImage(d r3.Vec) r3.Vec {
	d.X -= box.X * math.Round(d.X/box.X)
	d.Y -= box.Y * math.Round(d.Y/box.Y)
	d.Z -= box.Z * math.Round(d.Z/box.Z)
	return d
}

func TestPairsMatchBruteForceAcrossRanks(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8} {
		g := periodicGrid(t, n)
		rng := rand.New(rand.NewSource(int64(n)))
		sources := make([]Source, 150)
		for i := range sources {
			pos := r3.Vec{X: rng.Float64() * box.X, Y: rng.Float64() * box.Y, Z: rng.Float64() * box.Z}
			sources[i] = Source{ID: i, Pos: pos, Owner: g.Owner(pos, box)}
		}

		want := map[[2]int]bool{}
		for i := range sources {
			for j := i + 1; j < len(sources); j++ {
				if r3.Norm(minImage(r3.Sub(sources[i].Pos, sources[j].Pos))) < 2.5 {
					want[[2]int{i, j}] = true
				}
			}
		}

		got := map[[2]int]bool{}
		for rank := 0; rank < n; rank++ {
			b := &Builder{Grid: g, Box: box, Cutoff: 2, Skin: 0.5}
			s := storeFor(b, rank, sources)
			for _, p := range b.Pairs(s) {
				a, c := s.At(p.I).ID, s.At(p.J).ID
				if a > c {
					a, c = c, a
				}
				key := [2]int{a, c}
				assert.False(t, got[key], "ranks=%d pair %v counted twice", n, key)
				got[key] = true
			}
		}
		assert.Equal(t, want, got, "ranks=%d", n)
	}
}

func TestNeedsRebuild(t *testing.T) {
	b := &Builder{Grid: periodicGrid(t, 1), Box: box, Cutoff: 2, Skin: 0.4}
	s := particle.NewStore()
	p := s.Place(1, r3.Vec{X: 1})
	assert.True(t, b.NeedsRebuild(s))

	b.MarkBuilt(s)
	assert.False(t, b.NeedsRebuild(s))

	p.Pos.X += 0.2
	assert.False(t, b.NeedsRebuild(s))
	p.Pos.X += 0.01
	assert.True(t, b.NeedsRebuild(s))

	b.MarkBuilt(s)
	s.Place(2, r3.Vec{X: 5})
	assert.True(t, b.NeedsRebuild(s))
}
