// Package cells builds the ghost layer and the Verlet candidate pair list of
// a rank's subdomain.
package cells

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/particle"
	"github.com/san-kum/mdmesh/internal/topology"
	"github.com/san-kum/mdmesh/internal/vec"
)

// Source is what a rank publishes about each of its particles so others can
// build ghosts from it.
type Source struct {
	ID    int
	Type  int
	Q     float64
	Pos   r3.Vec
	Owner int
}

// Builder derives ghosts and pairs for one rank. Range is the interaction
// cutoff plus the skin.
type Builder struct {
	Grid   *topology.Grid
	Box    r3.Vec
	Cutoff float64
	Skin   float64

	ref map[int]r3.Vec
}

func (b *Builder) Range() float64 { return b.Cutoff + b.Skin }

// Ghosts returns every image of sources within Range of rank's subdomain,
// except the unshifted local particles themselves.
func (b *Builder) Ghosts(rank int, sources []Source) []particle.Particle {
	lo, hi := b.Grid.Subdomain(rank, b.Box)
	rng := b.Range()
	shifts := b.imageShifts()

	var out []particle.Particle
	for _, src := range sources {
		for _, shift := range shifts {
			if src.Owner == rank && shift == (r3.Vec{}) {
				continue
			}
			pos := r3.Add(src.Pos, shift)
			if boxDistance(pos, lo, hi) >= rng {
				continue
			}
			out = append(out, particle.Particle{
				ID:     src.ID,
				Type:   src.Type,
				Q:      src.Q,
				Pos:    pos,
				PosOld: pos,
				Owner:  src.Owner,
				Ghost:  true,
				Shift:  shift,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Builder) imageShifts() []r3.Vec {
	shifts := []r3.Vec{{}}
	for d := 0; d < vec.Dims; d++ {
		if !b.Grid.IsPeriodic(d) {
			continue
		}
		l := vec.Get(b.Box, d)
		n := len(shifts)
		for _, sign := range []float64{-1, 1} {
			for _, s := range shifts[:n] {
				vec.Set(&s, d, vec.Get(s, d)+sign*l)
				shifts = append(shifts, s)
			}
		}
	}
	return shifts
}

// boxDistance is the distance from p to the region [lo, hi).
func boxDistance(p, lo, hi r3.Vec) float64 {
	var d2 float64
	for d := 0; d < vec.Dims; d++ {
		x := vec.Get(p, d)
		var gap float64
		switch {
		case x < vec.Get(lo, d):
			gap = vec.Get(lo, d) - x
		case x > vec.Get(hi, d):
			gap = x - vec.Get(hi, d)
		}
		d2 += gap * gap
	}
	return math.Sqrt(d2)
}

type cellKey [3]int

func (b *Builder) key(p r3.Vec, size float64) cellKey {
	return cellKey{
		int(math.Floor(p.X / size)),
		int(math.Floor(p.Y / size)),
		int(math.Floor(p.Z / size)),
	}
}

// Pairs returns the candidate pairs of s within Range. Local pairs appear
// once. A local-ghost pair appears only on the rank where the local id is
// the smaller one, so every physical pair is computed exactly once across
// the mesh.
func (b *Builder) Pairs(s *particle.Store) particle.PairList {
	rng := b.Range()
	if rng <= 0 || s.Len() == 0 {
		return nil
	}
	rng2 := rng * rng

	bins := make(map[cellKey][]int)
	for i := 0; i < s.NumSlots(); i++ {
		k := b.key(s.At(i).Pos, rng)
		bins[k] = append(bins[k], i)
	}

	var pairs particle.PairList
	nLocal := s.Len()
	for i := 0; i < nLocal; i++ {
		pi := s.At(i)
		k := b.key(pi.Pos, rng)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for dz := -1; dz <= 1; dz++ {
					for _, j := range bins[cellKey{k[0] + dx, k[1] + dy, k[2] + dz}] {
						pj := s.At(j)
						if j < nLocal {
							if j <= i {
								continue
							}
						} else if pi.ID >= pj.ID {
							continue
						}
						if r3.Norm2(r3.Sub(pi.Pos, pj.Pos)) < rng2 {
							pairs = append(pairs, particle.Pair{I: i, J: j})
						}
					}
				}
			}
		}
	}
	sort.Slice(pairs, func(a, c int) bool {
		if pairs[a].I != pairs[c].I {
			return pairs[a].I < pairs[c].I
		}
		return pairs[a].J < pairs[c].J
	})
	return pairs
}

// MarkBuilt records the local positions the pair list was built from.
func (b *Builder) MarkBuilt(s *particle.Store) {
	b.ref = make(map[int]r3.Vec, s.Len())
	for _, p := range s.Locals() {
		b.ref[p.ID] = p.Pos
	}
}

// MaxDisplacement is the largest distance a local particle has moved since
// MarkBuilt. Particles unknown at build time count as infinitely far.
func (b *Builder) MaxDisplacement(s *particle.Store) float64 {
	var m float64
	for _, p := range s.Locals() {
		ref, ok := b.ref[p.ID]
		if !ok {
			return math.Inf(1)
		}
		if d := r3.Norm(r3.Sub(p.Pos, ref)); d > m {
			m = d
		}
	}
	return m
}

// NeedsRebuild reports whether some local particle moved more than half the
// skin since the last build.
func (b *Builder) NeedsRebuild(s *particle.Store) bool {
	return b.ref == nil || b.MaxDisplacement(s) > b.Skin/2
}
