// Package particle holds the per-rank particle store.
package particle

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/vec"
)

var ErrNotFound = errors.New("particle: not found")

// Particle is one point particle. Ghosts are read-only images of particles
// owned by other ranks (or periodic images of local ones) and carry the
// image Shift that was added to the owner's position.
type Particle struct {
	ID     int
	Type   int
	Q      float64
	Pos    r3.Vec
	PosOld r3.Vec
	Vel    r3.Vec
	Force  r3.Vec
	Bonds  []int

	Owner int
	Ghost bool
	Shift r3.Vec
}

// Pair addresses two particles by slot; see Store.At.
type Pair struct {
	I, J int
}

type PairList []Pair

// Store holds a rank's local particles followed by its ghosts. Slot indices
// address locals first, then ghosts, and stay valid until the next mutation.
type Store struct {
	locals []Particle
	ghosts []Particle
	index  map[int]int
}

func NewStore() *Store {
	return &Store{index: make(map[int]int)}
}

func (s *Store) Len() int       { return len(s.locals) }
func (s *Store) NumGhosts() int { return len(s.ghosts) }
func (s *Store) NumSlots() int  { return len(s.locals) + len(s.ghosts) }

// Locals returns the local particles. The slice aliases the store.
func (s *Store) Locals() []Particle { return s.locals }

// Ghosts returns the ghost particles. The slice aliases the store.
func (s *Store) Ghosts() []Particle { return s.ghosts }

// At returns the particle in slot i.
func (s *Store) At(i int) *Particle {
	if i < len(s.locals) {
		return &s.locals[i]
	}
	return &s.ghosts[i-len(s.locals)]
}

func (s *Store) Get(id int) (*Particle, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.locals[i], true
}

// Place inserts a particle with the given id at pos, or moves the existing
// one there. New particles get zero velocity and force.
func (s *Store) Place(id int, pos r3.Vec) *Particle {
	if p, ok := s.Get(id); ok {
		p.Pos = pos
		return p
	}
	return s.Add(Particle{ID: id, Pos: pos, PosOld: pos})
}

// Add appends p as a local particle, replacing any particle with its id.
func (s *Store) Add(p Particle) *Particle {
	p.Ghost = false
	p.Shift = r3.Vec{}
	if i, ok := s.index[p.ID]; ok {
		s.locals[i] = p
		return &s.locals[i]
	}
	s.index[p.ID] = len(s.locals)
	s.locals = append(s.locals, p)
	return &s.locals[len(s.locals)-1]
}

// Remove deletes the local particle id.
func (s *Store) Remove(id int) error {
	i, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	s.removeAt(i)
	return nil
}

func (s *Store) removeAt(i int) {
	last := len(s.locals) - 1
	delete(s.index, s.locals[i].ID)
	if i != last {
		s.locals[i] = s.locals[last]
		s.index[s.locals[i].ID] = i
	}
	s.locals[last] = Particle{}
	s.locals = s.locals[:last]
}

func (s *Store) RemoveAll() {
	s.locals = s.locals[:0]
	s.ghosts = s.ghosts[:0]
	clear(s.index)
}

// RemoveBondsTo drops every bond of a local particle that points at id.
func (s *Store) RemoveBondsTo(id int) {
	for i := range s.locals {
		b := s.locals[i].Bonds[:0]
		for _, partner := range s.locals[i].Bonds {
			if partner != id {
				b = append(b, partner)
			}
		}
		s.locals[i].Bonds = b
	}
}

// RemoveAllBonds clears every bond of every local particle.
func (s *Store) RemoveAllBonds() {
	for i := range s.locals {
		s.locals[i].Bonds = nil
	}
}

// Take removes and returns the local particles for which leave is true.
func (s *Store) Take(leave func(*Particle) bool) []Particle {
	var out []Particle
	for i := 0; i < len(s.locals); {
		if leave(&s.locals[i]) {
			out = append(out, s.locals[i])
			s.removeAt(i)
			continue
		}
		i++
	}
	return out
}

// SetGhosts replaces the ghost layer.
func (s *Store) SetGhosts(g []Particle) {
	s.ghosts = append(s.ghosts[:0], g...)
	for i := range s.ghosts {
		s.ghosts[i].Ghost = true
	}
}

// Rescale multiplies local positions along dim by scale, or along every dim
// when dim is -1.
func (s *Store) Rescale(dim int, scale float64) {
	for i := range s.locals {
		p := &s.locals[i]
		if dim < 0 {
			p.Pos = r3.Scale(scale, p.Pos)
			continue
		}
		vec.Set(&p.Pos, dim, vec.Get(p.Pos, dim)*scale)
	}
}

func (s *Store) KillMotion() {
	for i := range s.locals {
		s.locals[i].Vel = r3.Vec{}
	}
}

func (s *Store) KillForces() {
	for i := range s.locals {
		s.locals[i].Force = r3.Vec{}
	}
}

// SortByID orders locals by id so iteration is reproducible.
func (s *Store) SortByID() {
	sort.Slice(s.locals, func(a, b int) bool { return s.locals[a].ID < s.locals[b].ID })
	for i := range s.locals {
		s.index[s.locals[i].ID] = i
	}
}

// IDs returns the sorted ids of the local particles.
func (s *Store) IDs() []int {
	ids := make([]int, 0, len(s.locals))
	for _, p := range s.locals {
		ids = append(ids, p.ID)
	}
	sort.Ints(ids)
	return ids
}
