package engine

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/cells"
	"github.com/san-kum/mdmesh/internal/dispatch"
	"github.com/san-kum/mdmesh/internal/particle"
	"github.com/san-kum/mdmesh/internal/vec"
)

type ghostPos struct {
	ID  int
	Pos r3.Vec
}

type ghostForce struct {
	ID    int
	Force r3.Vec
}

// interactionRange is the largest distance at which any pair interacts.
func (s *System) interactionRange() float64 {
	r := s.table.MaxRange()
	if s.features.Electrostatics && s.globals.CoulombCut > r {
		r = s.globals.CoulombCut
	}
	return r
}

// prepareNeighbors makes ghosts and pairs current. The pair list is rebuilt
// when any rank needs it; otherwise only ghost positions are refreshed.
func (s *System) prepareNeighbors() error {
	need := !s.pairsValid || s.resort != resortNone || s.builder.NeedsRebuild(s.store)
	flags, err := flagExchange.Allgather(s.comm, need)
	if err != nil {
		return err
	}
	for _, f := range flags {
		if f {
			return s.rebuildNeighbors()
		}
	}
	return s.refreshGhosts()
}

func (s *System) rebuildNeighbors() error {
	s.builder.Cutoff = s.interactionRange()
	if s.builder.Cutoff > 0 {
		for d := 0; d < vec.Dims; d++ {
			if s.grid.IsPeriodic(d) && vec.Get(s.box, d) <= 2*s.builder.Range() {
				return fmt.Errorf("%w: box %v, range %v", ErrBoxTooSmall, s.box, s.builder.Range())
			}
		}
	}
	if err := s.migrate(s.resort == resortGlobal); err != nil {
		return err
	}

	mine := make([]cells.Source, 0, s.store.Len())
	for _, p := range s.store.Locals() {
		mine = append(mine, cells.Source{ID: p.ID, Type: p.Type, Q: p.Q, Pos: p.Pos, Owner: s.Rank()})
	}
	all, err := sourceExchange.Allgather(s.comm, mine)
	if err != nil {
		return err
	}
	var sources []cells.Source
	for _, part := range all {
		sources = append(sources, part...)
	}
	s.store.SetGhosts(s.builder.Ghosts(s.Rank(), sources))
	s.pairs = s.builder.Pairs(s.store)
	s.builder.MarkBuilt(s.store)
	s.pairsValid = true
	s.resort = resortNone
	s.log.WithFields(logrus.Fields{
		"locals": s.store.Len(),
		"ghosts": s.store.NumGhosts(),
		"pairs":  len(s.pairs),
	}).Debug("neighbor lists rebuilt")
	return nil
}

// migrate folds local positions back into the box and hands every particle
// that left this rank's subdomain to its new owner.
func (s *System) migrate(global bool) error {
	rank := s.Rank()
	locals := s.store.Locals()
	for i := range locals {
		p := &locals[i]
		if !s.grid.InBox(p.Pos, s.box) {
			s.runtimeError("particle %d at %v is outside the box", p.ID, p.Pos)
		}
		p.Pos = s.grid.Fold(p.Pos, s.box)
	}

	near := make(map[int]bool)
	for _, r := range s.grid.Neighbors(rank) {
		near[r] = true
	}
	out := make([][]particle.Particle, s.comm.Size())
	moved := s.store.Take(func(p *particle.Particle) bool {
		return s.grid.Owner(p.Pos, s.box) != rank
	})
	for _, p := range moved {
		dst := s.grid.Owner(p.Pos, s.box)
		if !global && !near[dst] {
			s.runtimeError("particle %d moved beyond the neighboring ranks (to rank %d) during a local resort", p.ID, dst)
		}
		out[dst] = append(out[dst], p)
	}

	in, err := migrateChannel.Alltoall(s.comm, out)
	if err != nil {
		return err
	}
	for r, ps := range in {
		if r == rank {
			continue
		}
		for _, p := range ps {
			s.store.Add(p)
		}
	}
	s.store.SortByID()
	s.ownersValid = false
	return nil
}

// refreshGhosts copies current owner positions onto the existing ghosts.
func (s *System) refreshGhosts() error {
	mine := make([]ghostPos, 0, s.store.Len())
	for _, p := range s.store.Locals() {
		mine = append(mine, ghostPos{ID: p.ID, Pos: p.Pos})
	}
	all, err := posExchange.Allgather(s.comm, mine)
	if err != nil {
		return err
	}
	pos := make(map[int]r3.Vec)
	for _, part := range all {
		for _, gp := range part {
			pos[gp.ID] = gp.Pos
		}
	}
	ghosts := s.store.Ghosts()
	for i := range ghosts {
		p, ok := pos[ghosts[i].ID]
		if !ok {
			return fmt.Errorf("%w: %d", ErrGhostMissing, ghosts[i].ID)
		}
		ghosts[i].Pos = r3.Add(p, ghosts[i].Shift)
	}
	return nil
}

// reduceGhostForces adds the force accumulated on every ghost to the
// particle it images.
func (s *System) reduceGhostForces() error {
	rank := s.Rank()
	out := make([][]ghostForce, s.comm.Size())
	for _, g := range s.store.Ghosts() {
		if g.Force == (r3.Vec{}) {
			continue
		}
		if g.Owner == rank {
			if p, ok := s.store.Get(g.ID); ok {
				p.Force = r3.Add(p.Force, g.Force)
			}
			continue
		}
		out[g.Owner] = append(out[g.Owner], ghostForce{ID: g.ID, Force: g.Force})
	}
	in, err := forceExchange.Alltoall(s.comm, out)
	if err != nil {
		return err
	}
	for r, fs := range in {
		if r == rank {
			continue
		}
		for _, f := range fs {
			p, ok := s.store.Get(f.ID)
			if !ok {
				return fmt.Errorf("%w: %d (force from rank %d)", ErrGhostMissing, f.ID, r)
			}
			p.Force = r3.Add(p.Force, f.Force)
		}
	}
	return nil
}

// SetSkin changes the verlet skin on every rank and rebuilds the cell
// structure with a global resort.
func (s *System) SetSkin(skin float64) error {
	if skin < 0 || math.IsNaN(skin) {
		return fmt.Errorf("engine: skin must be non-negative, got %v", skin)
	}
	s.pend.skin = skin
	return s.call(CmdBcastCellStructure, 0, 0)
}

func (s *System) bcastCellStructure(_, _ int) error {
	skin, err := floatRendezvous.Bcast(s.comm, dispatch.Root, s.pend.skin)
	if err != nil {
		return err
	}
	s.builder.Skin = skin
	s.pairsValid = false
	s.forcesValid = false
	s.resort = resortGlobal
	return s.rebuildNeighbors()
}

// Skin is the current verlet skin.
func (s *System) Skin() float64 { return s.builder.Skin }
