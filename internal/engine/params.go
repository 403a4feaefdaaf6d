package engine

import (
	"fmt"

	"github.com/san-kum/mdmesh/internal/dispatch"
	"github.com/san-kum/mdmesh/internal/interaction"
)

// SetIAParams broadcasts the parameters of type pair (i,j). Every rank
// stores them for both (i,j) and (j,i).
func (s *System) SetIAParams(i, j int, p interaction.Params) error {
	if i < 0 || j < 0 {
		return fmt.Errorf("%w: (%d,%d)", interaction.ErrBadType, i, j)
	}
	if n := max(i, j) + 1; n > s.table.NumTypes() {
		if err := s.BcastMaxSeenType(n); err != nil {
			return err
		}
	}
	s.pend.params = p
	return s.call(CmdBcastIAParams, i, j)
}

func (s *System) bcastIAParams(i, j int) error {
	p, err := paramsRendezvous.Bcast(s.comm, dispatch.Root, s.pend.params)
	if err != nil {
		return err
	}
	if err := s.table.Update(i, j, p); err != nil {
		return err
	}
	s.notify(ShortRangeChange)
	return nil
}

// BcastAllIAParams replaces the whole parameter table on every rank.
func (s *System) BcastAllIAParams(snap interaction.Snapshot) error {
	if len(snap.Params) != snap.N*snap.N {
		return fmt.Errorf("engine: table snapshot holds %d entries for %d types", len(snap.Params), snap.N)
	}
	s.pend.table = snap
	return s.call(CmdBcastAllIAParams, 0, 0)
}

func (s *System) bcastAllIAParams(_, _ int) error {
	snap, err := tableRendezvous.Bcast(s.comm, dispatch.Root, s.pend.table)
	if err != nil {
		return err
	}
	if err := s.table.Restore(snap); err != nil {
		return err
	}
	s.notify(ShortRangeChange)
	return nil
}

// BcastMaxSeenType grows the type table on every rank to n types.
func (s *System) BcastMaxSeenType(n int) error {
	return s.call(CmdBcastMaxSeenType, 0, n)
}

func (s *System) bcastMaxSeenType(_, n int) error {
	s.table.Resize(n)
	return nil
}

// SetCoulombParams broadcasts the electrostatics globals. They cannot change
// once integration has started.
func (s *System) SetCoulombParams(g interaction.Globals) error {
	if s.started {
		return ErrGlobalsFrozen
	}
	if g.Bjerrum < 0 || g.Alpha < 0 || g.CoulombCut < 0 {
		return fmt.Errorf("engine: electrostatics globals must be non-negative, got %+v", g)
	}
	s.pend.globals = g
	return s.call(CmdBcastCoulombParams, 0, 0)
}

func (s *System) bcastCoulombParams(_, _ int) error {
	g, err := globalsRendezvous.Bcast(s.comm, dispatch.Root, s.pend.globals)
	if err != nil {
		return err
	}
	s.globals = g
	s.notify(CoulombChange)
	return nil
}
