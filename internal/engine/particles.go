package engine

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/dispatch"
	"github.com/san-kum/mdmesh/internal/mesh"
	"github.com/san-kum/mdmesh/internal/particle"
)

type updateField int

const (
	setType updateField = iota + 1
	setCharge
	setVelocity
)

type particleUpdate struct {
	Field updateField
	Type  int
	Q     float64
	Vel   r3.Vec
}

type foundParticle struct {
	Found bool
	P     particle.Particle
}

type moments struct {
	Sum r3.Vec
	N   int
}

// rendezvous moves v from the coordinator to owner. Owner gets the value,
// every other rank gets the zero value.
func rendezvous[T any](s *System, ch mesh.Channel[T], owner int, v T) (T, error) {
	var zero T
	switch {
	case s.IsCoordinator() && owner == dispatch.Root:
		return v, nil
	case s.IsCoordinator():
		return zero, ch.Send(s.comm, owner, v)
	case s.Rank() == owner:
		return ch.Recv(s.comm, dispatch.Root)
	}
	return zero, nil
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *System) whoHas(_, _ int) error {
	all, err := idsGather.Gather(s.comm, dispatch.Root, s.store.IDs())
	if err != nil || all == nil {
		return err
	}
	clear(s.owners)
	for r, ids := range all {
		for _, id := range ids {
			s.owners[id] = r
		}
	}
	s.ownersValid = true
	return nil
}

func (s *System) ensureOwners() error {
	if s.ownersValid && s.IsCoordinator() {
		return nil
	}
	return s.call(CmdWhoHas, 0, 0)
}

// ParticleOwner returns the rank that holds particle id.
func (s *System) ParticleOwner(id int) (int, error) {
	if err := s.ensureOwners(); err != nil {
		return -1, err
	}
	r, ok := s.owners[id]
	if !ok {
		return -1, fmt.Errorf("%w: %d", ErrNoParticle, id)
	}
	return r, nil
}

// PlaceParticle moves particle id to pos, creating it on the rank owning
// pos when it does not exist yet.
func (s *System) PlaceParticle(id int, pos r3.Vec) error {
	if id < 0 {
		return fmt.Errorf("engine: particle id must be non-negative, got %d", id)
	}
	if err := s.ensureOwners(); err != nil {
		return err
	}
	s.pend.pos = pos
	if owner, ok := s.owners[id]; ok {
		return s.call(CmdPlaceParticle, owner, id)
	}
	return s.call(CmdPlaceNewParticle, s.grid.Owner(pos, s.box), id)
}

// AddParticle places a new particle with the next free id and returns it.
func (s *System) AddParticle(pos r3.Vec) (int, error) {
	id := s.maxSeenID + 1
	return id, s.PlaceParticle(id, pos)
}

func (s *System) placeParticle(owner, id int) error { return s.place(owner, id, false) }

func (s *System) placeNewParticle(owner, id int) error { return s.place(owner, id, true) }

func (s *System) place(owner, id int, isNew bool) error {
	pos, err := rendezvous(s, vecRendezvous, owner, s.pend.pos)
	if err != nil {
		return err
	}
	if s.Rank() == owner {
		s.store.Place(id, pos)
	}
	if isNew {
		s.nPart++
		if id > s.maxSeenID {
			s.maxSeenID = id
		}
	}
	if s.IsCoordinator() {
		s.owners[id] = owner
	}
	s.resort = resortGlobal
	s.notify(ParticleChange)
	return nil
}

// GetParticle fetches a copy of particle id from its owner.
func (s *System) GetParticle(id int) (particle.Particle, error) {
	owner, err := s.ParticleOwner(id)
	if err != nil {
		return particle.Particle{}, err
	}
	if err := s.call(CmdRecvPart, owner, id); err != nil {
		return particle.Particle{}, err
	}
	if s.lastPart.ID != id {
		return particle.Particle{}, fmt.Errorf("%w: %d", ErrNoParticle, id)
	}
	return s.lastPart, nil
}

func (s *System) recvPart(owner, id int) error {
	var fp foundParticle
	if s.Rank() == owner {
		if p, ok := s.store.Get(id); ok {
			fp = foundParticle{Found: true, P: *p}
		}
	}
	if !s.IsCoordinator() {
		if s.Rank() == owner {
			return partRendezvous.Send(s.comm, dispatch.Root, fp)
		}
		return nil
	}
	if owner != dispatch.Root {
		var err error
		if fp, err = partRendezvous.Recv(s.comm, owner); err != nil {
			return err
		}
	}
	s.lastPart = particle.Particle{ID: -1}
	if fp.Found {
		s.lastPart = fp.P
	}
	return nil
}

// RemoveParticle deletes particle id and every bond pointing at it.
func (s *System) RemoveParticle(id int) error {
	owner, err := s.ParticleOwner(id)
	if err != nil {
		return err
	}
	return s.call(CmdRemoveParticle, owner, id)
}

func (s *System) RemoveAllParticles() error {
	return s.call(CmdRemoveParticle, dispatch.Root, -1)
}

func (s *System) removeParticle(owner, id int) error {
	if id == -1 {
		s.store.RemoveAll()
		s.nPart = 0
		s.maxSeenID = -1
		clear(s.owners)
	} else {
		if s.Rank() == owner {
			if err := s.store.Remove(id); err != nil {
				s.runtimeError("remove_particle: particle %d is not on rank %d", id, owner)
			}
		}
		s.store.RemoveBondsTo(id)
		s.nPart--
		delete(s.owners, id)
	}
	s.notify(ParticleChange)
	return nil
}

func (s *System) updateOwned(id int, u particleUpdate) error {
	owner, err := s.ParticleOwner(id)
	if err != nil {
		return err
	}
	s.pend.update = u
	return s.call(CmdUpdateParticle, owner, id)
}

// SetType changes the type of particle id, growing the type table first
// when typ is new.
func (s *System) SetType(id, typ int) error {
	if typ < 0 {
		return fmt.Errorf("engine: type must be non-negative, got %d", typ)
	}
	if typ >= s.table.NumTypes() {
		if err := s.BcastMaxSeenType(typ + 1); err != nil {
			return err
		}
	}
	return s.updateOwned(id, particleUpdate{Field: setType, Type: typ})
}

func (s *System) SetCharge(id int, q float64) error {
	return s.updateOwned(id, particleUpdate{Field: setCharge, Q: q})
}

func (s *System) SetVelocity(id int, v r3.Vec) error {
	return s.updateOwned(id, particleUpdate{Field: setVelocity, Vel: v})
}

func (s *System) updateParticle(owner, id int) error {
	u, err := rendezvous(s, updateRendezvous, owner, s.pend.update)
	if err != nil {
		return err
	}
	if s.Rank() == owner {
		p, ok := s.store.Get(id)
		if !ok {
			s.runtimeError("update_particle: particle %d is not on rank %d", id, owner)
		} else {
			switch u.Field {
			case setType:
				p.Type = u.Type
			case setCharge:
				p.Q = u.Q
			case setVelocity:
				p.Vel = u.Vel
			}
		}
	}
	s.notify(ParticleChange)
	return nil
}

// AddBond records a bond from particle id to partner.
func (s *System) AddBond(id, partner int) error {
	if _, err := s.ParticleOwner(partner); err != nil {
		return err
	}
	owner, err := s.ParticleOwner(id)
	if err != nil {
		return err
	}
	s.pend.partner = partner
	return s.call(CmdAddBond, owner, id)
}

func (s *System) addBond(owner, id int) error {
	partner, err := rendezvous(s, intRendezvous, owner, s.pend.partner)
	if err != nil {
		return err
	}
	if s.Rank() == owner {
		if p, ok := s.store.Get(id); ok {
			p.Bonds = append(p.Bonds, partner)
		} else {
			s.runtimeError("add_bond: particle %d is not on rank %d", id, owner)
		}
	}
	s.notify(ParticleChange)
	return nil
}

// RescaleParticles multiplies every position along dim by scale, or along
// all dims when dim is -1.
func (s *System) RescaleParticles(dim int, scale float64) error {
	if dim < -1 || dim > 2 {
		return fmt.Errorf("engine: rescale dim must be -1, 0, 1 or 2, got %d", dim)
	}
	s.pend.scale = scale
	return s.call(CmdRescaleParticles, 0, dim)
}

func (s *System) rescaleParticles(_, dim int) error {
	scale := s.pend.scale
	if s.IsCoordinator() {
		for r := 0; r < s.comm.Size(); r++ {
			if r == dispatch.Root {
				continue
			}
			if err := floatRendezvous.Send(s.comm, r, scale); err != nil {
				return err
			}
		}
	} else {
		var err error
		if scale, err = floatRendezvous.Recv(s.comm, dispatch.Root); err != nil {
			return err
		}
	}
	s.store.Rescale(dim, scale)
	s.resort = resortGlobal
	s.ownersValid = false
	s.notify(ParticleChange)
	return nil
}

func (s *System) KillParticleMotion() error { return s.call(CmdKillParticleMotion, 0, 0) }

func (s *System) KillParticleForces() error { return s.call(CmdKillParticleForces, 0, 0) }

func (s *System) killParticleMotion(_, _ int) error {
	s.store.KillMotion()
	return nil
}

func (s *System) killParticleForces(_, _ int) error {
	s.store.KillForces()
	return nil
}

// SystemCMS returns the center of mass of all particles (unit masses).
func (s *System) SystemCMS() (r3.Vec, error) {
	if err := s.call(CmdSystemCMS, 0, 0); err != nil {
		return r3.Vec{}, err
	}
	return s.lastVec, nil
}

// SystemCMSVelocity returns the center of mass velocity.
func (s *System) SystemCMSVelocity() (r3.Vec, error) {
	if err := s.call(CmdSystemCMSVelocity, 0, 0); err != nil {
		return r3.Vec{}, err
	}
	return s.lastVec, nil
}

func (s *System) systemCMS(_, _ int) error {
	return s.reduceMean(func(p *particle.Particle) r3.Vec { return p.Pos })
}

func (s *System) systemCMSVelocity(_, _ int) error {
	return s.reduceMean(func(p *particle.Particle) r3.Vec { return p.Vel })
}

func (s *System) reduceMean(field func(*particle.Particle) r3.Vec) error {
	var m moments
	locals := s.store.Locals()
	for i := range locals {
		m.Sum = r3.Add(m.Sum, field(&locals[i]))
	}
	m.N = len(locals)
	all, err := momentsGather.Gather(s.comm, dispatch.Root, m)
	if err != nil || all == nil {
		return err
	}
	var total moments
	for _, part := range all {
		total.Sum = r3.Add(total.Sum, part.Sum)
		total.N += part.N
	}
	s.lastVec = r3.Vec{}
	if total.N > 0 {
		s.lastVec = r3.Scale(1/float64(total.N), total.Sum)
	}
	return nil
}

// GalileiTransform removes the center of mass velocity from every particle.
func (s *System) GalileiTransform() error {
	v, err := s.SystemCMSVelocity()
	if err != nil {
		return err
	}
	s.pend.vel = v
	return s.call(CmdGalileiTransform, 0, 0)
}

func (s *System) galileiTransform(_, _ int) error {
	v, err := vecRendezvous.Bcast(s.comm, dispatch.Root, s.pend.vel)
	if err != nil {
		return err
	}
	locals := s.store.Locals()
	for i := range locals {
		locals[i].Vel = r3.Sub(locals[i].Vel, v)
	}
	return nil
}
