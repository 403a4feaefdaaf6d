package engine

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/mdmesh/internal/cells"
	"github.com/san-kum/mdmesh/internal/dispatch"
	"github.com/san-kum/mdmesh/internal/interaction"
	"github.com/san-kum/mdmesh/internal/mesh"
	"github.com/san-kum/mdmesh/internal/particle"
)

const (
	CmdWhoHas dispatch.CommandID = iota + 1
	CmdPlaceParticle
	CmdPlaceNewParticle
	CmdRecvPart
	CmdRemoveParticle
	CmdUpdateParticle
	CmdAddBond
	CmdIntegrate
	CmdBcastIAParams
	CmdBcastAllIAParams
	CmdBcastMaxSeenType
	CmdBcastCoulombParams
	CmdGatherStats
	CmdRescaleParticles
	CmdResortParticles
	CmdCheckRuntimeErrors
	CmdKillParticleMotion
	CmdKillParticleForces
	CmdSystemCMS
	CmdSystemCMSVelocity
	CmdGalileiTransform
	CmdMinimizeEnergy
	CmdBcastCellStructure
)

func (s *System) registry() *dispatch.Registry {
	reg := dispatch.NewRegistry()
	reg.Add(CmdWhoHas, "who_has", s.whoHas)
	reg.Add(CmdPlaceParticle, "place_particle", s.placeParticle)
	reg.Add(CmdPlaceNewParticle, "place_new_particle", s.placeNewParticle)
	reg.Add(CmdRecvPart, "recv_part", s.recvPart)
	reg.Add(CmdRemoveParticle, "remove_particle", s.removeParticle)
	reg.Add(CmdUpdateParticle, "update_particle", s.updateParticle)
	reg.Add(CmdAddBond, "add_bond", s.addBond)
	reg.Add(CmdIntegrate, "integrate", s.integrate)
	reg.Add(CmdBcastIAParams, "bcast_ia_params", s.bcastIAParams)
	reg.Add(CmdBcastAllIAParams, "bcast_all_ia_params", s.bcastAllIAParams)
	reg.Add(CmdBcastMaxSeenType, "bcast_max_seen_type", s.bcastMaxSeenType)
	reg.Add(CmdBcastCoulombParams, "bcast_coulomb_params", s.bcastCoulombParams)
	reg.Add(CmdGatherStats, "gather_stats", s.gatherStats)
	reg.Add(CmdRescaleParticles, "rescale_particles", s.rescaleParticles)
	reg.Add(CmdResortParticles, "resort_particles", s.resortParticles)
	reg.Add(CmdCheckRuntimeErrors, "check_runtime_errors", s.checkRuntimeErrors)
	reg.Add(CmdKillParticleMotion, "kill_particle_motion", s.killParticleMotion)
	reg.Add(CmdKillParticleForces, "kill_particle_forces", s.killParticleForces)
	reg.Add(CmdSystemCMS, "system_cms", s.systemCMS)
	reg.Add(CmdSystemCMSVelocity, "system_cms_velocity", s.systemCMSVelocity)
	reg.Add(CmdGalileiTransform, "galilei_transform", s.galileiTransform)
	reg.Add(CmdMinimizeEnergy, "minimize_energy", s.minimizeEnergy)
	reg.Add(CmdBcastCellStructure, "bcast_cell_structure", s.bcastCellStructure)
	return reg
}

// Follow-up transfers of coordinator commands.
var (
	vecRendezvous      = mesh.NewChannel[r3.Vec](mesh.TagRendezvous)
	floatRendezvous    = mesh.NewChannel[float64](mesh.TagRendezvous)
	intRendezvous      = mesh.NewChannel[int](mesh.TagRendezvous)
	paramsRendezvous   = mesh.NewChannel[interaction.Params](mesh.TagRendezvous)
	tableRendezvous    = mesh.NewChannel[interaction.Snapshot](mesh.TagRendezvous)
	globalsRendezvous  = mesh.NewChannel[interaction.Globals](mesh.TagRendezvous)
	updateRendezvous   = mesh.NewChannel[particleUpdate](mesh.TagRendezvous)
	partRendezvous     = mesh.NewChannel[foundParticle](mesh.TagRendezvous)
	minimizeRendezvous = mesh.NewChannel[MinimizeParams](mesh.TagRendezvous)
)

// Reductions issued inside handlers.
var (
	idsGather     = mesh.NewChannel[[]int](mesh.TagCollective)
	countGather   = mesh.NewChannel[int](mesh.TagCollective)
	statsGather   = mesh.NewChannel[[]float64](mesh.TagCollective)
	errorsGather  = mesh.NewChannel[[]RuntimeError](mesh.TagCollective)
	momentsGather = mesh.NewChannel[moments](mesh.TagCollective)
	maxExchange   = mesh.NewChannel[float64](mesh.TagCollective)
)

// Neighbor exchange.
var (
	flagExchange   = mesh.NewChannel[bool](mesh.TagGhost)
	sourceExchange = mesh.NewChannel[[]cells.Source](mesh.TagGhost)
	posExchange    = mesh.NewChannel[[]ghostPos](mesh.TagGhost)
	forceExchange  = mesh.NewChannel[[]ghostForce](mesh.TagGhost)
	migrateChannel = mesh.NewChannel[[]particle.Particle](mesh.TagMigrate)
)
