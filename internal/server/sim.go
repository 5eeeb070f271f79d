package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/sim"
)

// clientEntry is the simulation's view of a connected client: the entity it
// owns, addressed by ID so that entity destruction never leaves a dangling
// reference.
type clientEntry struct {
	entity protocol.EntityID
}

// Sim is the server simulation: a fixed-step loop that drains the inbox,
// advances the world, and replicates state out through the network layer.
// Only this task mutates the world.
type Sim struct {
	cfg     config.Config
	log     zerolog.Logger
	world   *sim.World
	network *Network

	currentTick atomic.Uint32

	clients map[protocol.NetworkID]*clientEntry

	accumulator    time.Duration
	netTickCounter int
}

// NewSim creates the server simulation over the given world and network.
func NewSim(cfg config.Config, world *sim.World, network *Network, log zerolog.Logger) *Sim {
	s := &Sim{
		cfg:     cfg,
		log:     log.With().Str("component", "sim").Logger(),
		world:   world,
		network: network,
		clients: make(map[protocol.NetworkID]*clientEntry),
	}
	network.RegisterCurrentTick(&s.currentTick)
	return s
}

// CurrentTick returns the simulation's current tick.
func (s *Sim) CurrentTick() uint32 {
	return s.currentTick.Load()
}

// Run drives the fixed-step loop until the context is cancelled.
func (s *Sim) Run(ctx context.Context) {
	step := s.cfg.SimTimestep()
	last := time.Now()

	for ctx.Err() == nil {
		now := time.Now()
		s.accumulator += now.Sub(last)
		last = now

		for s.accumulator >= step {
			tickStart := time.Now()
			s.tick()
			s.accumulator -= step
			if elapsed := time.Since(tickStart); elapsed > step {
				s.log.Warn().
					Dur("elapsed", elapsed).
					Uint32("tick", s.currentTick.Load()).
					Msg("delayed tick, systems took longer than one step")
			}
		}

		time.Sleep(idleDelay)
	}
}

// tick runs one simulation step: connection events, queued inputs for this
// tick, movement, and replication at the network-tick cadence.
func (s *Sim) tick() {
	s.processConnectionEvents()
	s.processClientInputs()
	s.moveEntities()

	s.netTickCounter++
	if s.netTickCounter >= s.cfg.NetworkTickInterval() {
		s.netTickCounter = 0
		s.sendClientUpdates()
		s.network.Tick()
	}

	s.currentTick.Add(1)
}

// processConnectionEvents spawns entities for new clients and despawns
// entities for departed ones.
func (s *Sim) processConnectionEvents() {
	for {
		select {
		case netID := <-s.network.ConnectEvents():
			spawn := s.spawnPosition()
			entity := s.world.Spawn(spawn)
			s.clients[netID] = &clientEntry{entity: entity}
			s.network.Send(netID, &protocol.ConnectionResponse{
				Entity:    entity,
				Tick:      s.currentTick.Load(),
				Spawn:     spawn.Vec3(),
				MapWidth:  uint16(s.world.Tiles().Width),
				MapHeight: uint16(s.world.Tiles().Height),
			})
			s.log.Info().
				Uint32("netID", uint32(netID)).
				Uint32("entity", uint32(entity)).
				Msg("constructed entity for client")
		case netID := <-s.network.DisconnectEvents():
			if entry, ok := s.clients[netID]; ok {
				s.world.Remove(entry.entity)
				delete(s.clients, netID)
				s.log.Info().
					Uint32("netID", uint32(netID)).
					Uint32("entity", uint32(entry.entity)).
					Msg("erased entity for disconnected client")
			}
		default:
			return
		}
	}
}

// processClientInputs drains this tick's inbox queue and applies each input
// to its client's entity, marking it dirty.
func (s *Sim) processClientInputs() {
	tick := s.currentTick.Load()
	queue, err := s.network.StartReceive(tick)
	if err != nil {
		s.log.Fatal().Err(err).Uint32("tick", tick).Msg("inbox receive failed")
		return
	}
	for _, input := range queue {
		entry, ok := s.clients[input.NetID]
		if !ok {
			continue
		}
		in, _, _, _, _, ok := s.world.Body(entry.entity)
		if !ok {
			continue
		}
		in.States = input.Inputs.Input
		s.world.MarkDirty(entry.entity)
	}
	if err := s.network.EndReceive(); err != nil {
		s.log.Fatal().Err(err).Msg("inbox end receive failed")
	}
}

// moveEntities advances every entity one step under its current input.
func (s *Sim) moveEntities() {
	delta := s.cfg.SimTimestep().Seconds()
	tiles := s.world.Tiles()
	s.world.ForEachBody(func(_ protocol.EntityID, in *sim.Input, pos *sim.Position, prev *sim.PreviousPosition, vel *sim.Velocity, box *sim.BoundingBox) {
		prev.X, prev.Y, prev.Z = pos.X, pos.Y, pos.Z
		prev.Initialized = true
		sim.Step(in, pos, vel, box, in.States, delta, tiles)
	})
}

// spawnPosition is where new entities appear: the center of the map.
func (s *Sim) spawnPosition() sim.Position {
	tiles := s.world.Tiles()
	return sim.Position{
		X: float32(tiles.Width) / 2,
		Y: float32(tiles.Height) / 2,
	}
}
