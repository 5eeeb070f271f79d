package client

import (
	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/sim"
)

// npcStateUpdate is one slot in the per-tick replication buffer: either
// real data for a tick or a confirmation that nothing changed.
type npcStateUpdate struct {
	tick        uint32
	dataChanged bool
	update      protocol.EntityUpdate
}

// npcMovementSystem replicates non-owned entities at a fixed offset behind
// the local tick. Received updates are ordered by tick; gaps are filled
// with synthesized no-change confirmations so consumption is strictly
// in-order with no holes.
type npcMovementSystem struct {
	cfg        config.Config
	log        zerolog.Logger
	world      *sim.World
	dispatcher *Dispatcher

	lastReceivedTick  uint32
	lastProcessedTick uint32

	// replicationOffset is negative: how far into the past NPC data is
	// replayed. Retuned by the same adjustment protocol as the local tick,
	// doubled and negated, because setting ourselves ahead makes received
	// data appear twice as far behind.
	replicationOffset int

	queue []npcStateUpdate
}

func newNpcMovementSystem(cfg config.Config, world *sim.World, dispatcher *Dispatcher, log zerolog.Logger) *npcMovementSystem {
	return &npcMovementSystem{
		cfg:               cfg,
		log:               log.With().Str("component", "npcMovement").Logger(),
		world:             world,
		dispatcher:        dispatcher,
		replicationOffset: cfg.InitialReplicationOffset,
	}
}

// applyTickAdjustment retunes the replication offset for a tick adjustment
// the sim is applying to itself.
func (s *npcMovementSystem) applyTickAdjustment(adjustment int) {
	s.replicationOffset += -2 * adjustment
	if s.replicationOffset >= 0 {
		s.log.Fatal().
			Int("offset", s.replicationOffset).
			Msg("adjusted replication offset too far into the future")
	}
}

// process consumes buffered replication data up to the desired tick.
func (s *npcMovementSystem) process(currentTick uint32, player protocol.EntityID) {
	s.receiveEntityUpdates()

	desired := int64(currentTick) + int64(s.replicationOffset)
	if desired < 0 {
		return
	}
	desiredTick := uint32(desired)

	updated := false
	for s.lastProcessedTick < desiredTick && len(s.queue) > 0 {
		updated = true

		// Move every NPC as if its inputs didn't change.
		s.moveAllNpcs(player)

		next := s.queue[0]
		if next.tick != s.lastProcessedTick+1 {
			s.log.Fatal().
				Uint32("updateTick", next.tick).
				Uint32("lastProcessedTick", s.lastProcessedTick).
				Msg("processing npc replication out of order")
			return
		}
		if next.dataChanged {
			s.applyUpdate(next.update, player)
		}

		s.lastProcessedTick++
		s.queue = s.queue[1:]
	}

	if !updated && s.lastReceivedTick != 0 && s.lastProcessedTick < desiredTick {
		s.log.Warn().
			Uint32("lastProcessed", s.lastProcessedTick).
			Uint32("desired", desiredTick).
			Int("queueSize", len(s.queue)).
			Int("offset", s.replicationOffset).
			Msg("npc replication buffer starved, retrying next tick")
	}
}

// receiveEntityUpdates drains the NPC queue from the network, collapsing
// explicit and implicit confirmations into contiguous per-tick slots.
func (s *npcMovementSystem) receiveEntityUpdates() {
	for {
		select {
		case update := <-s.dispatcher.NpcUpdates:
			switch update.Type {
			case NpcExplicitConfirmation:
				s.handleConfirmation(update.Tick)
			case NpcImplicitConfirmation:
				s.handleImplicitConfirmation(update.Tick)
			case NpcDataUpdate:
				s.handleUpdate(update.Update)
			}
		default:
			return
		}
	}
}

// handleConfirmation processes an explicit tick-stamped no-change
// confirmation, filling any gap before it.
func (s *npcMovementSystem) handleConfirmation(tick uint32) {
	if tick == 0 {
		return
	}
	if s.lastReceivedTick == 0 {
		// First data from the server; start consuming from here.
		s.lastProcessedTick = tick - 1
		s.lastReceivedTick = tick - 1
	}
	if tick <= s.lastReceivedTick {
		return
	}
	s.handleImplicitConfirmation(tick)
}

// handleImplicitConfirmation pushes empty slots for every tick in
// (lastReceivedTick, confirmedTick].
func (s *npcMovementSystem) handleImplicitConfirmation(confirmedTick uint32) {
	for tick := s.lastReceivedTick + 1; tick <= confirmedTick; tick++ {
		s.queue = append(s.queue, npcStateUpdate{tick: tick})
	}
	if confirmedTick > s.lastReceivedTick {
		s.lastReceivedTick = confirmedTick
	}
}

// handleUpdate pushes real data for the update's tick, implicitly
// confirming every tick between it and the last received one.
func (s *npcMovementSystem) handleUpdate(update protocol.EntityUpdate) {
	if update.Tick == 0 {
		return
	}
	if s.lastReceivedTick == 0 {
		// First received update; init so ticks look incrementally
		// increasing.
		s.lastProcessedTick = update.Tick - 1
		s.lastReceivedTick = update.Tick - 1
	}
	if update.Tick <= s.lastReceivedTick {
		return
	}
	s.handleImplicitConfirmation(update.Tick - 1)
	s.queue = append(s.queue, npcStateUpdate{tick: update.Tick, dataChanged: true, update: update})
	s.lastReceivedTick = update.Tick
}

// moveAllNpcs extrapolates every non-owned entity one step under its
// current input.
func (s *npcMovementSystem) moveAllNpcs(player protocol.EntityID) {
	delta := s.cfg.SimTimestep().Seconds()
	tiles := s.world.Tiles()
	s.world.ForEachBody(func(id protocol.EntityID, in *sim.Input, pos *sim.Position, prev *sim.PreviousPosition, vel *sim.Velocity, box *sim.BoundingBox) {
		if id == player {
			return
		}
		prev.X, prev.Y, prev.Z = pos.X, pos.Y, pos.Z
		prev.Initialized = true
		sim.Step(in, pos, vel, box, in.States, delta, tiles)
	})
}

// applyUpdate corrects NPCs whose state the server says changed, spawning
// entities we haven't seen before.
func (s *npcMovementSystem) applyUpdate(update protocol.EntityUpdate, player protocol.EntityID) {
	for i := range update.Entities {
		state := &update.Entities[i]
		if state.Entity == player {
			continue
		}

		if !s.world.Has(state.Entity) {
			if err := s.world.SpawnWithID(state.Entity, sim.PositionFromVec3(state.Position)); err != nil {
				s.log.Error().Err(err).Uint32("entity", uint32(state.Entity)).Msg("spawning npc failed")
				continue
			}
		}

		in, pos, prev, vel, box, ok := s.world.Body(state.Entity)
		if !ok {
			continue
		}
		in.States = state.Input
		*pos = sim.PositionFromVec3(state.Position)
		*vel = sim.VelocityFromVec3(state.Velocity)
		box.Box = box.Box.CenteredOn(pos.X, pos.Y)

		// Don't lerp a fresh entity in from the origin.
		if !prev.Initialized {
			prev.X, prev.Y, prev.Z = pos.X, pos.Y, pos.Z
			prev.Initialized = true
		}
	}
}

// reset clears all replication state on disconnect.
func (s *npcMovementSystem) reset() {
	s.lastReceivedTick = 0
	s.lastProcessedTick = 0
	s.replicationOffset = s.cfg.InitialReplicationOffset
	s.queue = nil
}
