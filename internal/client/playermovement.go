package client

import (
	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/sim"
)

// playerMovementSystem predicts the owned entity's movement from local
// inputs and reconciles it against authoritative server updates: on an
// update stamped with an older tick it snaps the entity to the server state
// and re-simulates forward through the retained input history.
type playerMovementSystem struct {
	cfg        config.Config
	log        zerolog.Logger
	world      *sim.World
	dispatcher *Dispatcher
	history    *sim.InputHistory
}

func newPlayerMovementSystem(cfg config.Config, world *sim.World, dispatcher *Dispatcher, history *sim.InputHistory, log zerolog.Logger) *playerMovementSystem {
	return &playerMovementSystem{
		cfg:        cfg,
		log:        log.With().Str("component", "playerMovement").Logger(),
		world:      world,
		dispatcher: dispatcher,
		history:    history,
	}
}

// process runs the owned-entity loop for one tick.
func (s *playerMovementSystem) process(currentTick uint32, player protocol.EntityID) {
	in, pos, prev, vel, box, ok := s.world.Body(player)
	if !ok {
		return
	}

	// Save the old position for interpolation.
	prev.X, prev.Y, prev.Z = pos.X, pos.Y, pos.Z
	prev.Initialized = true

	// Drain authoritative updates for us; keep the latest.
	latestTick, serverState, received := s.receivePlayerUpdates(player)
	if received {
		s.snapAndReplay(currentTick, latestTick, serverState, in, pos, vel, box)
	}

	// Advance one step with the live input to produce this tick's
	// displayed position.
	live, ok := s.history.At(0)
	if !ok {
		s.log.Fatal().Uint32("tick", currentTick).Msg("no input recorded for the current tick")
		return
	}
	delta := s.cfg.SimTimestep().Seconds()
	sim.Step(in, pos, vel, box, live, delta, s.world.Tiles())
}

// receivePlayerUpdates drains the player update queue, returning the state
// from the newest server tick seen.
func (s *playerMovementSystem) receivePlayerUpdates(player protocol.EntityID) (uint32, protocol.EntityState, bool) {
	// Drop notices only tell us a correction is coming; the correction
	// itself arrives as a regular update carrying our own state.
	for {
		select {
		case drop := <-s.dispatcher.Drops:
			s.log.Debug().Uint32("tick", drop.Tick).Msg("awaiting authoritative correction for dropped input")
			continue
		default:
		}
		break
	}

	var (
		latestTick uint32
		state      protocol.EntityState
		received   bool
	)
	for {
		select {
		case update := <-s.dispatcher.PlayerUpdates:
			for i := range update.Entities {
				if update.Entities[i].Entity == player && update.Tick >= latestTick {
					latestTick = update.Tick
					state = update.Entities[i]
					received = true
				}
			}
		default:
			return latestTick, state, received
		}
	}
}

// snapAndReplay rewinds the owned entity to the server's authoritative
// state and re-simulates every retained input after it. A position change
// relative to the pre-replay state means the original prediction was wrong.
func (s *playerMovementSystem) snapAndReplay(currentTick, serverTick uint32, serverState protocol.EntityState, in *sim.Input, pos *sim.Position, vel *sim.Velocity, box *sim.BoundingBox) {
	if serverTick >= currentTick {
		s.log.Error().
			Uint32("serverTick", serverTick).
			Uint32("currentTick", currentTick).
			Msg("received data from the future, can't replay inputs")
		return
	}

	preReplay := *pos

	// Snap to the authoritative state.
	*pos = sim.PositionFromVec3(serverState.Position)
	*vel = sim.VelocityFromVec3(serverState.Velocity)
	in.States = serverState.Input

	// Replay every retained input after the server tick, except the
	// current tick's (applied by the caller).
	delta := s.cfg.SimTimestep().Seconds()
	tiles := s.world.Tiles()
	for tick := serverTick + 1; tick < currentTick; tick++ {
		age := int(currentTick - tick)
		if age >= s.history.Length() {
			s.log.Fatal().
				Int("age", age).
				Int("historyLength", s.history.Length()).
				Msg("too few items in the input history; increase the length or reduce lag")
			return
		}
		input, ok := s.history.At(age)
		if !ok {
			s.log.Fatal().
				Int("age", age).
				Uint32("tick", tick).
				Msg("input history not yet filled for replay tick")
			return
		}
		sim.Step(in, pos, vel, box, input, delta, tiles)
	}

	if pos.X != preReplay.X || pos.Y != preReplay.Y || pos.Z != preReplay.Z {
		s.log.Warn().
			Uint32("serverTick", serverTick).
			Float32("predictedX", preReplay.X).
			Float32("predictedY", preReplay.Y).
			Float32("replayedX", pos.X).
			Float32("replayedY", pos.Y).
			Msg("predicted position mismatched after replay")
	}
}
