package client

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/sim"
	"github.com/andersfylling/slipstream/internal/tilemap"
)

// ConnectionState is the client's connection lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateAwaitingResponse
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	default:
		return "Disconnected"
	}
}

// connectionSystem drives the connection state machine and initializes or
// clears the sim state on transitions. It's also the terminal consumer of
// ConnectionError events.
type connectionSystem struct {
	cfg        config.Config
	log        zerolog.Logger
	world      *sim.World
	network    *Network
	processor  *Processor
	dispatcher *Dispatcher
	owner      *Sim

	state        ConnectionState
	attemptStart time.Time
	playerEntity protocol.EntityID
}

func newConnectionSystem(owner *Sim, cfg config.Config, world *sim.World, network *Network, processor *Processor, dispatcher *Dispatcher, log zerolog.Logger) *connectionSystem {
	return &connectionSystem{
		cfg:        cfg,
		log:        log.With().Str("component", "serverConnection").Logger(),
		world:      world,
		network:    network,
		processor:  processor,
		dispatcher: dispatcher,
		owner:      owner,
		state:      StateDisconnected,
	}
}

// process advances the state machine by one tick.
func (c *connectionSystem) process() {
	switch c.state {
	case StateDisconnected:
		if !c.owner.connectRequested {
			return
		}
		c.owner.connectRequested = false
		if c.cfg.RunOffline {
			c.initMockSimState()
			c.state = StateConnected
			return
		}
		c.network.Connect()
		c.state = StateAwaitingResponse
		c.attemptStart = time.Now()

	case StateAwaitingResponse:
		select {
		case response := <-c.dispatcher.ConnectionResponses:
			c.initSimState(response)
			c.state = StateConnected
		default:
			if time.Since(c.attemptStart) >= c.cfg.ConnectResponseTimeout() {
				c.log.Info().Msg("timed out waiting for connection response")
				c.dispatcher.Errors <- ConnectionError{Type: ConnectionFailed}
			}
		}
	}

	// A connection error in any state resets everything.
	select {
	case connectionError := <-c.dispatcher.Errors:
		c.log.Info().Stringer("error", connectionError.Type).Msg("connection error, resetting sim state")
		c.network.Disconnect()
		c.clearSimState()
		c.state = StateDisconnected
		c.owner.reportConnectionError(connectionError)
	default:
	}
}

func (c *connectionSystem) connected() bool {
	return c.state == StateConnected
}

func (c *connectionSystem) initSimState(response protocol.ConnectionResponse) {
	c.log.Info().
		Uint32("entity", uint32(response.Entity)).
		Uint32("tick", response.Tick).
		Float32("x", response.Spawn.X).
		Float32("y", response.Spawn.Y).
		Msg("received connection response")

	c.world.SetTiles(tilemap.New(int(response.MapWidth), int(response.MapHeight)))

	// Aim our tick a reasonable distance ahead of the server; it will walk
	// us into the target band after the first few messages.
	c.owner.currentTick.Store(response.Tick + uint32(c.cfg.InitialTickOffset))

	if err := c.world.SpawnWithID(response.Entity, sim.PositionFromVec3(response.Spawn)); err != nil {
		c.log.Fatal().Err(err).Msg("spawning player entity failed")
	}
	c.playerEntity = response.Entity
	c.processor.SetPlayerEntity(response.Entity)
	c.owner.onConnected(response)
}

// initMockSimState sets up a local player without a server, for offline
// mode.
func (c *connectionSystem) initMockSimState() {
	const mockPlayerEntity protocol.EntityID = 1
	spawn := sim.Position{
		X: float32(c.world.Tiles().Width) / 2,
		Y: float32(c.world.Tiles().Height) / 2,
	}
	if err := c.world.SpawnWithID(mockPlayerEntity, spawn); err != nil {
		c.log.Fatal().Err(err).Msg("spawning mock player failed")
	}
	c.playerEntity = mockPlayerEntity
	c.processor.SetPlayerEntity(mockPlayerEntity)
	c.owner.onConnected(protocol.ConnectionResponse{
		Entity:    mockPlayerEntity,
		Spawn:     spawn.Vec3(),
		MapWidth:  uint16(c.world.Tiles().Width),
		MapHeight: uint16(c.world.Tiles().Height),
	})
	c.log.Info().Msg("running offline with mock sim state")
}

func (c *connectionSystem) clearSimState() {
	c.world.Clear()
	c.playerEntity = 0
	c.processor.SetPlayerEntity(0)
	c.owner.resetSystems()

	// Tick goes back to zero so the network knows not to heartbeat until
	// the next connection is established.
	c.owner.currentTick.Store(0)
}
