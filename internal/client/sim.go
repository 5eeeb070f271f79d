package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/sim"
	"github.com/andersfylling/slipstream/internal/tilemap"
)

// idleDelay is how long the sim loop sleeps when no step is due.
const idleDelay = time.Millisecond

// Sim is the client simulation: a fixed-step loop that drives the
// connection state machine, input capture, owned-entity prediction, and
// NPC replication, honoring tick adjustments from the server.
type Sim struct {
	cfg     config.Config
	log     zerolog.Logger
	world   *sim.World
	network *Network

	currentTick atomic.Uint32

	dispatcher *Dispatcher
	processor  *Processor

	connection *connectionSystem
	input      *inputSystem
	player     *playerMovementSystem
	npc        *npcMovementSystem

	history *sim.InputHistory

	accumulator    time.Duration
	netTickCounter int

	connectRequested bool

	// onError, onConnect, onFrame let the embedding application observe
	// lifecycle transitions and frames without reaching into the systems.
	onError   func(ConnectionError)
	onConnect func(protocol.ConnectionResponse)
	onFrame   func(alpha float64)
}

// NewSim wires up a complete client: world, network, and all per-tick
// systems. The input source supplies the local player's inputs.
func NewSim(cfg config.Config, source InputSource, log zerolog.Logger) *Sim {
	world := sim.NewWorld(tilemap.New(cfg.MapWidth, cfg.MapHeight))
	dispatcher := NewDispatcher()
	processor := NewProcessor(dispatcher, log)
	network := NewNetwork(cfg, dispatcher, processor, log)
	history := sim.NewInputHistory(cfg.InputHistoryLength)

	s := &Sim{
		cfg:        cfg,
		log:        log.With().Str("component", "sim").Logger(),
		world:      world,
		network:    network,
		dispatcher: dispatcher,
		processor:  processor,
		history:    history,
	}
	s.connection = newConnectionSystem(s, cfg, world, network, processor, dispatcher, log)
	s.input = newInputSystem(network, source, history, log)
	s.player = newPlayerMovementSystem(cfg, world, dispatcher, history, log)
	s.npc = newNpcMovementSystem(cfg, world, dispatcher, log)
	return s
}

// World exposes the world for read-only display purposes.
func (s *Sim) World() *sim.World { return s.world }

// CurrentTick returns the client's current tick.
func (s *Sim) CurrentTick() uint32 { return s.currentTick.Load() }

// PlayerEntity returns the owned entity ID, or zero before connection.
func (s *Sim) PlayerEntity() protocol.EntityID { return s.connection.playerEntity }

// State returns the connection state.
func (s *Sim) State() ConnectionState { return s.connection.state }

// OnConnectionError registers a callback invoked from the sim task on every
// terminal connection transition.
func (s *Sim) OnConnectionError(fn func(ConnectionError)) { s.onError = fn }

// OnConnected registers a callback invoked once the sim state is
// initialized from a connection response.
func (s *Sim) OnConnected(fn func(protocol.ConnectionResponse)) { s.onConnect = fn }

// OnFrame registers a callback invoked from the sim task once per frame,
// after any due ticks have run. alpha is the fraction of a step left in
// the accumulator, for display interpolation. The world may be read safely
// from inside the callback.
func (s *Sim) OnFrame(fn func(alpha float64)) { s.onFrame = fn }

// Connect asks the connection system to start a connection attempt (or to
// mock one up when running offline).
func (s *Sim) Connect() {
	s.connectRequested = true
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
			adjustment := s.network.TransferTickAdjustment()
			if adjustment != 0 {
				s.npc.applyTickAdjustment(adjustment)
			}
			if adjustment < 0 {
				// Freeze: let one step of real time pass without
				// simulating, then give the next frame a chance to
				// transfer the rest.
				s.accumulator -= step
				break
			}

			tickStart := time.Now()
			// A positive adjustment means we're behind: run extra
			// iterations this frame to catch up.
			for i := 0; i < 1+adjustment; i++ {
				s.tick()
			}
			s.accumulator -= step
			if elapsed := time.Since(tickStart); elapsed > step {
				s.log.Warn().
					Dur("elapsed", elapsed).
					Uint32("tick", s.currentTick.Load()).
					Msg("delayed tick, systems took longer than one step")
			}
		}

		if s.onFrame != nil {
			s.onFrame(s.accumulator.Seconds() / step.Seconds())
		}

		time.Sleep(idleDelay)
	}

	s.network.Disconnect()
}

// tick runs every per-tick system in order.
func (s *Sim) tick() {
	s.connection.process()

	if s.connection.connected() {
		tick := s.currentTick.Load()
		s.input.process(tick)
		s.player.process(tick, s.connection.playerEntity)
		s.npc.process(tick, s.connection.playerEntity)

		s.netTickCounter++
		if s.netTickCounter >= s.cfg.NetworkTickInterval() {
			s.netTickCounter = 0
			s.network.Tick(tick)
		}
	}

	s.currentTick.Add(1)
}

// onConnected is called by the connection system once sim state exists.
func (s *Sim) onConnected(response protocol.ConnectionResponse) {
	if s.onConnect != nil {
		s.onConnect(response)
	}
}

// reportConnectionError is called by the connection system on terminal
// transitions.
func (s *Sim) reportConnectionError(connectionError ConnectionError) {
	if s.onError != nil {
		s.onError(connectionError)
	}
}

// resetSystems clears per-connection state in every system.
func (s *Sim) resetSystems() {
	s.input.reset()
	s.npc.reset()
	s.netTickCounter = 0
}
