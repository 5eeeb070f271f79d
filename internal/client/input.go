package client

import (
	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/sim"
)

// InputSource supplies the local player's input vector each tick. The
// spectator view and the scripted demo input both implement it.
type InputSource interface {
	Poll() protocol.InputVector
}

// StaticInput always returns the same vector; handy for tests and idle
// clients.
type StaticInput struct {
	Vector protocol.InputVector
}

// Poll implements InputSource.
func (s StaticInput) Poll() protocol.InputVector { return s.Vector }

// inputSystem polls the input source once per tick, records the vector
// into the prediction history, and sends it to the server when it changed.
// Ticks with no change are covered by the heartbeat.
type inputSystem struct {
	log     zerolog.Logger
	network *Network
	source  InputSource
	history *sim.InputHistory

	last    protocol.InputVector
	primed  bool
}

func newInputSystem(network *Network, source InputSource, history *sim.InputHistory, log zerolog.Logger) *inputSystem {
	return &inputSystem{
		log:     log.With().Str("component", "playerInput").Logger(),
		network: network,
		source:  source,
		history: history,
	}
}

// process gathers this tick's input. The history entry is recorded every
// tick, keyed by the tick, whether or not anything was sent.
func (s *inputSystem) process(currentTick uint32) {
	vector := s.source.Poll()

	if !s.primed || vector != s.last {
		s.network.SendInputs(protocol.ClientInputs{Tick: currentTick, Input: vector})
		s.last = vector
		s.primed = true
	}

	s.history.Push(vector)
}

// reset clears the change-detection state on disconnect.
func (s *inputSystem) reset() {
	s.last = protocol.InputVector{}
	s.primed = false
	s.history.Reset()
}
