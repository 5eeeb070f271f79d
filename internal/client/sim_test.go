package client

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andersfylling/slipstream/internal/protocol"
)

// TestOfflineModeMocksTheServer runs the real tick path with RunOffline
// set: a local player is spawned without any connection and predicts its
// movement from local input alone.
func TestOfflineModeMocksTheServer(t *testing.T) {
	cfg := testConfig()
	cfg.RunOffline = true

	var input protocol.InputVector
	input[protocol.XUp] = protocol.Pressed

	simulation := NewSim(cfg, StaticInput{Vector: input}, zerolog.Nop())

	var connected bool
	simulation.OnConnected(func(protocol.ConnectionResponse) { connected = true })
	simulation.Connect()

	for i := 0; i < 10; i++ {
		simulation.tick()
	}

	require.True(t, connected)
	assert.Equal(t, StateConnected, simulation.State())

	player := simulation.PlayerEntity()
	require.NotZero(t, player)

	_, pos, _, _, _, ok := simulation.World().Body(player)
	require.True(t, ok)
	assert.Greater(t, pos.X, float32(cfg.MapWidth)/2, "player must predict movement locally")
}

// TestTicksAdvanceWhileDisconnected: the loop runs and counts ticks even
// before any connection exists.
func TestTicksAdvanceWhileDisconnected(t *testing.T) {
	simulation := NewSim(testConfig(), StaticInput{}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		simulation.tick()
	}
	assert.Equal(t, uint32(5), simulation.CurrentTick())
	assert.Equal(t, StateDisconnected, simulation.State())
}
