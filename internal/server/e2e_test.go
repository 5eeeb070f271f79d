package server_test

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andersfylling/slipstream/internal/client"
	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/server"
	"github.com/andersfylling/slipstream/internal/sim"
	"github.com/andersfylling/slipstream/internal/tilemap"
)

// TestConnectInputReplicate runs a real server and a real client over
// loopback TCP: connect, hold an input, and verify the client's predicted
// entity moves in that direction while both tick counters advance.
func TestConnectInputReplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end test needs real time")
	}

	cfg := config.Config{
		SimTickRate:              30,
		NetworkTickRate:          20,
		InitialTickOffset:        5,
		InitialReplicationOffset: -10,
		MaxBatchSize:             16384,
		InputHistoryLength:       20,
		InboxWindow:              10,
		AOIRadius:                24,
		MaxClients:               10,
		AcceptRate:               20,
		MapWidth:                 64,
		MapHeight:                64,
		ListenAddr:               "127.0.0.1:0",
		PlayerName:               "e2e",
		TickdiffHistoryLength:    10,
		TickdiffValidBound:       10,
		TickdiffBandLower:        1,
		TickdiffBandUpper:        3,
		TickdiffTarget:           2,
		TickdiffSpikeScale:       2,
		TickdiffSpikeOffset:      3,
		TickdiffMaxStep:          2,
	}

	log := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Server.
	world := sim.NewWorld(tilemap.New(cfg.MapWidth, cfg.MapHeight))
	network := server.NewNetwork(cfg, log)
	serverSim := server.NewSim(cfg, world, network, log)
	require.NoError(t, network.Start())
	defer network.Stop()
	go serverSim.Run(ctx)

	// Client, holding "move +x" the whole time.
	clientCfg := cfg
	clientCfg.ServerAddr = network.Addr().String()
	var input protocol.InputVector
	input[protocol.XUp] = protocol.Pressed
	clientSim := client.NewSim(clientCfg, client.StaticInput{Vector: input}, log)

	// Observed from the sim task, read by the test through atomics.
	var (
		connected atomic.Bool
		spawnX    atomic.Uint64
		posX      atomic.Uint64
		tick      atomic.Uint32
	)
	clientSim.OnConnected(func(response protocol.ConnectionResponse) {
		connected.Store(true)
		spawnX.Store(uint64(math.Float64bits(float64(response.Spawn.X))))
	})
	clientSim.OnFrame(func(float64) {
		tick.Store(clientSim.CurrentTick())
		player := clientSim.PlayerEntity()
		if player == 0 {
			return
		}
		if _, pos, _, _, _, ok := clientSim.World().Body(player); ok {
			posX.Store(uint64(math.Float64bits(float64(pos.X))))
		}
	})
	clientSim.OnConnectionError(func(connectionError client.ConnectionError) {
		t.Errorf("connection error: %s", connectionError.Type)
		cancel()
	})

	clientSim.Connect()
	go clientSim.Run(ctx)

	require.Eventually(t, connected.Load, 5*time.Second, 10*time.Millisecond,
		"client never received a connection response")

	startTick := tick.Load()
	startX := math.Float64frombits(spawnX.Load())

	// The predicted entity must move in +x and the tick counter advance.
	require.Eventually(t, func() bool {
		return math.Float64frombits(posX.Load()) > startX+1
	}, 5*time.Second, 10*time.Millisecond, "predicted position never advanced")

	assert.Greater(t, tick.Load(), startTick)

	// The server's simulation must be ticking as well.
	require.Eventually(t, func() bool {
		return serverSim.CurrentTick() > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
}
