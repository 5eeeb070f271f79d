package server

import (
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/peer"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/sim"
	"github.com/andersfylling/slipstream/internal/tilemap"
)

func testConfig() config.Config {
	return config.Config{
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
		MapWidth:                 128,
		MapHeight:                128,
	}
}

// filterFixture builds a sim with a registered client (backed by a pipe
// peer so queued messages can be inspected) and its entity.
type filterFixture struct {
	sim    *Sim
	client *Client
	entity protocol.EntityID
}

func newFilterFixture(t *testing.T) *filterFixture {
	t.Helper()
	cfg := testConfig()
	world := sim.NewWorld(tilemap.New(cfg.MapWidth, cfg.MapHeight))
	network := NewNetwork(cfg, zerolog.Nop())
	serverSim := NewSim(cfg, world, network, zerolog.Nop())

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	const netID protocol.NetworkID = 1
	client := newClient(netID, peer.New(local, cfg.ClientTimeout(), zerolog.Nop()), cfg.Tuning(), cfg.MaxBatchSize, zerolog.Nop())
	network.clients[netID] = client

	entity := world.Spawn(sim.Position{X: 64, Y: 64})
	serverSim.clients[netID] = &clientEntry{entity: entity}

	return &filterFixture{sim: serverSim, client: client, entity: entity}
}

// queuedTypes drains the client's queued messages into their types.
func (f *filterFixture) queuedTypes() []protocol.MsgType {
	f.client.queueMu.Lock()
	defer f.client.queueMu.Unlock()
	var types []protocol.MsgType
	for _, msg := range f.client.queued {
		types = append(types, msg.Type())
	}
	return types
}

func (f *filterFixture) queuedUpdate(t *testing.T) protocol.EntityUpdate {
	t.Helper()
	f.client.queueMu.Lock()
	defer f.client.queueMu.Unlock()
	for _, msg := range f.client.queued {
		if update, ok := msg.(*protocol.EntityUpdate); ok {
			return *update
		}
	}
	t.Fatal("no EntityUpdate queued")
	return protocol.EntityUpdate{}
}

// TestDirtyEntityInsideAOIIsSent: the replication filter sends an update
// for an entity iff it is dirty and inside the client's radius.
func TestDirtyEntityInsideAOIIsSent(t *testing.T) {
	f := newFilterFixture(t)
	world := f.sim.world

	near := world.Spawn(sim.Position{X: 70, Y: 70})  // ~8.5 units away
	far := world.Spawn(sim.Position{X: 120, Y: 120}) // ~79 units away
	world.MarkDirty(near)
	world.MarkDirty(far)

	f.sim.sendClientUpdates()

	update := f.queuedUpdate(t)
	require.Len(t, update.Entities, 1)
	assert.Equal(t, near, update.Entities[0].Entity)
}

// TestCleanEntityInsideAOIIsNotSent: proximity alone isn't enough; the
// entity must be dirty this tick.
func TestCleanEntityInsideAOIIsNotSent(t *testing.T) {
	f := newFilterFixture(t)
	f.sim.world.Spawn(sim.Position{X: 70, Y: 70})

	f.sim.sendClientUpdates()

	assert.Equal(t, []protocol.MsgType{protocol.MsgExplicitConfirmation}, f.queuedTypes())
}

// TestEmptyTickSendsExplicitConfirmation: a tick with nothing in range
// still advances the client's replication buffer.
func TestEmptyTickSendsExplicitConfirmation(t *testing.T) {
	f := newFilterFixture(t)
	f.sim.sendClientUpdates()
	assert.Equal(t, []protocol.MsgType{protocol.MsgExplicitConfirmation}, f.queuedTypes())
}

// TestDroppedInputForcesOwnState: after a dropped input, the client's own
// authoritative state is included even though its entity isn't dirty.
func TestDroppedInputForcesOwnState(t *testing.T) {
	f := newFilterFixture(t)
	f.client.MarkInputDropped()

	f.sim.sendClientUpdates()

	update := f.queuedUpdate(t)
	require.Len(t, update.Entities, 1)
	assert.Equal(t, f.entity, update.Entities[0].Entity)

	// The flag is one-shot.
	f.client.queued = nil
	f.sim.sendClientUpdates()
	assert.Equal(t, []protocol.MsgType{protocol.MsgExplicitConfirmation}, f.queuedTypes())
}

// TestDroppedInputDoesNotDuplicateOwnEntity: if the client's entity is
// already in the update, the drop correction must not add it twice.
func TestDroppedInputDoesNotDuplicateOwnEntity(t *testing.T) {
	f := newFilterFixture(t)
	f.sim.world.MarkDirty(f.entity)
	f.client.MarkInputDropped()

	f.sim.sendClientUpdates()

	update := f.queuedUpdate(t)
	assert.Len(t, update.Entities, 1)
}

// TestDirtySetClearedAfterSend: dirtiness is consumed by the filter pass.
func TestDirtySetClearedAfterSend(t *testing.T) {
	f := newFilterFixture(t)
	near := f.sim.world.Spawn(sim.Position{X: 70, Y: 70})
	f.sim.world.MarkDirty(near)

	f.sim.sendClientUpdates()
	f.client.queued = nil
	f.sim.sendClientUpdates()

	assert.Equal(t, []protocol.MsgType{protocol.MsgExplicitConfirmation}, f.queuedTypes())
}
