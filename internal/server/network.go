// Package server implements the authoritative side: the client-handler
// task, the per-client connection state, the replication filter, and the
// server simulation loop.
package server

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/inbox"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/stats"
)

// ClientInput is one tick-stamped input message routed through the inbox.
type ClientInput struct {
	NetID  protocol.NetworkID
	Inputs protocol.ClientInputs
}

// statsDumpSeconds is how often network statistics are logged.
const statsDumpSeconds = 5

// Network owns the server's connection state: the client map, the
// tick-sorted inbox, and the connect/disconnect event queues. The client
// map is shared between the client-handler task (add/remove/receive) and
// the simulation task (sends, adjustment reads) under a reader-writer
// discipline: exclusive for add/remove, shared for everything else.
type Network struct {
	cfg config.Config
	log zerolog.Logger

	clientsMu sync.RWMutex
	clients   map[protocol.NetworkID]*Client

	inbox *inbox.Inbox[ClientInput]

	connectEvents    chan protocol.NetworkID
	disconnectEvents chan protocol.NetworkID

	// currentTick points at the simulation's tick counter; heartbeat diffs
	// are measured against it.
	currentTick *atomic.Uint32

	handler *clientHandler

	ticksSinceStatsLog int
}

// NewNetwork creates the server network layer.
func NewNetwork(cfg config.Config, log zerolog.Logger) *Network {
	return &Network{
		cfg:              cfg,
		log:              log.With().Str("component", "network").Logger(),
		clients:          make(map[protocol.NetworkID]*Client),
		inbox:            inbox.New[ClientInput](cfg.InboxWindow),
		connectEvents:    make(chan protocol.NetworkID, cfg.MaxClients),
		disconnectEvents: make(chan protocol.NetworkID, cfg.MaxClients),
	}
}

// RegisterCurrentTick hands the network a pointer to the simulation's tick
// counter.
func (n *Network) RegisterCurrentTick(tick *atomic.Uint32) {
	n.currentTick = tick
}

// Start begins listening and spins up the client-handler task.
func (n *Network) Start() error {
	handler, err := newClientHandler(n, n.log)
	if err != nil {
		return err
	}
	n.handler = handler
	n.handler.start()
	return nil
}

// Stop shuts the client-handler task down and closes every connection.
func (n *Network) Stop() {
	if n.handler != nil {
		n.handler.stop()
	}
	n.clientsMu.Lock()
	for _, client := range n.clients {
		client.Disconnect()
	}
	n.clientsMu.Unlock()
}

// Addr returns the address the server is listening on; valid after Start.
// Useful when listening on an ephemeral port.
func (n *Network) Addr() net.Addr {
	return n.handler.listener.Addr()
}

// ConnectEvents delivers the network IDs of newly connected clients.
func (n *Network) ConnectEvents() <-chan protocol.NetworkID { return n.connectEvents }

// DisconnectEvents delivers the network IDs of disconnected clients.
func (n *Network) DisconnectEvents() <-chan protocol.NetworkID { return n.disconnectEvents }

// StartReceive returns the inbox queue for the given tick; the caller must
// drain it and then call EndReceive.
func (n *Network) StartReceive(tick uint32) ([]ClientInput, error) {
	return n.inbox.StartReceive(tick)
}

// EndReceive advances the inbox window and releases its lock.
func (n *Network) EndReceive() error {
	return n.inbox.EndReceive()
}

// Send queues a message for a client. A message for an unknown client is
// silently discarded; the client may have just disconnected.
func (n *Network) Send(netID protocol.NetworkID, msg protocol.Message) {
	n.clientsMu.RLock()
	defer n.clientsMu.RUnlock()
	if client, ok := n.clients[netID]; ok {
		client.QueueMessage(msg)
	}
}

// Client returns the client with the given ID under a shared lock.
func (n *Network) Client(netID protocol.NetworkID) (*Client, bool) {
	n.clientsMu.RLock()
	defer n.clientsMu.RUnlock()
	client, ok := n.clients[netID]
	return client, ok
}

// Tick flushes every client's batch for this network tick and periodically
// logs network statistics.
func (n *Network) Tick() {
	n.clientsMu.RLock()
	for _, client := range n.clients {
		client.SendWaitingMessages()
	}
	n.clientsMu.RUnlock()

	n.ticksSinceStatsLog++
	if n.ticksSinceStatsLog >= statsDumpSeconds*n.cfg.SimTickRate/n.cfg.NetworkTickInterval() {
		n.logNetworkStatistics()
		n.ticksSinceStatsLog = 0
	}
}

func (n *Network) logNetworkStatistics() {
	sent, received := stats.Dump()
	n.log.Info().
		Float64("bytesSentPerSecond", float64(sent)/statsDumpSeconds).
		Float64("bytesReceivedPerSecond", float64(received)/statsDumpSeconds).
		Int("clients", n.clientCount()).
		Msg("network statistics")
}

func (n *Network) clientCount() int {
	n.clientsMu.RLock()
	defer n.clientsMu.RUnlock()
	return len(n.clients)
}
