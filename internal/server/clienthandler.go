package server

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/andersfylling/slipstream/internal/inbox"
	"github.com/andersfylling/slipstream/internal/peer"
	"github.com/andersfylling/slipstream/internal/protocol"
)

// idleDelay is how long the handler sleeps when no socket had activity.
const idleDelay = time.Millisecond

// clientHandler is the single task that accepts new connections, sweeps
// disconnected clients out of the map, and receives messages from every
// connected peer into the tick-sorted inbox.
type clientHandler struct {
	network  *Network
	listener *net.TCPListener
	ids      *idPool
	limiter  *rate.Limiter
	log      zerolog.Logger

	exitRequested atomic.Bool
	done          chan struct{}
}

func newClientHandler(network *Network, log zerolog.Logger) (*clientHandler, error) {
	addr, err := net.ResolveTCPAddr("tcp", network.cfg.ListenAddr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve listen address")
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	return &clientHandler{
		network:  network,
		listener: listener,
		ids:      newIDPool(network.cfg.MaxClients),
		limiter:  rate.NewLimiter(rate.Limit(network.cfg.AcceptRate), network.cfg.MaxClients),
		log:      log.With().Str("component", "clientHandler").Logger(),
		done:     make(chan struct{}),
	}, nil
}

func (h *clientHandler) start() {
	go h.serviceClients()
}

func (h *clientHandler) stop() {
	h.exitRequested.Store(true)
	_ = h.listener.Close()
	<-h.done
}

func (h *clientHandler) serviceClients() {
	defer close(h.done)

	for !h.exitRequested.Load() {
		h.acceptNewClients()
		h.eraseDisconnectedClients()
		if !h.receiveClientMessages() {
			time.Sleep(idleDelay)
		}
	}
}

// acceptNewClients polls the listener and registers every waiting
// connection under a fresh network ID.
func (h *clientHandler) acceptNewClients() {
	for {
		_ = h.listener.SetDeadline(time.Now())
		conn, err := h.listener.Accept()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				return
			}
			if !h.exitRequested.Load() {
				h.log.Error().Err(err).Msg("accept failed")
			}
			return
		}

		if !h.limiter.Allow() {
			h.log.Warn().Stringer("remote", conn.RemoteAddr()).Msg("accept rate exceeded, rejecting connection")
			_ = conn.Close()
			continue
		}

		netID, err := h.ids.reserveID()
		if err != nil {
			h.log.Warn().Err(err).Msg("rejecting connection")
			_ = conn.Close()
			continue
		}

		p := peer.New(conn, h.network.cfg.ClientTimeout(), h.log)
		client := newClient(protocol.NetworkID(netID), p, h.network.cfg.Tuning(), h.network.cfg.MaxBatchSize, h.log)

		h.network.clientsMu.Lock()
		h.network.clients[client.netID] = client
		h.network.clientsMu.Unlock()

		h.network.connectEvents <- client.netID
		h.log.Info().Uint32("netID", netID).Stringer("remote", conn.RemoteAddr()).Msg("client connected")
	}
}

// eraseDisconnectedClients removes every client whose peer has died and
// releases its ID.
func (h *clientHandler) eraseDisconnectedClients() {
	var dead []protocol.NetworkID

	h.network.clientsMu.RLock()
	for netID, client := range h.network.clients {
		if !client.IsConnected() {
			dead = append(dead, netID)
		}
	}
	h.network.clientsMu.RUnlock()

	for _, netID := range dead {
		h.network.clientsMu.Lock()
		delete(h.network.clients, netID)
		h.network.clientsMu.Unlock()

		h.ids.freeID(uint32(netID))
		h.network.disconnectEvents <- netID
		h.log.Info().Uint32("netID", uint32(netID)).Msg("erased disconnected client")
	}
}

// receiveClientMessages drains every waiting message from every client.
// Returns whether any client had activity.
func (h *clientHandler) receiveClientMessages() bool {
	h.network.clientsMu.RLock()
	defer h.network.clientsMu.RUnlock()

	active := false
	for _, client := range h.network.clients {
		for {
			msg, result := client.ReceiveMessage()
			if result != peer.Success {
				break
			}
			active = true
			h.processMessage(client, msg)
		}
	}
	return active
}

func (h *clientHandler) processMessage(client *Client, msg ClientMessage) {
	switch msg.Type {
	case protocol.MsgClientInputs:
		inputs, err := protocol.DecodeClientInputs(msg.Body)
		if err != nil {
			h.log.Error().Err(err).Uint32("netID", uint32(client.netID)).Msg("bad client inputs, disconnecting")
			client.Disconnect()
			return
		}
		result := h.network.inbox.Push(inputs.Tick, ClientInput{NetID: client.netID, Inputs: inputs})
		if result.Validity != inbox.Valid {
			h.log.Debug().
				Uint32("netID", uint32(client.netID)).
				Uint32("tick", inputs.Tick).
				Int64("diff", result.Diff).
				Stringer("validity", result.Validity).
				Msg("input outside window, dropped")
			client.QueueMessage(&protocol.MessageDropInfo{Tick: inputs.Tick})
			client.MarkInputDropped()
		}
		client.RecordTickDiff(result.Diff)

	case protocol.MsgHeartbeat:
		heartbeat, err := protocol.DecodeHeartbeat(msg.Body)
		if err != nil {
			h.log.Error().Err(err).Uint32("netID", uint32(client.netID)).Msg("bad heartbeat, disconnecting")
			client.Disconnect()
			return
		}
		diff := int64(heartbeat.Tick) - int64(h.network.currentTick.Load())
		client.RecordTickDiff(diff)

	case protocol.MsgConnectionRequest:
		request, err := protocol.DecodeConnectionRequest(msg.Body)
		if err != nil {
			h.log.Error().Err(err).Uint32("netID", uint32(client.netID)).Msg("bad connection request, disconnecting")
			client.Disconnect()
			return
		}
		if !protocol.Compatible(protocol.ProtocolVersion, int(request.Version)) {
			h.log.Info().
				Uint32("netID", uint32(client.netID)).
				Uint8("version", request.Version).
				Msg("incompatible protocol version, disconnecting")
			client.Disconnect()
			return
		}
		client.name = request.Name
		h.log.Info().Uint32("netID", uint32(client.netID)).Str("name", request.Name).Msg("connection request")

	default:
		h.log.Error().Stringer("type", msg.Type).Uint32("netID", uint32(client.netID)).Msg("unexpected message type, disconnecting")
		client.Disconnect()
	}
}
