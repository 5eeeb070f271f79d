package client

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/clock"
	"github.com/andersfylling/slipstream/internal/config"
	"github.com/andersfylling/slipstream/internal/peer"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/stats"
	"github.com/andersfylling/slipstream/internal/wire"
)

// inactiveDelay is how long the receive loop sleeps when no socket
// activity was reported.
const inactiveDelay = time.Millisecond

// statsDumpSeconds is how often network statistics are logged.
const statsDumpSeconds = 5

// Network is the client's connection to the server: a dedicated I/O task
// that receives and dispatches batches, and a send path used by the
// simulation task. The tick adjustment applier sits between the two.
type Network struct {
	cfg        config.Config
	log        zerolog.Logger
	dispatcher *Dispatcher
	processor  *Processor
	applier    *clock.Applier

	// server is written by the I/O task on connect and read by the
	// simulation task's send path.
	server atomic.Pointer[peer.Peer]

	exitRequested atomic.Bool
	done          chan struct{}

	scratch []byte

	// messagesSentSinceTick tracks whether a heartbeat is needed. Touched
	// only by the simulation task.
	messagesSentSinceTick int

	ticksSinceStatsLog int
}

// NewNetwork creates the client network layer.
func NewNetwork(cfg config.Config, dispatcher *Dispatcher, processor *Processor, log zerolog.Logger) *Network {
	netLog := log.With().Str("component", "network").Logger()
	return &Network{
		cfg:        cfg,
		log:        netLog,
		dispatcher: dispatcher,
		processor:  processor,
		applier:    clock.NewApplier(netLog),
	}
}

// Connect spins up the receive task, which performs the connection attempt.
func (n *Network) Connect() {
	if n.server.Load() != nil {
		n.log.Info().Msg("attempted to connect while connected")
		return
	}
	n.exitRequested.Store(false)
	n.done = make(chan struct{})
	go n.connectAndReceive()
}

// Disconnect tears the connection down and spins the receive task down.
func (n *Network) Disconnect() {
	n.exitRequested.Store(true)
	if server := n.server.Load(); server != nil {
		server.Disconnect()
	}
	if n.done != nil {
		<-n.done
		n.done = nil
	}
	n.server.Store(nil)
	n.applier.Reset()
	n.messagesSentSinceTick = 0
	n.ticksSinceStatsLog = 0
}

// TransferTickAdjustment hands any pending tick shift to the simulation
// loop; see clock.Applier.Transfer.
func (n *Network) TransferTickAdjustment() int {
	return n.applier.Transfer()
}

// SendInputs sends the tick-stamped input state for this tick.
func (n *Network) SendInputs(inputs protocol.ClientInputs) {
	n.send(&inputs)
}

// Tick runs once per network tick on the simulation task: sends a heartbeat
// if nothing else was sent, and periodically logs network statistics.
func (n *Network) Tick(currentTick uint32) {
	if n.cfg.RunOffline || n.server.Load() == nil {
		return
	}
	if currentTick != 0 && n.messagesSentSinceTick == 0 {
		n.send(&protocol.Heartbeat{Tick: currentTick})
	}
	n.messagesSentSinceTick = 0

	n.ticksSinceStatsLog++
	if n.ticksSinceStatsLog >= statsDumpSeconds*n.cfg.SimTickRate/n.cfg.NetworkTickInterval() {
		n.ticksSinceStatsLog = 0
		sent, received := stats.Dump()
		n.log.Info().
			Float64("bytesSentPerSecond", float64(sent)/statsDumpSeconds).
			Float64("bytesReceivedPerSecond", float64(received)/statsDumpSeconds).
			Msg("network statistics")
	}
}

// send frames one message under the current iteration echo and writes it.
func (n *Network) send(msg protocol.Message) {
	if n.cfg.RunOffline {
		return
	}
	server := n.server.Load()
	if server == nil || !server.IsConnected() {
		n.log.Info().Msg("tried to send while server is disconnected")
		return
	}
	frame, err := wire.EncodeClientFrame(n.applier.Iteration(), msg)
	if err != nil {
		n.log.Error().Err(err).Stringer("type", msg.Type()).Msg("framing outgoing message failed")
		return
	}
	if server.Send(frame) == peer.Success {
		n.messagesSentSinceTick++
	}
}

// connectAndReceive is the I/O task: it dials the server, then receives and
// dispatches batches until shutdown or disconnect.
func (n *Network) connectAndReceive() {
	defer close(n.done)

	server, err := peer.Dial(n.cfg.ServerAddr, n.cfg.ClientTimeout(), n.log)
	if err != nil {
		n.log.Info().Err(err).Str("addr", n.cfg.ServerAddr).Msg("connection attempt failed")
		n.dispatcher.Errors <- ConnectionError{Type: ConnectionFailed}
		return
	}
	n.server.Store(server)
	n.scratch = make([]byte, 0, n.cfg.MaxBatchSize)

	// Introduce ourselves; the server answers with a ConnectionResponse in
	// its next batch.
	frame, err := wire.EncodeClientFrame(0, &protocol.ConnectionRequest{
		Version: protocol.ProtocolVersion,
		Name:    n.cfg.PlayerName,
	})
	if err == nil {
		server.Send(frame)
	}

	for !n.exitRequested.Load() {
		header, result := server.ReceiveBytes(wire.ServerHeaderSize, false)
		switch result {
		case peer.Success:
			if err := n.processBatch(server, header); err != nil {
				n.log.Error().Err(err).Msg("batch processing failed, dropping connection")
				server.Disconnect()
				n.dispatcher.Errors <- ConnectionError{Type: ConnectionDisconnected}
				return
			}
		case peer.Disconnected:
			n.log.Info().Msg("server disconnected while receiving header")
			n.dispatcher.Errors <- ConnectionError{Type: ConnectionDisconnected}
			return
		case peer.NoWaitingData:
			time.Sleep(inactiveDelay)
		}
	}
}

// processBatch applies the header's tick adjustment, then receives,
// decompresses, and dispatches the batch payload. A batch is either fully
// processed or the connection is considered broken.
func (n *Network) processBatch(server *peer.Peer, headerBytes []byte) error {
	header, err := wire.DecodeServerHeader(headerBytes, n.cfg.MaxBatchSize)
	if err != nil {
		return err
	}

	// The adjustment rides on every batch and is applied before the batch's
	// messages so the sim sees it at the earliest possible tick.
	n.applier.Observe(header.Adjustment, header.Iteration)

	if header.BatchSize == 0 {
		return nil
	}

	payload, result := server.ReceiveBytes(header.BatchSize, true)
	if result != peer.Success {
		return errors.Wrap(wire.ErrBadHeader, "failed to receive batch payload")
	}

	if header.Compressed {
		n.scratch, err = wire.Decompress(n.scratch[:0], payload, n.cfg.MaxBatchSize)
		if err != nil {
			return err
		}
		payload = n.scratch
	}

	return wire.ForEachRecord(payload, n.processor.ProcessMessage)
}
