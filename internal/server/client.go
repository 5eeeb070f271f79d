package server

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/clock"
	"github.com/andersfylling/slipstream/internal/peer"
	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/wire"
)

// Client is the server's view of one connected client: the peer socket, the
// outgoing message queue, and the tick-sync state. It's effectively an
// adapter for Peer with batching on top.
type Client struct {
	netID protocol.NetworkID
	peer  *peer.Peer
	tickSync *clock.Sync
	log   zerolog.Logger

	queueMu sync.Mutex
	queued  []protocol.Message

	encoder *wire.BatchEncoder

	// droppedInput is set when one of this client's inputs fell outside the
	// inbox window; the next update then includes the client's own
	// authoritative state so it can correct its prediction.
	droppedInput atomic.Bool

	name string
}

func newClient(netID protocol.NetworkID, p *peer.Peer, tuning clock.Tuning, maxBatch int, log zerolog.Logger) *Client {
	log = log.With().Uint32("netID", uint32(netID)).Logger()
	return &Client{
		netID:   netID,
		peer:    p,
		tickSync: clock.NewSync(tuning, log),
		log:     log,
		encoder: wire.NewBatchEncoder(maxBatch),
	}
}

// NetID returns the client's network ID.
func (c *Client) NetID() protocol.NetworkID { return c.netID }

// IsConnected reports whether the client can still be talked to.
func (c *Client) IsConnected() bool {
	return c.peer.IsConnected()
}

// QueueMessage queues a message for the next batch.
func (c *Client) QueueMessage(msg protocol.Message) {
	c.queueMu.Lock()
	c.queued = append(c.queued, msg)
	c.queueMu.Unlock()
}

// SendWaitingMessages assembles every queued message into one batch, stamps
// the header with the client's current tick adjustment, and sends it. The
// header goes out even when the batch is empty so adjustments and the
// client's receive timer keep flowing.
func (c *Client) SendWaitingMessages() peer.Result {
	c.queueMu.Lock()
	pending := c.queued
	c.queued = nil
	c.queueMu.Unlock()

	for _, msg := range pending {
		if err := c.encoder.Add(msg); err != nil {
			c.log.Error().Err(err).Stringer("type", msg.Type()).Msg("message dropped from batch")
		}
	}

	adjustment := c.tickSync.CurrentAdjustment()
	frame, err := c.encoder.Finish(adjustment.Amount, adjustment.Iteration)
	if err != nil {
		c.log.Error().Err(err).Msg("batch framing failed, disconnecting client")
		c.peer.Disconnect()
		return peer.Disconnected
	}
	return c.peer.Send(frame)
}

// ClientMessage is one message received from a client.
type ClientMessage struct {
	Type protocol.MsgType
	Body []byte
}

// ReceiveMessage tries to receive one message from this client. The 1-byte
// client header is consumed first and its iteration echo recorded. If no
// data is waiting, the receive timer is checked and an expired client is
// disconnected.
//
// The returned body aliases the peer's receive buffer; it must be decoded
// before the next receive.
func (c *Client) ReceiveMessage() (ClientMessage, peer.Result) {
	header, result := c.peer.ReceiveBytes(wire.ClientHeaderSize, false)
	switch result {
	case peer.NoWaitingData:
		if c.peer.TimedOut() {
			c.log.Info().Msg("dropping client, receive timer expired")
			c.peer.Disconnect()
			return ClientMessage{}, peer.Disconnected
		}
		return ClientMessage{}, peer.NoWaitingData
	case peer.Disconnected:
		return ClientMessage{}, peer.Disconnected
	}

	c.tickSync.ConfirmIteration(header[0])

	recordHeader, result := c.peer.ReceiveBytes(wire.MessageHeaderSize, true)
	if result != peer.Success {
		return ClientMessage{}, peer.Disconnected
	}
	msgType := protocol.MsgType(recordHeader[0])
	size := int(recordHeader[1])<<8 | int(recordHeader[2])
	if msgType == protocol.MsgNotSet || msgType > protocol.MsgMessageDropInfo {
		c.log.Error().Uint8("type", recordHeader[0]).Msg("bad message type, disconnecting client")
		c.peer.Disconnect()
		return ClientMessage{}, peer.Disconnected
	}

	body, result := c.peer.ReceiveBytes(size, true)
	if result != peer.Success {
		return ClientMessage{}, peer.Disconnected
	}
	return ClientMessage{Type: msgType, Body: body}, peer.Success
}

// RecordTickDiff records a measured tick diff; a diff outside the valid
// range drops the connection.
func (c *Client) RecordTickDiff(diff int64) {
	if err := c.tickSync.RecordDiff(diff); err != nil {
		if errors.Is(err, clock.ErrDiffOutOfBounds) {
			c.log.Info().Int64("diff", diff).Msg("dropping client, tick diff out of bounds")
			c.peer.Disconnect()
			return
		}
		c.log.Error().Err(err).Msg("record tick diff")
	}
}

// MarkInputDropped flags that this client needs a prediction correction.
func (c *Client) MarkInputDropped() {
	c.droppedInput.Store(true)
}

// ConsumeInputDropped reports and clears the dropped-input flag.
func (c *Client) ConsumeInputDropped() bool {
	return c.droppedInput.Swap(false)
}

// Disconnect force-closes the client's connection.
func (c *Client) Disconnect() {
	c.peer.Disconnect()
}
