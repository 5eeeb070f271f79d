// Package peer wraps a reliable-ordered stream socket with the send and
// receive semantics the engine needs: queued sends, exact-n reads in
// blocking and non-blocking modes, and a receive timer that declares the
// peer disconnected when the other side goes quiet.
package peer

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/stats"
)

// Result is the outcome of a send or receive.
type Result int

const (
	// Success means the operation completed.
	Success Result = iota
	// Disconnected means the peer was found to be disconnected.
	Disconnected
	// NoWaitingData means a non-blocking receive found no data.
	NoWaitingData
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case Disconnected:
		return "Disconnected"
	default:
		return "NoWaitingData"
	}
}

// pollInterval is the deadline used for non-blocking reads. Short enough
// that the caller's loop stays responsive, long enough to avoid spinning in
// the kernel.
const pollInterval = time.Millisecond

// Peer owns a stream socket. Only one goroutine may read from a Peer; sends
// may come from a different goroutine through the queued-send path.
type Peer struct {
	conn net.Conn
	log  zerolog.Logger

	sendMu    sync.Mutex
	sendQueue [][]byte

	connMu    sync.Mutex
	connected bool

	// stage accumulates partial non-blocking reads so a header split
	// across TCP segments is never half-consumed.
	stage    []byte
	staged   int
	lastRecv time.Time

	receiveTimeout time.Duration
}

// Dial connects to the given address and wraps the connection.
func Dial(addr string, receiveTimeout time.Duration, log zerolog.Logger) (*Peer, error) {
	conn, err := net.DialTimeout("tcp", addr, receiveTimeout)
	if err != nil {
		return nil, err
	}
	return New(conn, receiveTimeout, log), nil
}

// New wraps an accepted or dialed connection.
func New(conn net.Conn, receiveTimeout time.Duration, log zerolog.Logger) *Peer {
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Batches are already coalesced per network tick; don't let the
		// kernel delay them further.
		_ = tcp.SetNoDelay(true)
	}
	return &Peer{
		conn:           conn,
		log:            log,
		connected:      true,
		lastRecv:       time.Now(),
		receiveTimeout: receiveTimeout,
	}
}

// IsConnected reports whether the peer has neither errored nor timed out.
func (p *Peer) IsConnected() bool {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	return p.connected
}

// TimedOut reports whether the receive timer has expired.
func (p *Peer) TimedOut() bool {
	return time.Since(p.lastRecv) > p.receiveTimeout
}

// RemoteAddr returns the remote address of the underlying connection.
func (p *Peer) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}

// Send writes one frame directly. On failure the peer transitions to
// disconnected and subsequent sends report Disconnected without touching
// the socket.
func (p *Peer) Send(frame []byte) Result {
	if !p.IsConnected() {
		return Disconnected
	}
	if _, err := p.conn.Write(frame); err != nil {
		p.markDisconnected("send failed", err)
		return Disconnected
	}
	stats.RecordBytesSent(len(frame))
	return Success
}

// QueueSend appends a frame to the send queue for the next Flush.
func (p *Peer) QueueSend(frame []byte) {
	p.sendMu.Lock()
	p.sendQueue = append(p.sendQueue, frame)
	p.sendMu.Unlock()
}

// Flush writes every queued frame, stopping at the first failure.
func (p *Peer) Flush() Result {
	p.sendMu.Lock()
	pending := p.sendQueue
	p.sendQueue = nil
	p.sendMu.Unlock()

	for i, frame := range pending {
		if result := p.Send(frame); result != Success {
			// Re-queue what we didn't get to; the peer is likely dead
			// anyway, but the caller decides that.
			p.sendMu.Lock()
			p.sendQueue = append(pending[i:], p.sendQueue...)
			p.sendMu.Unlock()
			return result
		}
	}
	return Success
}

// ReceiveBytes reads exactly n bytes. With wait=false it returns
// NoWaitingData if the bytes aren't already available, staging any partial
// read for the next call. With wait=true it blocks up to the receive
// timeout; expiry marks the peer disconnected.
//
// The returned slice aliases an internal buffer and is valid until the next
// ReceiveBytes call.
func (p *Peer) ReceiveBytes(n int, wait bool) ([]byte, Result) {
	if !p.IsConnected() {
		return nil, Disconnected
	}
	if cap(p.stage) < n {
		grown := make([]byte, n)
		copy(grown, p.stage[:p.staged])
		p.stage = grown
	}
	p.stage = p.stage[:n]

	deadline := time.Now().Add(pollInterval)
	if wait {
		deadline = time.Now().Add(p.receiveTimeout)
	}
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		p.markDisconnected("set deadline failed", err)
		return nil, Disconnected
	}

	read, err := io.ReadFull(p.conn, p.stage[p.staged:n])
	p.staged += read
	if p.staged == n {
		p.staged = 0
		p.lastRecv = time.Now()
		stats.RecordBytesReceived(n)
		return p.stage[:n], Success
	}
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		if wait {
			p.markDisconnected("receive timed out", err)
			return nil, Disconnected
		}
		return nil, NoWaitingData
	}
	p.markDisconnected("receive failed", err)
	return nil, Disconnected
}

// Disconnect force-closes the connection.
func (p *Peer) Disconnect() {
	p.markDisconnected("disconnected locally", nil)
}

func (p *Peer) markDisconnected(reason string, err error) {
	p.connMu.Lock()
	wasConnected := p.connected
	p.connected = false
	p.connMu.Unlock()
	if wasConnected {
		event := p.log.Debug().Str("reason", reason)
		if err != nil {
			event = event.Err(err)
		}
		event.Msg("peer disconnected")
		_ = p.conn.Close()
	}
}
