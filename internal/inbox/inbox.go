// Package inbox implements the server's tick-sorted inbox: a bounded ring
// of per-tick queues that sorts incoming client messages by the tick they
// apply to.
//
// The intended usage is for the client-handler task to act as the producer
// and for the simulation task to consume one tick's queue at a time: call
// StartReceive, drain the returned queue, then call EndReceive. Producers
// block on Push while a receive is in progress.
package inbox

import (
	"sync"

	"github.com/pkg/errors"
)

// DefaultWindow is how many ticks into the future messages are buffered
// for. With a window of 10 the valid range is [currentTick, currentTick+10).
const DefaultWindow = 10

// Validity classifies a pushed message's tick relative to the window.
type Validity int

const (
	// Valid means the tick was inside the window and the message was queued.
	Valid Validity = iota
	// TooLow means the tick was below currentTick; the message was dropped.
	TooLow
	// TooHigh means the tick was beyond the window; the message was dropped.
	TooHigh
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "Valid"
	case TooLow:
		return "TooLow"
	default:
		return "TooHigh"
	}
}

// PushResult carries the validity of a push and the signed distance between
// the message's tick and the inbox's current tick. The diff feeds the
// tick-adjustment controller even when the message was dropped.
type PushResult struct {
	Validity Validity
	Diff     int64
}

var (
	// ErrWrongTick is returned by StartReceive when the requested tick is
	// not the inbox's current tick.
	ErrWrongTick = errors.New("inbox: receive tick is not the current tick")
	// ErrReceiveInProgress marks a StartReceive issued while a receive is
	// still open. An open receive holds the inbox lock, so such a call
	// blocks until EndReceive runs rather than returning this error.
	ErrReceiveInProgress = errors.New("inbox: startReceive called twice without endReceive")
	// ErrNoReceiveInProgress is returned by EndReceive without a matching
	// StartReceive.
	ErrNoReceiveInProgress = errors.New("inbox: endReceive called without startReceive")
)

// Inbox is the tick-sorted ring. The zero value is not usable; construct
// with New.
type Inbox[T any] struct {
	mu          sync.Mutex
	queues      [][]T
	currentTick uint32
	receiving   bool
}

// New creates an inbox buffering up to window ticks ahead of currentTick.
func New[T any](window int) *Inbox[T] {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Inbox[T]{queues: make([][]T, window)}
}

// Push buffers msg under its tick if the tick lies inside the valid window.
// Blocks while a receive is in progress.
func (in *Inbox[T]) Push(tick uint32, msg T) PushResult {
	in.mu.Lock()
	defer in.mu.Unlock()

	validity := in.classify(tick)
	if validity == Valid {
		slot := int(tick) % len(in.queues)
		in.queues[slot] = append(in.queues[slot], msg)
	}
	return PushResult{Validity: validity, Diff: int64(tick) - int64(in.currentTick)}
}

// StartReceive locks the inbox and returns the queue for the given tick,
// which must be the inbox's current tick. The caller must drain the queue
// and then call EndReceive, which advances the window and releases the lock.
func (in *Inbox[T]) StartReceive(tick uint32) ([]T, error) {
	in.mu.Lock()
	if in.receiving {
		in.mu.Unlock()
		return nil, ErrReceiveInProgress
	}
	if tick != in.currentTick {
		in.mu.Unlock()
		return nil, errors.Wrapf(ErrWrongTick, "requested %d, current %d", tick, in.currentTick)
	}
	in.receiving = true
	return in.queues[int(tick)%len(in.queues)], nil
}

// EndReceive frees the just-drained slot, advances currentTick by one, and
// releases the lock taken by StartReceive.
func (in *Inbox[T]) EndReceive() error {
	if !in.receiving {
		return ErrNoReceiveInProgress
	}
	slot := int(in.currentTick) % len(in.queues)
	in.queues[slot] = in.queues[slot][:0]
	in.currentTick++
	in.receiving = false
	in.mu.Unlock()
	return nil
}

// CurrentTick returns the inbox's internal current tick. Intended for tests;
// the simulation owns the authoritative tick counter.
func (in *Inbox[T]) CurrentTick() uint32 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.currentTick
}

// classify assumes in.mu is held.
func (in *Inbox[T]) classify(tick uint32) Validity {
	if tick < in.currentTick {
		return TooLow
	}
	if tick > in.currentTick+uint32(len(in.queues))-1 {
		return TooHigh
	}
	return Valid
}
