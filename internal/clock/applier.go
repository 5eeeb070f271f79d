package clock

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Applier is the client-side half of the adjustment protocol. The I/O task
// observes batch headers; the simulation loop transfers the pending shift
// one frame at a time. The iteration counter is the idempotency key: a
// header is only applied when its iteration matches ours and we aren't
// already mid-shift, so re-reads of the same header are no-ops.
type Applier struct {
	log zerolog.Logger

	pending   atomic.Int32
	iteration atomic.Uint32
	applying  atomic.Bool
}

// NewApplier creates an applier starting at iteration 0.
func NewApplier(log zerolog.Logger) *Applier {
	return &Applier{log: log}
}

// Iteration returns the iteration the client echoes in every outgoing
// header.
func (a *Applier) Iteration() uint8 {
	return uint8(a.iteration.Load())
}

// Observe processes the (adjustment, iteration) pair from a received batch
// header. A future iteration arriving while a shift is still being applied,
// or arriving out of sequence, indicates a protocol logic bug and is fatal.
func (a *Applier) Observe(adjustment int8, iteration uint8) {
	if adjustment == 0 {
		return
	}
	current := uint8(a.iteration.Load())
	if iteration == current && !a.applying.Load() {
		a.pending.Add(int32(adjustment))
		a.applying.Store(true)
		a.log.Info().
			Int8("adjustment", adjustment).
			Uint8("iteration", iteration).
			Msg("received tick adjustment")
	} else if iteration > current {
		if a.applying.Load() {
			a.log.Fatal().
				Uint8("current", current).
				Uint8("received", iteration).
				Msg("received future adjustment iteration while applying the last")
		} else {
			a.log.Fatal().
				Uint8("current", current).
				Uint8("received", iteration).
				Msg("out of sequence adjustment iteration")
		}
	}
}

// Transfer hands the pending shift to the simulation loop. A negative
// pending shift is drained one tick at a time (the sim can only freeze for
// one tick per frame, so -1 is returned and the remainder is kept). A
// positive shift is returned whole (the sim catches up with extra
// iterations in a single frame). When the pending shift reaches zero the
// iteration advances and the applier is ready for the next adjustment.
func (a *Applier) Transfer() int {
	if !a.applying.Load() {
		return 0
	}
	current := a.pending.Load()
	switch {
	case current < 0:
		a.pending.Add(1)
		return -1
	case current > 0:
		a.pending.Add(-current)
		return int(current)
	default:
		a.iteration.Add(1)
		a.applying.Store(false)
		return 0
	}
}

// Reset clears all adjustment state; used when the connection is torn down.
func (a *Applier) Reset() {
	a.pending.Store(0)
	a.iteration.Store(0)
	a.applying.Store(false)
}
