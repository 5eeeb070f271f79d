package clock

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Tuning holds the adjustment-protocol constants. The defaults are the
// empirically tuned values from long-running sessions; every field is
// exposed through configuration so deployments can retune them.
type Tuning struct {
	// HistoryLength is how many recent tick diffs are remembered per client.
	HistoryLength int
	// LowestValidDiff and HighestValidDiff bound the diffs we'll work with.
	// A recorded diff outside them drops the connection.
	LowestValidDiff int8
	HighestValidDiff int8
	// AcceptableBandLower and AcceptableBandUpper delimit the diff band
	// (inclusive) inside which no adjustment is sent.
	AcceptableBandLower int8
	AcceptableBandUpper int8
	// Target is the diff clients are steered toward when they leave the band.
	Target int8
	// SpikeScale and SpikeOffset derive the lag-spike bound from the average
	// diff magnitude: a reading missing the target by at least
	// average*SpikeScale + SpikeOffset is treated as a spike and ignored.
	SpikeScale  float64
	SpikeOffset float64
	// MaxStep caps the magnitude of a single adjustment, walking the client
	// in over several iterations instead of yanking it.
	MaxStep int8
}

// DefaultTuning returns the stock constants.
func DefaultTuning() Tuning {
	return Tuning{
		HistoryLength:       10,
		LowestValidDiff:     -10,
		HighestValidDiff:    10,
		AcceptableBandLower: 1,
		AcceptableBandUpper: 3,
		Target:              2,
		SpikeScale:          2.0,
		SpikeOffset:         3.0,
		MaxStep:             2,
	}
}

// ErrDiffOutOfBounds reports a tick diff outside the valid range; the
// offending connection is dropped.
var ErrDiffOutOfBounds = errors.New("tick diff out of bounds")

// Adjustment is the (magnitude, iteration) pair stamped into a batch header.
type Adjustment struct {
	Amount    int8
	Iteration uint8
}

// Sync is the server-side half of the adjustment protocol, one per client.
// RecordDiff and ConfirmIteration are called from the client-handler task;
// CurrentAdjustment is called from the simulation task at every network
// tick boundary.
type Sync struct {
	tuning Tuning
	log    zerolog.Logger

	mu          sync.Mutex
	history     *diffHistory
	hasRecorded bool

	// latestIteration is the newest iteration the client has echoed back.
	// The iteration only advances on the client's echo, which is what makes
	// adjustments exactly-once without an ACK message.
	latestIteration atomic.Uint32
}

// NewSync creates the per-client sync state.
func NewSync(tuning Tuning, log zerolog.Logger) *Sync {
	return &Sync{
		tuning:  tuning,
		log:     log,
		history: newDiffHistory(tuning.HistoryLength),
	}
}

// RecordDiff records how far a received message's tick was from the
// server's current tick. The first recorded diff seeds the whole history so
// the average is meaningful immediately.
func (s *Sync) RecordDiff(diff int64) error {
	if diff < int64(s.tuning.LowestValidDiff) || diff > int64(s.tuning.HighestValidDiff) {
		return errors.Wrapf(ErrDiffOutOfBounds, "diff %d", diff)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.push(int8(diff))
	if !s.hasRecorded {
		for i := 0; i < s.history.length()-1; i++ {
			s.history.push(int8(diff))
		}
		s.hasRecorded = true
	}
	return nil
}

// ConfirmIteration processes the iteration echoed in a client header.
func (s *Sync) ConfirmIteration(received uint8) {
	expected := uint8(s.latestIteration.Load()) + 1
	if received == expected {
		s.latestIteration.Store(uint32(expected))
	} else if received != uint8(s.latestIteration.Load()) {
		s.log.Error().
			Uint8("received", received).
			Uint8("expected", expected).
			Msg("client skipped an adjustment iteration")
	}
}

// CurrentAdjustment computes the adjustment to stamp into the next outgoing
// batch header. Returns a zero amount when the client is in-band, when no
// diff has been recorded yet, or when the latest reading looks like a lag
// spike.
func (s *Sync) CurrentAdjustment() Adjustment {
	iteration := uint8(s.latestIteration.Load())

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasRecorded {
		return Adjustment{Amount: 0, Iteration: iteration}
	}

	latest := s.history.at(0)
	if latest >= s.tuning.AcceptableBandLower && latest <= s.tuning.AcceptableBandUpper {
		return Adjustment{Amount: 0, Iteration: iteration}
	}

	missedBy := int(s.tuning.Target) - int(latest)
	lagBound := s.history.averageAbs()*s.tuning.SpikeScale + s.tuning.SpikeOffset
	if float64(missedBy) >= lagBound {
		// A reading far behind the envelope is most likely a one-off lag
		// spike; adjusting for it would overshoot once the spike passes.
		return Adjustment{Amount: 0, Iteration: iteration}
	}

	amount := missedBy
	if amount > int(s.tuning.MaxStep) {
		amount = int(s.tuning.MaxStep)
	} else if amount < -int(s.tuning.MaxStep) {
		amount = -int(s.tuning.MaxStep)
	}
	return Adjustment{Amount: int8(amount), Iteration: iteration}
}
