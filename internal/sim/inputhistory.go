package sim

import "github.com/andersfylling/slipstream/internal/protocol"

// InputHistory is the bounded per-entity ring of recent input vectors,
// indexed by age: At(0) is the input recorded for the current tick, At(1)
// the tick before, and so on. Prediction replay walks it backwards from the
// server's authoritative tick, so its length must comfortably exceed the
// client-ahead lead.
type InputHistory struct {
	inputs []protocol.InputVector
	head   int
	filled int
}

// NewInputHistory creates a history remembering the given number of ticks.
func NewInputHistory(length int) *InputHistory {
	return &InputHistory{inputs: make([]protocol.InputVector, length)}
}

// Push records the input vector for the current tick.
func (h *InputHistory) Push(v protocol.InputVector) {
	h.head--
	if h.head < 0 {
		h.head = len(h.inputs) - 1
	}
	h.inputs[h.head] = v
	if h.filled < len(h.inputs) {
		h.filled++
	}
}

// At returns the input recorded age ticks ago. The second return is false
// when the history doesn't reach that far back; callers treat that as a
// fatal mis-sizing.
func (h *InputHistory) At(age int) (protocol.InputVector, bool) {
	if age < 0 || age >= h.filled {
		return protocol.InputVector{}, false
	}
	return h.inputs[(h.head+age)%len(h.inputs)], true
}

// Length returns the history capacity in ticks.
func (h *InputHistory) Length() int { return len(h.inputs) }

// Reset clears the history.
func (h *InputHistory) Reset() {
	h.head = 0
	h.filled = 0
}
