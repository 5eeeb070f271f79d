package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andersfylling/slipstream/internal/protocol"
)

func TestHistoryIndexedByAge(t *testing.T) {
	h := NewInputHistory(5)

	h.Push(pressed(protocol.XUp))   // age 2
	h.Push(pressed(protocol.YUp))   // age 1
	h.Push(pressed(protocol.XDown)) // age 0

	v, ok := h.At(0)
	assert.True(t, ok)
	assert.Equal(t, pressed(protocol.XDown), v)

	v, ok = h.At(1)
	assert.True(t, ok)
	assert.Equal(t, pressed(protocol.YUp), v)

	v, ok = h.At(2)
	assert.True(t, ok)
	assert.Equal(t, pressed(protocol.XUp), v)
}

func TestHistoryReportsMissingEntries(t *testing.T) {
	h := NewInputHistory(5)
	h.Push(protocol.InputVector{})

	_, ok := h.At(1)
	assert.False(t, ok, "only one entry was pushed")

	_, ok = h.At(5)
	assert.False(t, ok, "age beyond capacity")
}

func TestHistoryWrapsKeepingNewest(t *testing.T) {
	h := NewInputHistory(3)
	vectors := []protocol.InputVector{
		pressed(protocol.XUp),
		pressed(protocol.XDown),
		pressed(protocol.YUp),
		pressed(protocol.YDown),
	}
	for _, v := range vectors {
		h.Push(v)
	}

	v, ok := h.At(0)
	assert.True(t, ok)
	assert.Equal(t, pressed(protocol.YDown), v)

	v, ok = h.At(2)
	assert.True(t, ok)
	assert.Equal(t, pressed(protocol.XDown), v)

	_, ok = h.At(3)
	assert.False(t, ok, "oldest entry was overwritten")
}

func TestHistoryReset(t *testing.T) {
	h := NewInputHistory(3)
	h.Push(pressed(protocol.XUp))
	h.Reset()

	_, ok := h.At(0)
	assert.False(t, ok)
}
