package inbox

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushInsideWindow(t *testing.T) {
	in := New[int](10)

	for tick := uint32(0); tick < 10; tick++ {
		result := in.Push(tick, int(tick))
		assert.Equal(t, Valid, result.Validity)
		assert.Equal(t, int64(tick), result.Diff)
	}
}

func TestPushTooLow(t *testing.T) {
	in := New[int](10)

	// Advance the window to [5, 15).
	for tick := uint32(0); tick < 5; tick++ {
		queue, err := in.StartReceive(tick)
		require.NoError(t, err)
		require.Empty(t, queue)
		require.NoError(t, in.EndReceive())
	}

	result := in.Push(0, 99)
	assert.Equal(t, TooLow, result.Validity)
	assert.Equal(t, int64(-5), result.Diff)
}

func TestPushTooHigh(t *testing.T) {
	in := New[int](10)

	result := in.Push(10, 99)
	assert.Equal(t, TooHigh, result.Validity)
	assert.Equal(t, int64(10), result.Diff)
}

func TestMessagesDeliveredInTickOrder(t *testing.T) {
	in := New[string](10)

	in.Push(2, "c")
	in.Push(0, "a")
	in.Push(1, "b")
	in.Push(0, "a2")

	var delivered []string
	for tick := uint32(0); tick < 3; tick++ {
		queue, err := in.StartReceive(tick)
		require.NoError(t, err)
		delivered = append(delivered, queue...)
		require.NoError(t, in.EndReceive())
	}
	assert.Equal(t, []string{"a", "a2", "b", "c"}, delivered)
}

func TestSlotReusedAfterWindowWrap(t *testing.T) {
	in := New[int](10)

	in.Push(0, 1)
	queue, err := in.StartReceive(0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, queue)
	require.NoError(t, in.EndReceive())

	// Tick 10 maps to the slot tick 0 occupied; it must come back empty.
	result := in.Push(10, 2)
	assert.Equal(t, Valid, result.Validity)
	for tick := uint32(1); tick < 10; tick++ {
		queue, err := in.StartReceive(tick)
		require.NoError(t, err)
		assert.Empty(t, queue)
		require.NoError(t, in.EndReceive())
	}
	queue, err = in.StartReceive(10)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, queue)
	require.NoError(t, in.EndReceive())
}

func TestStartReceiveWrongTick(t *testing.T) {
	in := New[int](10)
	_, err := in.StartReceive(3)
	assert.ErrorIs(t, err, ErrWrongTick)

	// The failed start must not leave the inbox locked.
	result := in.Push(0, 1)
	assert.Equal(t, Valid, result.Validity)
}

func TestPushBlocksDuringReceive(t *testing.T) {
	in := New[int](10)

	_, err := in.StartReceive(0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	pushed := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		in.Push(5, 1)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("push completed while a receive was in progress")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, in.EndReceive())
	wg.Wait()

	select {
	case <-pushed:
	default:
		t.Fatal("push did not complete after endReceive")
	}
}

func TestCurrentTickOnlyIncreases(t *testing.T) {
	in := New[int](10)
	for tick := uint32(0); tick < 25; tick++ {
		assert.Equal(t, tick, in.CurrentTick())
		_, err := in.StartReceive(tick)
		require.NoError(t, err)
		require.NoError(t, in.EndReceive())
	}
}
