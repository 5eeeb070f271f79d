package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDPoolHandsOutUniqueIDs(t *testing.T) {
	pool := newIDPool(10)

	seen := make(map[uint32]bool)
	for i := 0; i < 10; i++ {
		id, err := pool.reserveID()
		require.NoError(t, err)
		assert.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
	}

	_, err := pool.reserveID()
	assert.Error(t, err, "pool of 10 should refuse an 11th reservation")
}

func TestIDPoolReusesFreedIDs(t *testing.T) {
	pool := newIDPool(2)

	first, err := pool.reserveID()
	require.NoError(t, err)
	second, err := pool.reserveID()
	require.NoError(t, err)

	pool.freeID(first)
	third, err := pool.reserveID()
	require.NoError(t, err)

	assert.NotEqual(t, second, third)
}

func TestIDPoolDelaysReuse(t *testing.T) {
	pool := newIDPool(5)

	id, err := pool.reserveID()
	require.NoError(t, err)
	pool.freeID(id)

	// The safety buffer means the freed ID shouldn't come straight back.
	next, err := pool.reserveID()
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
}
