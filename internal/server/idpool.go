package server

import "github.com/pkg/errors"

// safetyBuffer is extra room so IDs aren't immediately reused when almost
// all of them are reserved.
const safetyBuffer = 100

// idPool hands out network IDs and recycles them after disconnects.
// Not safe for concurrent use; the client handler owns it.
type idPool struct {
	poolSize      int
	containerSize int
	lastAdded     int
	reservedCount int
	reserved      []bool
}

func newIDPool(poolSize int) *idPool {
	return &idPool{
		poolSize:      poolSize,
		containerSize: poolSize + safetyBuffer,
		reserved:      make([]bool, poolSize+safetyBuffer),
	}
}

// reserveID returns an unused ID.
func (p *idPool) reserveID() (uint32, error) {
	if p.reservedCount >= p.poolSize {
		return 0, errors.Errorf("id pool exhausted: %d reserved", p.reservedCount)
	}
	for i := 0; i < p.containerSize; i++ {
		p.lastAdded = (p.lastAdded + 1) % p.containerSize
		if !p.reserved[p.lastAdded] {
			p.reserved[p.lastAdded] = true
			p.reservedCount++
			return uint32(p.lastAdded), nil
		}
	}
	return 0, errors.New("id pool exhausted")
}

// freeID releases a reserved ID.
func (p *idPool) freeID(id uint32) {
	if int(id) < p.containerSize && p.reserved[id] {
		p.reserved[id] = false
		p.reservedCount--
	}
}
