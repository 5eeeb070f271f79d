// Package client implements the connecting side: the network I/O task, the
// connection state machine, owned-entity prediction, NPC replication, and
// the client simulation loop.
package client

import "github.com/andersfylling/slipstream/internal/protocol"

// ConnectionErrorType classifies a terminal connection transition.
type ConnectionErrorType int

const (
	// ConnectionFailed means a connection attempt never completed.
	ConnectionFailed ConnectionErrorType = iota
	// ConnectionDisconnected means an established connection was lost.
	ConnectionDisconnected
)

func (t ConnectionErrorType) String() string {
	if t == ConnectionFailed {
		return "Failed"
	}
	return "Disconnected"
}

// ConnectionError is emitted on every terminal connection transition.
type ConnectionError struct {
	Type ConnectionErrorType
}

// NpcUpdateType is the kind of information in an NpcUpdate.
type NpcUpdateType int

const (
	// NpcDataUpdate carries actual entity data.
	NpcDataUpdate NpcUpdateType = iota
	// NpcImplicitConfirmation confirms all ticks up to the given tick.
	NpcImplicitConfirmation
	// NpcExplicitConfirmation confirms one tick with no data.
	NpcExplicitConfirmation
)

// NpcUpdate is a received non-owned-entity update, or a confirmation that
// no changes occurred.
type NpcUpdate struct {
	Type   NpcUpdateType
	Tick   uint32
	Update protocol.EntityUpdate
}

// eventQueueSize bounds each dispatcher queue. Deep enough that the
// simulation task draining once per tick never drops anything.
const eventQueueSize = 1024

// Dispatcher fans received messages out to the simulation task as typed
// events. It's the only cross-task signaling path on the client.
type Dispatcher struct {
	ConnectionResponses chan protocol.ConnectionResponse
	PlayerUpdates       chan protocol.EntityUpdate
	NpcUpdates          chan NpcUpdate
	Drops               chan protocol.MessageDropInfo
	Errors              chan ConnectionError
}

// NewDispatcher creates a dispatcher with bounded queues.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		ConnectionResponses: make(chan protocol.ConnectionResponse, 4),
		PlayerUpdates:       make(chan protocol.EntityUpdate, eventQueueSize),
		NpcUpdates:          make(chan NpcUpdate, eventQueueSize),
		Drops:               make(chan protocol.MessageDropInfo, eventQueueSize),
		Errors:              make(chan ConnectionError, 4),
	}
}
