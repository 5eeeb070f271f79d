// Package protocol defines the messages exchanged between client and server
// and the schema-driven codec for each message type.
package protocol

// EntityID uniquely identifies an entity for the duration of a session.
type EntityID uint32

// NetworkID identifies a connected client. IDs are reused after disconnect.
type NetworkID uint32

// InputState is the state of a single input axis or button.
type InputState uint8

const (
	Released InputState = iota
	Pressed
)

// InputType indexes into an InputVector.
type InputType uint8

const (
	XUp InputType = iota
	XDown
	YUp
	YDown
	ZUp
	ZDown
	InputTypeCount // Sentinel for array sizing
)

// InputVector holds the state of every input for a single tick.
// Conceptually immutable once recorded for a tick.
type InputVector [InputTypeCount]InputState

// IsPressed returns whether the given input is pressed.
func (v InputVector) IsPressed(t InputType) bool {
	return t < InputTypeCount && v[t] == Pressed
}

// Vec3 is a position or velocity on the wire.
type Vec3 struct {
	X, Y, Z float32
}

// EntityState is the snapshot of a single entity carried by an EntityUpdate.
type EntityState struct {
	Entity   EntityID
	Input    InputVector
	Position Vec3
	Velocity Vec3
}

// MsgType tags a message record on the wire.
type MsgType uint8

const (
	MsgNotSet MsgType = iota
	MsgConnectionRequest
	MsgConnectionResponse
	MsgClientInputs
	MsgHeartbeat
	MsgEntityUpdate
	MsgExplicitConfirmation
	MsgMessageDropInfo
)

func (t MsgType) String() string {
	switch t {
	case MsgConnectionRequest:
		return "ConnectionRequest"
	case MsgConnectionResponse:
		return "ConnectionResponse"
	case MsgClientInputs:
		return "ClientInputs"
	case MsgHeartbeat:
		return "Heartbeat"
	case MsgEntityUpdate:
		return "EntityUpdate"
	case MsgExplicitConfirmation:
		return "ExplicitConfirmation"
	case MsgMessageDropInfo:
		return "MessageDropInfo"
	default:
		return "NotSet"
	}
}

// ConnectionRequest is sent by a client when it first connects.
type ConnectionRequest struct {
	Version uint8
	Name    string
}

// ConnectionResponse assigns the client its entity and syncs it to the
// server's clock and map.
type ConnectionResponse struct {
	Entity    EntityID
	Tick      uint32
	Spawn     Vec3
	MapWidth  uint16
	MapHeight uint16
}

// ClientInputs carries the client's input state for a single tick.
type ClientInputs struct {
	Tick  uint32
	Input InputVector
}

// Heartbeat keeps the tick-diff measurement alive when a side has nothing
// else to say.
type Heartbeat struct {
	Tick uint32
}

// EntityUpdate carries the authoritative state of every relevant entity for
// one server tick.
type EntityUpdate struct {
	Tick     uint32
	Entities []EntityState
}

// ExplicitConfirmation tells the client that nothing in its area of interest
// changed this tick, so its replication buffer can advance without data.
type ExplicitConfirmation struct {
	Tick uint32
}

// MessageDropInfo tells a client that one of its input messages arrived
// outside the server's accepted tick window and was dropped.
type MessageDropInfo struct {
	Tick uint32
}
