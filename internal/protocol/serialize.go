package protocol

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrBodyParse is returned when a message body doesn't match its schema.
var ErrBodyParse = errors.New("message body parse failed")

// MaxNameLength bounds the name field of a ConnectionRequest.
const MaxNameLength = 64

// entityStateSize is the wire size of one EntityState record:
// 4 (entity) + InputTypeCount (input) + 12 (position) + 12 (velocity).
const entityStateSize = 4 + int(InputTypeCount) + 12 + 12

// Message is implemented by every wire message. Encode appends the
// serialized body to dst and returns the result.
type Message interface {
	Type() MsgType
	Encode(dst []byte) []byte
}

func appendVec3(dst []byte, v Vec3) []byte {
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v.X))
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v.Y))
	return binary.BigEndian.AppendUint32(dst, math.Float32bits(v.Z))
}

func readVec3(b []byte) Vec3 {
	return Vec3{
		X: math.Float32frombits(binary.BigEndian.Uint32(b[0:4])),
		Y: math.Float32frombits(binary.BigEndian.Uint32(b[4:8])),
		Z: math.Float32frombits(binary.BigEndian.Uint32(b[8:12])),
	}
}

func appendInputVector(dst []byte, v InputVector) []byte {
	for i := 0; i < int(InputTypeCount); i++ {
		dst = append(dst, byte(v[i]))
	}
	return dst
}

func readInputVector(b []byte) (InputVector, error) {
	var v InputVector
	for i := 0; i < int(InputTypeCount); i++ {
		s := InputState(b[i])
		if s != Pressed && s != Released {
			return v, errors.Wrapf(ErrBodyParse, "invalid input state %d", s)
		}
		v[i] = s
	}
	return v, nil
}

// --- ConnectionRequest ---

func (m *ConnectionRequest) Type() MsgType { return MsgConnectionRequest }

func (m *ConnectionRequest) Encode(dst []byte) []byte {
	name := m.Name
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	dst = append(dst, m.Version, byte(len(name)))
	return append(dst, name...)
}

// DecodeConnectionRequest parses a ConnectionRequest body.
func DecodeConnectionRequest(b []byte) (ConnectionRequest, error) {
	if len(b) < 2 {
		return ConnectionRequest{}, errors.Wrap(ErrBodyParse, "connection request too short")
	}
	n := int(b[1])
	if n > MaxNameLength || len(b) != 2+n {
		return ConnectionRequest{}, errors.Wrapf(ErrBodyParse, "connection request name length %d, body %d", n, len(b))
	}
	return ConnectionRequest{Version: b[0], Name: string(b[2 : 2+n])}, nil
}

// --- ConnectionResponse ---

func (m *ConnectionResponse) Type() MsgType { return MsgConnectionResponse }

func (m *ConnectionResponse) Encode(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(m.Entity))
	dst = binary.BigEndian.AppendUint32(dst, m.Tick)
	dst = appendVec3(dst, m.Spawn)
	dst = binary.BigEndian.AppendUint16(dst, m.MapWidth)
	return binary.BigEndian.AppendUint16(dst, m.MapHeight)
}

// DecodeConnectionResponse parses a ConnectionResponse body.
func DecodeConnectionResponse(b []byte) (ConnectionResponse, error) {
	if len(b) != 4+4+12+2+2 {
		return ConnectionResponse{}, errors.Wrapf(ErrBodyParse, "connection response size %d", len(b))
	}
	return ConnectionResponse{
		Entity:    EntityID(binary.BigEndian.Uint32(b[0:4])),
		Tick:      binary.BigEndian.Uint32(b[4:8]),
		Spawn:     readVec3(b[8:20]),
		MapWidth:  binary.BigEndian.Uint16(b[20:22]),
		MapHeight: binary.BigEndian.Uint16(b[22:24]),
	}, nil
}

// --- ClientInputs ---

func (m *ClientInputs) Type() MsgType { return MsgClientInputs }

func (m *ClientInputs) Encode(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, m.Tick)
	return appendInputVector(dst, m.Input)
}

// DecodeClientInputs parses a ClientInputs body.
func DecodeClientInputs(b []byte) (ClientInputs, error) {
	if len(b) != 4+int(InputTypeCount) {
		return ClientInputs{}, errors.Wrapf(ErrBodyParse, "client inputs size %d", len(b))
	}
	input, err := readInputVector(b[4:])
	if err != nil {
		return ClientInputs{}, err
	}
	return ClientInputs{Tick: binary.BigEndian.Uint32(b[0:4]), Input: input}, nil
}

// --- Heartbeat ---

func (m *Heartbeat) Type() MsgType { return MsgHeartbeat }

func (m *Heartbeat) Encode(dst []byte) []byte {
	return binary.BigEndian.AppendUint32(dst, m.Tick)
}

// DecodeHeartbeat parses a Heartbeat body.
func DecodeHeartbeat(b []byte) (Heartbeat, error) {
	if len(b) != 4 {
		return Heartbeat{}, errors.Wrapf(ErrBodyParse, "heartbeat size %d", len(b))
	}
	return Heartbeat{Tick: binary.BigEndian.Uint32(b)}, nil
}

// --- EntityUpdate ---

func (m *EntityUpdate) Type() MsgType { return MsgEntityUpdate }

func (m *EntityUpdate) Encode(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, m.Tick)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(m.Entities)))
	for i := range m.Entities {
		e := &m.Entities[i]
		dst = binary.BigEndian.AppendUint32(dst, uint32(e.Entity))
		dst = appendInputVector(dst, e.Input)
		dst = appendVec3(dst, e.Position)
		dst = appendVec3(dst, e.Velocity)
	}
	return dst
}

// DecodeEntityUpdate parses an EntityUpdate body.
func DecodeEntityUpdate(b []byte) (EntityUpdate, error) {
	if len(b) < 6 {
		return EntityUpdate{}, errors.Wrapf(ErrBodyParse, "entity update size %d", len(b))
	}
	tick := binary.BigEndian.Uint32(b[0:4])
	count := int(binary.BigEndian.Uint16(b[4:6]))
	if len(b) != 6+count*entityStateSize {
		return EntityUpdate{}, errors.Wrapf(ErrBodyParse, "entity update count %d, body %d", count, len(b))
	}
	update := EntityUpdate{Tick: tick, Entities: make([]EntityState, count)}
	off := 6
	for i := 0; i < count; i++ {
		e := &update.Entities[i]
		e.Entity = EntityID(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		input, err := readInputVector(b[off : off+int(InputTypeCount)])
		if err != nil {
			return EntityUpdate{}, err
		}
		e.Input = input
		off += int(InputTypeCount)
		e.Position = readVec3(b[off : off+12])
		off += 12
		e.Velocity = readVec3(b[off : off+12])
		off += 12
	}
	return update, nil
}

// --- ExplicitConfirmation ---

func (m *ExplicitConfirmation) Type() MsgType { return MsgExplicitConfirmation }

func (m *ExplicitConfirmation) Encode(dst []byte) []byte {
	return binary.BigEndian.AppendUint32(dst, m.Tick)
}

// DecodeExplicitConfirmation parses an ExplicitConfirmation body.
func DecodeExplicitConfirmation(b []byte) (ExplicitConfirmation, error) {
	if len(b) != 4 {
		return ExplicitConfirmation{}, errors.Wrapf(ErrBodyParse, "explicit confirmation size %d", len(b))
	}
	return ExplicitConfirmation{Tick: binary.BigEndian.Uint32(b)}, nil
}

// --- MessageDropInfo ---

func (m *MessageDropInfo) Type() MsgType { return MsgMessageDropInfo }

func (m *MessageDropInfo) Encode(dst []byte) []byte {
	return binary.BigEndian.AppendUint32(dst, m.Tick)
}

// DecodeMessageDropInfo parses a MessageDropInfo body.
func DecodeMessageDropInfo(b []byte) (MessageDropInfo, error) {
	if len(b) != 4 {
		return MessageDropInfo{}, errors.Wrapf(ErrBodyParse, "message drop info size %d", len(b))
	}
	return MessageDropInfo{Tick: binary.BigEndian.Uint32(b)}, nil
}
