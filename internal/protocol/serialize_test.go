package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRequestRoundTrip(t *testing.T) {
	in := ConnectionRequest{Version: ProtocolVersion, Name: "roberto"}
	out, err := DecodeConnectionRequest(in.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestConnectionResponseRoundTrip(t *testing.T) {
	in := ConnectionResponse{
		Entity:    7,
		Tick:      100,
		Spawn:     Vec3{X: 5, Y: 5, Z: 0},
		MapWidth:  64,
		MapHeight: 48,
	}
	out, err := DecodeConnectionResponse(in.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestClientInputsRoundTrip(t *testing.T) {
	var input InputVector
	input[XUp] = Pressed
	input[YDown] = Pressed

	in := ClientInputs{Tick: 105, Input: input}
	out, err := DecodeClientInputs(in.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEntityUpdateRoundTrip(t *testing.T) {
	var input InputVector
	input[XDown] = Pressed

	in := EntityUpdate{
		Tick: 205,
		Entities: []EntityState{
			{
				Entity:   7,
				Input:    input,
				Position: Vec3{X: 5, Y: 4.5, Z: 0},
				Velocity: Vec3{X: -30, Y: 0, Z: 0},
			},
			{
				Entity:   9,
				Position: Vec3{X: 12, Y: 12, Z: 0},
			},
		},
	}
	out, err := DecodeEntityUpdate(in.Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEntityUpdateRejectsTruncatedBody(t *testing.T) {
	in := EntityUpdate{Tick: 1, Entities: []EntityState{{Entity: 3}}}
	encoded := in.Encode(nil)

	_, err := DecodeEntityUpdate(encoded[:len(encoded)-1])
	assert.ErrorIs(t, err, ErrBodyParse)
}

func TestClientInputsRejectsInvalidState(t *testing.T) {
	in := ClientInputs{Tick: 10}
	encoded := in.Encode(nil)
	encoded[4] = 0xff

	_, err := DecodeClientInputs(encoded)
	assert.ErrorIs(t, err, ErrBodyParse)
}

func TestConnectionRequestRejectsBadNameLength(t *testing.T) {
	_, err := DecodeConnectionRequest([]byte{200, 'a', 'b'})
	assert.ErrorIs(t, err, ErrBodyParse)
}

func TestHeartbeatAndConfirmationRoundTrip(t *testing.T) {
	hb, err := DecodeHeartbeat((&Heartbeat{Tick: 42}).Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, uint32(42), hb.Tick)

	conf, err := DecodeExplicitConfirmation((&ExplicitConfirmation{Tick: 43}).Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, uint32(43), conf.Tick)

	drop, err := DecodeMessageDropInfo((&MessageDropInfo{Tick: 44}).Encode(nil))
	require.NoError(t, err)
	assert.Equal(t, uint32(44), drop.Tick)
}
