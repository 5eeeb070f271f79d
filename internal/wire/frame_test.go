package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andersfylling/slipstream/internal/protocol"
)

// decodeBatch runs a framed batch through the same pipeline the client I/O
// task uses: header, optional decompression, record iteration.
func decodeBatch(t *testing.T, frame []byte, maxBatch int) (ServerHeader, []protocol.MsgType, error) {
	t.Helper()
	header, err := DecodeServerHeader(frame, maxBatch)
	if err != nil {
		return ServerHeader{}, nil, err
	}
	if ServerHeaderSize+header.BatchSize != len(frame) {
		return ServerHeader{}, nil, ErrSizeExceedsFrame
	}
	payload := frame[ServerHeaderSize:]
	if header.Compressed {
		payload, err = Decompress(nil, payload, maxBatch)
		if err != nil {
			return ServerHeader{}, nil, err
		}
	}
	var types []protocol.MsgType
	err = ForEachRecord(payload, func(msgType protocol.MsgType, body []byte) error {
		types = append(types, msgType)
		return nil
	})
	return header, types, err
}

func TestBatchRoundTrip(t *testing.T) {
	encoder := NewBatchEncoder(MaxBatchSize)
	require.NoError(t, encoder.Add(&protocol.ExplicitConfirmation{Tick: 9}))
	require.NoError(t, encoder.Add(&protocol.MessageDropInfo{Tick: 5}))

	frame, err := encoder.Finish(-2, 3)
	require.NoError(t, err)

	header, types, err := decodeBatch(t, frame, MaxBatchSize)
	require.NoError(t, err)
	assert.Equal(t, int8(-2), header.Adjustment)
	assert.Equal(t, uint8(3), header.Iteration)
	assert.False(t, header.Compressed)
	assert.Equal(t, []protocol.MsgType{protocol.MsgExplicitConfirmation, protocol.MsgMessageDropInfo}, types)
}

func TestEmptyBatchCarriesHeader(t *testing.T) {
	encoder := NewBatchEncoder(MaxBatchSize)
	frame, err := encoder.Finish(1, 7)
	require.NoError(t, err)
	require.Len(t, frame, ServerHeaderSize)

	header, types, err := decodeBatch(t, frame, MaxBatchSize)
	require.NoError(t, err)
	assert.Equal(t, int8(1), header.Adjustment)
	assert.Equal(t, uint8(7), header.Iteration)
	assert.Empty(t, types)
}

// bigUpdate produces a payload well past the compression threshold that
// compresses well (repetitive entity states).
func bigUpdate() *protocol.EntityUpdate {
	update := &protocol.EntityUpdate{Tick: 500}
	for i := 0; i < 200; i++ {
		update.Entities = append(update.Entities, protocol.EntityState{
			Entity:   protocol.EntityID(i),
			Position: protocol.Vec3{X: 10, Y: 10},
		})
	}
	return update
}

func TestCompressedBatchRoundTrip(t *testing.T) {
	update := bigUpdate()

	encoder := NewBatchEncoder(MaxBatchSize)
	require.NoError(t, encoder.Add(update))
	uncompressedSize := encoder.Pending()

	frame, err := encoder.Finish(0, 0)
	require.NoError(t, err)

	header, err := DecodeServerHeader(frame, MaxBatchSize)
	require.NoError(t, err)
	require.True(t, header.Compressed)
	require.Less(t, header.BatchSize, uncompressedSize)

	payload, err := Decompress(nil, frame[ServerHeaderSize:], MaxBatchSize)
	require.NoError(t, err)
	require.Len(t, payload, uncompressedSize)

	msgType, body, rest, err := ReadRecord(payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgEntityUpdate, msgType)
	assert.Empty(t, rest)

	decoded, err := protocol.DecodeEntityUpdate(body)
	require.NoError(t, err)
	assert.Equal(t, *update, decoded)
}

// TestMutatedBatchNeverCorruptsSilently flips every byte of a framed batch
// in turn; each mutation must either still decode or fail loudly.
func TestMutatedBatchNeverCorruptsSilently(t *testing.T) {
	encoder := NewBatchEncoder(MaxBatchSize)
	require.NoError(t, encoder.Add(bigUpdate()))
	require.NoError(t, encoder.Add(&protocol.ExplicitConfirmation{Tick: 501}))
	frame, err := encoder.Finish(0, 1)
	require.NoError(t, err)

	for i := range frame {
		mutated := make([]byte, len(frame))
		copy(mutated, frame)
		mutated[i] ^= 0x40

		assert.NotPanics(t, func() {
			header, err := DecodeServerHeader(mutated, MaxBatchSize)
			if err != nil {
				return
			}
			if ServerHeaderSize+header.BatchSize != len(mutated) {
				// The receive layer would fail to read the advertised
				// byte count; that's a detected framing error.
				return
			}
			payload := mutated[ServerHeaderSize:]
			if header.Compressed {
				payload, err = Decompress(nil, payload, MaxBatchSize)
				if err != nil {
					return
				}
			}
			_ = ForEachRecord(payload, func(msgType protocol.MsgType, body []byte) error {
				switch msgType {
				case protocol.MsgEntityUpdate:
					_, err := protocol.DecodeEntityUpdate(body)
					return err
				case protocol.MsgExplicitConfirmation:
					_, err := protocol.DecodeExplicitConfirmation(body)
					return err
				default:
					return nil
				}
			})
		}, "mutation at byte %d", i)
	}
}

func TestResidueIsFramingError(t *testing.T) {
	record, err := AppendRecord(nil, &protocol.Heartbeat{Tick: 1})
	require.NoError(t, err)

	// A single stray byte after the last record must not parse cleanly.
	err = ForEachRecord(append(record, 0x00), func(protocol.MsgType, []byte) error { return nil })
	assert.Error(t, err)
}

func TestRecordRejectsOversizedClaim(t *testing.T) {
	record := []byte{byte(protocol.MsgHeartbeat), 0xff, 0xff, 1, 2, 3}
	_, _, _, err := ReadRecord(record)
	assert.ErrorIs(t, err, ErrSizeExceedsFrame)
}

func TestRecordRejectsUnknownType(t *testing.T) {
	record := []byte{0xee, 0x00, 0x00}
	_, _, _, err := ReadRecord(record)
	assert.ErrorIs(t, err, ErrBadMessageType)
}

func TestHeaderRejectsOversizedBatch(t *testing.T) {
	var raw [ServerHeaderSize]byte
	EncodeServerHeader(raw[:], ServerHeader{BatchSize: 5000})
	_, err := DecodeServerHeader(raw[:], 1024)
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestClientFrame(t *testing.T) {
	frame, err := EncodeClientFrame(6, &protocol.Heartbeat{Tick: 77})
	require.NoError(t, err)
	assert.Equal(t, uint8(6), frame[0])

	msgType, body, rest, err := ReadRecord(frame[ClientHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgHeartbeat, msgType)
	assert.Empty(t, rest)

	heartbeat, err := protocol.DecodeHeartbeat(body)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), heartbeat.Tick)
}
