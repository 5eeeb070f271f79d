package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/andersfylling/slipstream/internal/protocol"
)

const (
	// ServerHeaderSize is the size of the header preceding every
	// server-to-client batch: i8 adjustment, u8 iteration, u16 size+flag.
	ServerHeaderSize = 4

	// ClientHeaderSize is the size of the header preceding every
	// client-to-server message: u8 iteration echo.
	ClientHeaderSize = 1

	// MessageHeaderSize is the size of a per-message record header:
	// u8 type, u16 body length.
	MessageHeaderSize = 3

	// compressedFlag is the high bit of the batch size field.
	compressedFlag = uint16(1) << 15

	// MaxBatchSize is the largest payload length the 15-bit size field can
	// carry. Deployments cap batches lower via configuration.
	MaxBatchSize = int(compressedFlag) - 1

	// MaxBodySize is the largest message body the u16 length field can carry.
	MaxBodySize = 1<<16 - 1
)

// ServerHeader is the decoded form of the batch header.
type ServerHeader struct {
	Adjustment int8
	Iteration  uint8
	BatchSize  int
	Compressed bool
}

// EncodeServerHeader writes h into dst, which must be at least
// ServerHeaderSize bytes long.
func EncodeServerHeader(dst []byte, h ServerHeader) {
	sizeAndFlag := uint16(h.BatchSize)
	if h.Compressed {
		sizeAndFlag |= compressedFlag
	}
	dst[0] = byte(h.Adjustment)
	dst[1] = h.Iteration
	binary.BigEndian.PutUint16(dst[2:4], sizeAndFlag)
}

// DecodeServerHeader parses a batch header. maxBatch is the configured
// payload cap; a size beyond it is a framing error.
func DecodeServerHeader(b []byte, maxBatch int) (ServerHeader, error) {
	if len(b) < ServerHeaderSize {
		return ServerHeader{}, errors.Wrapf(ErrBadHeader, "server header needs %d bytes, got %d", ServerHeaderSize, len(b))
	}
	sizeAndFlag := binary.BigEndian.Uint16(b[2:4])
	h := ServerHeader{
		Adjustment: int8(b[0]),
		Iteration:  b[1],
		BatchSize:  int(sizeAndFlag &^ compressedFlag),
		Compressed: sizeAndFlag&compressedFlag != 0,
	}
	if h.BatchSize > maxBatch {
		return ServerHeader{}, errors.Wrapf(ErrBadHeader, "batch size %d exceeds max %d", h.BatchSize, maxBatch)
	}
	return h, nil
}

// AppendRecord appends one framed message record (type, length, body) to dst.
func AppendRecord(dst []byte, msg protocol.Message) ([]byte, error) {
	body := msg.Encode(nil)
	if len(body) > MaxBodySize {
		return dst, errors.Wrapf(ErrSizeExceedsFrame, "%s body is %d bytes", msg.Type(), len(body))
	}
	dst = append(dst, byte(msg.Type()))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(body)))
	return append(dst, body...), nil
}

// ReadRecord parses the next message record from b, returning the record
// and the remainder of b.
func ReadRecord(b []byte) (protocol.MsgType, []byte, []byte, error) {
	if len(b) < MessageHeaderSize {
		return protocol.MsgNotSet, nil, nil, errors.Wrapf(ErrBadHeader, "record header needs %d bytes, got %d", MessageHeaderSize, len(b))
	}
	msgType := protocol.MsgType(b[0])
	if msgType == protocol.MsgNotSet || msgType > protocol.MsgMessageDropInfo {
		return protocol.MsgNotSet, nil, nil, errors.Wrapf(ErrBadMessageType, "type %d", b[0])
	}
	size := int(binary.BigEndian.Uint16(b[1:3]))
	if MessageHeaderSize+size > len(b) {
		return protocol.MsgNotSet, nil, nil, errors.Wrapf(ErrSizeExceedsFrame, "record claims %d bytes, %d remain", size, len(b)-MessageHeaderSize)
	}
	return msgType, b[MessageHeaderSize : MessageHeaderSize+size], b[MessageHeaderSize+size:], nil
}

// ForEachRecord iterates the message records in a decompressed batch
// payload, enforcing that the records consume the payload exactly.
func ForEachRecord(payload []byte, fn func(t protocol.MsgType, body []byte) error) error {
	rest := payload
	for len(rest) > 0 {
		msgType, body, next, err := ReadRecord(rest)
		if err != nil {
			return err
		}
		if err := fn(msgType, body); err != nil {
			return err
		}
		rest = next
	}
	return nil
}

// BatchEncoder assembles server-to-client batches. Records are accumulated
// with Add and flushed with Finish, which compresses payloads that benefit
// from it and prepends the header. Not safe for concurrent use; each
// per-client sender owns one.
type BatchEncoder struct {
	maxBatch int
	payload  []byte
	scratch  []byte
}

// NewBatchEncoder creates an encoder whose finished payloads never exceed
// maxBatch bytes.
func NewBatchEncoder(maxBatch int) *BatchEncoder {
	if maxBatch > MaxBatchSize {
		maxBatch = MaxBatchSize
	}
	return &BatchEncoder{
		maxBatch: maxBatch,
		payload:  make([]byte, 0, maxBatch),
		scratch:  make([]byte, 0, maxBatch),
	}
}

// Add appends one message record to the pending batch.
func (e *BatchEncoder) Add(msg protocol.Message) error {
	grown, err := AppendRecord(e.payload, msg)
	if err != nil {
		return err
	}
	e.payload = grown
	return nil
}

// Pending returns the number of payload bytes accumulated so far.
func (e *BatchEncoder) Pending() int { return len(e.payload) }

// Finish frames the accumulated records into a complete batch carrying the
// given adjustment and iteration, then resets the encoder. The returned
// slice is valid until the next call to Add or Finish.
func (e *BatchEncoder) Finish(adjustment int8, iteration uint8) ([]byte, error) {
	payload := e.payload
	compressed := false

	if len(payload) >= CompressionThreshold {
		e.scratch = Compress(e.scratch[:0], payload)
		if len(e.scratch) < len(payload) {
			payload = e.scratch
			compressed = true
		}
	}
	if len(payload) > e.maxBatch {
		e.payload = e.payload[:0]
		return nil, errors.Wrapf(ErrSizeExceedsFrame, "batch payload %d exceeds max %d", len(payload), e.maxBatch)
	}

	frame := make([]byte, ServerHeaderSize+len(payload))
	EncodeServerHeader(frame, ServerHeader{
		Adjustment: adjustment,
		Iteration:  iteration,
		BatchSize:  len(payload),
		Compressed: compressed,
	})
	copy(frame[ServerHeaderSize:], payload)
	e.payload = e.payload[:0]
	return frame, nil
}

// EncodeClientFrame frames a single client-to-server message: the 1-byte
// iteration echo followed by one message record.
func EncodeClientFrame(iteration uint8, msg protocol.Message) ([]byte, error) {
	frame, err := AppendRecord([]byte{iteration}, msg)
	if err != nil {
		return nil, err
	}
	return frame, nil
}
