// Package wire implements the framing codec: the server batch header, the
// client message header, per-message records, and batch compression.
package wire

import "github.com/pkg/errors"

// Framing error kinds. All of them are fatal for the connection they occur
// on; none of them affect other connections.
var (
	ErrBadHeader           = errors.New("bad frame header")
	ErrBadMessageType      = errors.New("bad message type")
	ErrSizeExceedsFrame    = errors.New("message size exceeds frame")
	ErrDecompressionFailed = errors.New("batch decompression failed")
	ErrBodyParseFailed     = errors.New("message body parse failed")
)
