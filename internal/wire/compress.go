package wire

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// CompressionThreshold is the payload size at or above which batches are
// compressed (and sent compressed only if that made them smaller). Small
// batches are cheaper to send as-is.
const CompressionThreshold = 128

// Shared one-shot codecs. EncodeAll/DecodeAll are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(1<<20))
	if err != nil {
		panic(err)
	}
}

// Compress appends the compressed form of src to dst and returns it.
func Compress(dst, src []byte) []byte {
	return zstdEncoder.EncodeAll(src, dst)
}

// Decompress appends the decompressed form of src to dst, failing if the
// result would exceed maxSize.
func Decompress(dst, src []byte, maxSize int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, dst)
	if err != nil {
		return nil, errors.Wrap(ErrDecompressionFailed, err.Error())
	}
	if len(out)-len(dst) > maxSize {
		return nil, errors.Wrapf(ErrDecompressionFailed, "decompressed to %d bytes, max %d", len(out)-len(dst), maxSize)
	}
	return out, nil
}
