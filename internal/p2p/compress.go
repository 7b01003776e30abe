package p2p

import (
	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<20))
)

// CompressHeaderBatch compresses an encoded batch of headers (a locator
// response can carry up to maxSyncBatchSize 80-byte headers) before it goes
// out on a sync stream.
func CompressHeaderBatch(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

// DecompressHeaderBatch decompresses a header batch. If the data does not
// start with the zstd magic bytes, it is returned as-is for forward
// compatibility with uncompressed peers.
func DecompressHeaderBatch(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0x28 || data[1] != 0xB5 || data[2] != 0x2F || data[3] != 0xFD {
		return data, nil
	}
	return zstdDecoder.DecodeAll(data, nil)
}
