package delta

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ErrDecode is returned when a compressed payload cannot be decoded.
var ErrDecode = errors.New("failed to decode payload")

// DefaultCompressionThreshold is the serialized size in bytes above which a
// payload is compressed.
const DefaultCompressionThreshold = 500

// maxDecodedSize bounds the memory a single decompression may use.
const maxDecodedSize = 16 << 20

// Encoded is a serialized payload, possibly compressed. Compressed data is
// zstd then base64 so it can travel inside a JSON string.
type Encoded struct {
	Data       string
	Compressed bool
	// RawSize is the serialized size before compression.
	RawSize int
}

// Size returns the number of bytes that go on the wire for Data.
func (e *Encoded) Size() int {
	return len(e.Data)
}

// Compressor serializes payloads and compresses them above a size threshold.
// It is safe for concurrent use.
type Compressor struct {
	threshold int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewCompressor creates a new compressor. A threshold <= 0 uses the default.
func NewCompressor(threshold int) (*Compressor, error) {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %v", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %v", err)
	}
	return &Compressor{
		threshold: threshold,
		encoder:   encoder,
		decoder:   decoder,
	}, nil
}

// Threshold returns the compression threshold in bytes.
func (c *Compressor) Threshold() int {
	return c.threshold
}

// Compress serializes payload and compresses it if the serialized form is
// larger than the threshold.
func (c *Compressor) Compress(payload interface{}) (*Encoded, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %v", err)
	}
	if len(raw) <= c.threshold {
		return &Encoded{Data: string(raw), RawSize: len(raw)}, nil
	}
	compressed := c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	return &Encoded{
		Data:       base64.StdEncoding.EncodeToString(compressed),
		Compressed: true,
		RawSize:    len(raw),
	}, nil
}

// Decompress returns the serialized payload. Empty, truncated or otherwise
// malformed compressed data yields ErrDecode.
func (c *Compressor) Decompress(data string, compressed bool) ([]byte, error) {
	if !compressed {
		return []byte(data), nil
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty compressed payload", ErrDecode)
	}
	raw, err := c.decoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return raw, nil
}

// Close releases the codec resources.
func (c *Compressor) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
