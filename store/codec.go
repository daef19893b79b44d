package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts checkpoints to bytes for durable stores.
type Codec interface {
	Marshal(checkpoint *Checkpoint) ([]byte, error)
	Unmarshal(data []byte) (*Checkpoint, error)
	Name() string
}

// JSONCodec encodes checkpoints as JSON. Numbers come back as float64.
type JSONCodec struct{}

// Marshal encodes the checkpoint
func (JSONCodec) Marshal(checkpoint *Checkpoint) ([]byte, error) {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return data, nil
}

// Unmarshal decodes the checkpoint
func (JSONCodec) Unmarshal(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Name returns "json"
func (JSONCodec) Name() string { return "json" }

// MsgpackCodec encodes checkpoints with MessagePack. It is more compact than
// JSON and keeps integer fields as integers.
type MsgpackCodec struct{}

// Marshal encodes the checkpoint
func (MsgpackCodec) Marshal(checkpoint *Checkpoint) ([]byte, error) {
	data, err := msgpack.Marshal(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return data, nil
}

// Unmarshal decodes the checkpoint
func (MsgpackCodec) Unmarshal(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := msgpack.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Name returns "msgpack"
func (MsgpackCodec) Name() string { return "msgpack" }

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

type compressedCodec struct {
	inner Codec
}

// Compressed wraps a codec with zstd compression.
func Compressed(inner Codec) Codec {
	return &compressedCodec{inner: inner}
}

func (c *compressedCodec) Marshal(checkpoint *Checkpoint) ([]byte, error) {
	data, err := c.inner.Marshal(checkpoint)
	if err != nil {
		return nil, err
	}
	enc, _, err := zstdCoders()
	if err != nil {
		return nil, fmt.Errorf("zstd unavailable: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (c *compressedCodec) Unmarshal(data []byte) (*Checkpoint, error) {
	_, dec, err := zstdCoders()
	if err != nil {
		return nil, fmt.Errorf("zstd unavailable: %w", err)
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress checkpoint: %w", err)
	}
	return c.inner.Unmarshal(raw)
}

func (c *compressedCodec) Name() string { return c.inner.Name() + "+zstd" }

// DefaultCodec is used by durable stores when no codec is configured.
func DefaultCodec() Codec { return JSONCodec{} }
