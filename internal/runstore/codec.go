package runstore

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// encodeSamples packs samples as zstd-compressed msgpack.
func encodeSamples(samples []Sample) ([]byte, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := msgpack.NewEncoder(zw).Encode(samples); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to encode samples: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSamples(blob []byte) ([]Sample, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	zr, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var samples []Sample
	if err := msgpack.NewDecoder(zr).Decode(&samples); err != nil {
		return nil, fmt.Errorf("failed to decode samples: %w", err)
	}
	return samples, nil
}
