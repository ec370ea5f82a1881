package transport

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// CompressPayload wraps data in a zstd frame, used for rsync signature/delta
// payloads when a deployment opts into compress_transfers (SPEC_FULL.md
// §4.9), repurposed from the teacher's backup-archive compression.
func CompressPayload(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("transport: creating zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, fmt.Errorf("transport: compressing payload: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("transport: closing zstd writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressPayload reverses CompressPayload.
func DecompressPayload(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("transport: creating zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("transport: decompressing payload: %w", err)
	}
	return out, nil
}
