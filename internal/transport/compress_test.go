package transport

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("hubsync delta payload "), 64)
	compressed, err := CompressPayload(original)
	if err != nil {
		t.Fatalf("CompressPayload: %v", err)
	}
	if bytes.Equal(compressed, original) {
		t.Error("expected compressed output to differ from input")
	}

	got, err := DecompressPayload(compressed)
	if err != nil {
		t.Fatalf("DecompressPayload: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Error("round trip did not reproduce original payload")
	}
}

func TestDecompressPayloadRejectsGarbage(t *testing.T) {
	if _, err := DecompressPayload([]byte("not zstd")); err == nil {
		t.Fatal("expected error decompressing non-zstd input")
	}
}
