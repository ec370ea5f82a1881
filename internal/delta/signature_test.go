package delta

import (
	"bytes"
	"testing"
)

func TestGenerateSignatureBlockCount(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 10000)
	sig, err := GenerateSignature(bytes.NewReader(content), 4096)
	if err != nil {
		t.Fatalf("GenerateSignature: %v", err)
	}
	if len(sig.Blocks) != 3 {
		t.Fatalf("len(Blocks) = %d, want 3 (4096+4096+1808)", len(sig.Blocks))
	}
	if sig.FileSize != int64(len(content)) {
		t.Errorf("FileSize = %d, want %d", sig.FileSize, len(content))
	}
}

func TestSignatureMarshalRoundTrip(t *testing.T) {
	content := bytes.Repeat([]byte("abcd"), 2000)
	sig, err := GenerateSignature(bytes.NewReader(content), 4096)
	if err != nil {
		t.Fatalf("GenerateSignature: %v", err)
	}

	got, err := UnmarshalSignature(sig.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalSignature: %v", err)
	}
	if got.BlockSize != sig.BlockSize || got.FileSize != sig.FileSize || len(got.Blocks) != len(sig.Blocks) {
		t.Fatalf("got %+v, want %+v", got, sig)
	}
	for i := range sig.Blocks {
		if got.Blocks[i] != sig.Blocks[i] {
			t.Errorf("block %d: got %+v, want %+v", i, got.Blocks[i], sig.Blocks[i])
		}
	}
}

func TestUnmarshalSignatureRejectsTruncated(t *testing.T) {
	if _, err := UnmarshalSignature([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for too-short signature")
	}
}
