package agent

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nishisan-dev/hubsync/internal/delta"
	"github.com/nishisan-dev/hubsync/internal/protocol"
)

func testSessionWithLogger() *Session {
	return &Session{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// hashOf is a test helper computing the same SHA-256 content hash the hub
// sends as RsyncStart.ContentHash.
func hashOf(t *testing.T, content []byte) string {
	t.Helper()
	h, err := delta.Hash(&byteReader{b: content})
	if err != nil {
		t.Fatalf("hashing test content: %v", err)
	}
	return h
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

func TestApplyDeltaNewFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "new.txt")
	content := []byte("hello world")

	d := delta.Delta{Ops: []delta.Op{{Literal: content}}}
	m := protocol.RsyncStart{
		RequestID:   "req-1",
		Destination: dest,
		ContentHash: hashOf(t, content),
		BlockSize:   4,
	}

	s := testSessionWithLogger()
	size, hash, err := s.applyDelta(m, d)
	if err != nil {
		t.Fatalf("applyDelta: %v", err)
	}
	if size != int64(len(content)) {
		t.Fatalf("unexpected size %d", size)
	}
	if hash != m.ContentHash {
		t.Fatalf("returned hash %q does not match expected %q", hash, m.ContentHash)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading destination: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("unexpected destination content %q", got)
	}
}

func TestApplyDeltaModifiedFileUsesBlockReferences(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "existing.txt")
	oldContent := []byte("AAAABBBBCCCC")
	if err := os.WriteFile(dest, oldContent, 0644); err != nil {
		t.Fatalf("seeding destination: %v", err)
	}

	blockSize := uint32(4)
	sig, err := delta.GenerateSignature(&byteReader{b: oldContent}, blockSize)
	if err != nil {
		t.Fatalf("generating signature: %v", err)
	}

	newContent := []byte("AAAABBBBDDDD")
	d, err := delta.GenerateDelta(&byteReader{b: newContent}, sig)
	if err != nil {
		t.Fatalf("generating delta: %v", err)
	}

	m := protocol.RsyncStart{
		RequestID:   "req-2",
		Destination: dest,
		ContentHash: hashOf(t, newContent),
		BlockSize:   blockSize,
	}

	s := testSessionWithLogger()
	size, hash, err := s.applyDelta(m, d)
	if err != nil {
		t.Fatalf("applyDelta: %v", err)
	}
	if size != int64(len(newContent)) {
		t.Fatalf("unexpected size %d", size)
	}
	if hash != m.ContentHash {
		t.Fatalf("returned hash %q does not match expected %q", hash, m.ContentHash)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading destination: %v", err)
	}
	if string(got) != string(newContent) {
		t.Fatalf("unexpected destination content %q", got)
	}
}

func TestApplyDeltaChecksumMismatchLeavesExistingFileUntouched(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "existing.txt")
	oldContent := []byte("original content")
	if err := os.WriteFile(dest, oldContent, 0644); err != nil {
		t.Fatalf("seeding destination: %v", err)
	}

	d := delta.Delta{Ops: []delta.Op{{Literal: []byte("Hello")}}}
	m := protocol.RsyncStart{
		RequestID:   "req-3",
		Destination: dest,
		ContentHash: "deadbeef00000000000000000000000000000000000000000000000000000000",
		BlockSize:   4,
	}

	s := testSessionWithLogger()
	_, _, err := s.applyDelta(m, d)
	if err != errChecksumMismatch {
		t.Fatalf("expected errChecksumMismatch, got %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading destination: %v", err)
	}
	if string(got) != string(oldContent) {
		t.Fatalf("destination was modified despite checksum mismatch: %q", got)
	}

	if _, err := os.Stat(dest + ".hubsync-tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be removed, stat err = %v", err)
	}
}
