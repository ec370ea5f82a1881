package agent

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nishisan-dev/hubsync/internal/protocol"
)

func testSession() *Session {
	return &Session{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestHandleDeleteFileRemovesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirrored.txt")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	ch := &fakeChannel{}
	s := testSession()
	s.handleDeleteFile(ch, protocol.DeleteFile{RequestID: "req-1", Destination: path})

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err = %v", path, err)
	}

	frame, err := protocol.Read(&ch.Buffer)
	if err != nil {
		t.Fatalf("reading reply frame: %v", err)
	}
	msg, ok, err := protocol.DecodeAgentMessage(frame)
	if err != nil || !ok {
		t.Fatalf("decoding reply: ok=%v err=%v", ok, err)
	}
	complete, ok := msg.(protocol.DeleteComplete)
	if !ok {
		t.Fatalf("expected DeleteComplete, got %T", msg)
	}
	if !complete.Success || complete.RequestID != "req-1" {
		t.Fatalf("unexpected reply: %+v", complete)
	}
}

func TestHandleDeleteFileMissingDestinationStillSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "never-existed.txt")

	ch := &fakeChannel{}
	s := testSession()
	s.handleDeleteFile(ch, protocol.DeleteFile{RequestID: "req-2", Destination: path})

	frame, err := protocol.Read(&ch.Buffer)
	if err != nil {
		t.Fatalf("reading reply frame: %v", err)
	}
	msg, _, err := protocol.DecodeAgentMessage(frame)
	if err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	complete := msg.(protocol.DeleteComplete)
	if !complete.Success {
		t.Fatalf("expected success for already-missing destination, got %+v", complete)
	}
}
