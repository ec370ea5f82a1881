package hub

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nishisan-dev/hubsync/internal/protocol"
	"github.com/nishisan-dev/hubsync/internal/watch"
)

func testHubWithWatches(t *testing.T) *Hub {
	t.Helper()
	engine, err := watch.New()
	if err != nil {
		t.Fatalf("starting watch engine: %v", err)
	}
	t.Cleanup(engine.Stop)
	h := testHub()
	h.watches = engine
	return h
}

func TestExecuteCommandPing(t *testing.T) {
	h := testHub()
	resp := h.ExecuteCommand(protocol.Command{Op: protocol.OpPing})
	if resp.Kind != protocol.RespSuccess || resp.Message != "pong" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestExecuteCommandUnknownOp(t *testing.T) {
	h := testHub()
	resp := h.ExecuteCommand(protocol.Command{Op: "bogus"})
	if resp.Kind != protocol.RespError {
		t.Fatalf("expected RespError, got %+v", resp)
	}
}

func TestExecuteCommandListClients(t *testing.T) {
	h := testHub()
	registerAgent(h, "web-01")
	registerAgent(h, "db-01")

	resp := h.ExecuteCommand(protocol.Command{Op: protocol.OpListClients})
	if resp.Kind != protocol.RespClientList || len(resp.Clients) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestExecuteCommandStatusUnknownHostname(t *testing.T) {
	h := testHub()
	resp := h.ExecuteCommand(protocol.Command{Op: protocol.OpStatus, Hostname: "ghost"})
	if resp.Kind != protocol.RespError {
		t.Fatalf("expected RespError for unregistered hostname, got %+v", resp)
	}
}

func TestExecuteCommandWatchAndListAndUnwatch(t *testing.T) {
	h := testHubWithWatches(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	watchResp := h.ExecuteCommand(protocol.Command{
		Op: protocol.OpWatchDirectory, Path: dir, Destination: "/srv/app",
	})
	if watchResp.Kind != protocol.RespSuccess {
		t.Fatalf("watch failed: %+v", watchResp)
	}

	listResp := h.ExecuteCommand(protocol.Command{Op: protocol.OpListWatches})
	if listResp.Kind != protocol.RespWatchList || len(listResp.Watches) != 1 {
		t.Fatalf("unexpected list-watches response: %+v", listResp)
	}
	if listResp.Watches[0].Path != dir {
		t.Fatalf("unexpected watched path: %+v", listResp.Watches[0])
	}

	unwatchResp := h.ExecuteCommand(protocol.Command{Op: protocol.OpUnwatchDirectory, Path: dir})
	if unwatchResp.Kind != protocol.RespSuccess {
		t.Fatalf("unwatch failed: %+v", unwatchResp)
	}

	afterResp := h.ExecuteCommand(protocol.Command{Op: protocol.OpListWatches})
	if len(afterResp.Watches) != 0 {
		t.Fatalf("expected no watches left, got %+v", afterResp.Watches)
	}
}

func TestExecuteCommandShutdownNoAgents(t *testing.T) {
	h := testHub()
	resp := h.ExecuteCommand(protocol.Command{Op: protocol.OpShutdown})
	if resp.Kind != protocol.RespSuccess {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if msg := resp.Message; msg == "" {
		t.Fatalf("expected a message summarizing the shutdown fan-out")
	}
}
