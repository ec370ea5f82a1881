package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestLoadHubConfigDefaults(t *testing.T) {
	path := writeTemp(t, "hub.toml", `
host_key_path = "/etc/hubsync/host_key"

[project]
name = "demo"

[[sync]]
path = "/srv/data"
destination = "/var/data"
`)
	cfg, err := LoadHubConfig(path)
	if err != nil {
		t.Fatalf("LoadHubConfig: %v", err)
	}
	if cfg.Listen != ":2222" {
		t.Errorf("Listen = %q, want default :2222", cfg.Listen)
	}
	if cfg.OrphanTransferTTLSecs != 300 {
		t.Errorf("OrphanTransferTTLSecs = %d, want 300", cfg.OrphanTransferTTLSecs)
	}
	if len(cfg.Sync) != 1 || cfg.Sync[0].Name != "sync-0" {
		t.Fatalf("Sync = %+v", cfg.Sync)
	}
}

func TestLoadHubConfigRequiresHostKeyPath(t *testing.T) {
	path := writeTemp(t, "hub.toml", `listen = ":2222"`)
	if _, err := LoadHubConfig(path); err == nil {
		t.Fatal("expected error for missing host_key_path")
	}
}

func TestLoadHubConfigRejectsSyncRuleMissingDestination(t *testing.T) {
	path := writeTemp(t, "hub.toml", `
host_key_path = "/etc/hubsync/host_key"

[[sync]]
path = "/srv/data"
`)
	if _, err := LoadHubConfig(path); err == nil {
		t.Fatal("expected error for sync rule missing destination")
	}
}

func TestLoadHubConfigWithMirrorAndExecute(t *testing.T) {
	path := writeTemp(t, "hub.toml", `
host_key_path = "/etc/hubsync/host_key"

[[sync]]
name = "configs"
path = "/srv/configs"
destination = "/etc/app"
mirror = true
clients = ["web-*"]

[sync.execute]
command = "systemctl"
args = ["reload", "app"]
working_dir = "/etc/app"
`)
	cfg, err := LoadHubConfig(path)
	if err != nil {
		t.Fatalf("LoadHubConfig: %v", err)
	}
	rule := cfg.Sync[0]
	if !rule.Mirror {
		t.Error("expected mirror = true")
	}
	if len(rule.Clients) != 1 || rule.Clients[0] != "web-*" {
		t.Errorf("Clients = %v", rule.Clients)
	}
	if rule.Execute == nil || rule.Execute.Command != "systemctl" {
		t.Fatalf("Execute = %+v", rule.Execute)
	}
}

func TestFindHubConfigWalksUpward(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ConfigFileName), []byte(`host_key_path = "x"`), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	found, err := FindHubConfig(nested)
	if err != nil {
		t.Fatalf("FindHubConfig: %v", err)
	}
	wantAbs, _ := filepath.Abs(filepath.Join(root, ConfigFileName))
	if found != wantAbs {
		t.Errorf("found = %s, want %s", found, wantAbs)
	}
}

func TestFindHubConfigMissing(t *testing.T) {
	if _, err := FindHubConfig(t.TempDir()); err == nil {
		t.Fatal("expected error when no config file exists in the tree")
	}
}

func TestLoadAgentConfigDefaults(t *testing.T) {
	path := writeTemp(t, "agent.toml", `
hub_address = "hub.internal:2222"
private_key_path = "/home/agent/.ssh/id_ed25519"
`)
	cfg, err := LoadAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	if cfg.ReconnectMinSecs != 5 || cfg.ReconnectMaxSecs != 60 {
		t.Errorf("reconnect defaults = %d/%d, want 5/60", cfg.ReconnectMinSecs, cfg.ReconnectMaxSecs)
	}
	if cfg.HeartbeatIntervalSecs != 15 {
		t.Errorf("HeartbeatIntervalSecs = %d, want 15", cfg.HeartbeatIntervalSecs)
	}
}

func TestLoadAgentConfigRequiresHubAddress(t *testing.T) {
	path := writeTemp(t, "agent.toml", `private_key_path = "/x"`)
	if _, err := LoadAgentConfig(path); err == nil {
		t.Fatal("expected error for missing hub_address")
	}
}

func TestLoadAgentConfigRejectsInvalidReconnectRange(t *testing.T) {
	path := writeTemp(t, "agent.toml", `
hub_address = "hub.internal:2222"
private_key_path = "/x"
reconnect_min_secs = 120
reconnect_max_secs = 60
`)
	if _, err := LoadAgentConfig(path); err == nil {
		t.Fatal("expected error when reconnect_max_secs < reconnect_min_secs")
	}
}
