// Package config loads the TOML configuration for the hub and agent
// binaries, grounded on original_source/launcher/src/config.rs's
// Config/ProjectConfig/SyncRule/ExecuteConfig shape and
// nishisan-dev-n-backup's internal/config validate()-with-defaults idiom.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the declarative sync-rule file hub searches for,
// walking upward from the current directory, mirroring
// Config::find_and_load in original_source/launcher/src/config.rs.
const ConfigFileName = ".hubsync.toml"

// HubConfig is the hub binary's full configuration.
type HubConfig struct {
	Listen         string          `toml:"listen"`
	HostKeyPath    string          `toml:"host_key_path"`
	AuthorizedKeys string          `toml:"authorized_keys"`
	LogLevel       string          `toml:"log_level"`
	LogFormat      string          `toml:"log_format"`
	LogFile        string          `toml:"log_file"`
	TransferLogDir string          `toml:"transfer_log_dir"`
	// StaleAgentTimeoutSecs, when non-zero, makes the hub evict agents
	// whose heartbeat is older than this many seconds. Zero (the
	// default) preserves spec.md's behavior of never auto-reaping.
	StaleAgentTimeoutSecs int        `toml:"stale_agent_timeout_secs"`
	OrphanTransferTTLSecs int        `toml:"orphan_transfer_ttl_secs"`
	// CompressTransfers wraps rsync signature/delta payloads in zstd before
	// framing, per SPEC_FULL.md §4.9; default off so the wire format matches
	// spec.md §3 exactly unless both hub and agent opt in.
	CompressTransfers bool `toml:"compress_transfers"`
	// RescanIntervalSecs, when non-zero, re-enumerates every sync rule on
	// this interval and re-pushes every matching file to every matching
	// connected agent, without comparing content hashes first,
	// resolving spec.md §9's "what reconciles a push an agent missed while
	// disconnected" open question beyond per-connect initial sync alone.
	RescanIntervalSecs int        `toml:"rescan_interval_secs"`
	Project            Project    `toml:"project"`
	Sync               []SyncRule `toml:"sync"`
}

// Project names and describes the set of sync rules, matching
// original_source/launcher/src/config.rs's ProjectConfig.
type Project struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// SyncRule is one declarative [[sync]] block: an alternative to issuing
// WatchDirectory operator commands by hand.
type SyncRule struct {
	Name        string        `toml:"name"`
	Path        string        `toml:"path"`
	Destination string        `toml:"destination"`
	Recursive   bool          `toml:"recursive"`
	Include     []string      `toml:"include"`
	Exclude     []string      `toml:"exclude"`
	Clients     []string      `toml:"clients"`
	Mirror      bool          `toml:"mirror"`
	Execute     *ExecuteRule  `toml:"execute"`
}

// ExecuteRule is the optional post-push command of a SyncRule.
type ExecuteRule struct {
	Command    string            `toml:"command"`
	Args       []string          `toml:"args"`
	Env        map[string]string `toml:"env"`
	WorkingDir string            `toml:"working_dir"`
}

// LoadHubConfig reads and validates a HubConfig from path.
func LoadHubConfig(path string) (HubConfig, error) {
	var cfg HubConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return HubConfig{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return HubConfig{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// FindHubConfig walks upward from dir looking for ConfigFileName, mirroring
// Config::find_and_load's search-from-CWD-upward behavior.
func FindHubConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("config: no %s found in %s or any parent directory", ConfigFileName, dir)
		}
		dir = parent
	}
}

func (c *HubConfig) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":2222"
	}
	if c.AuthorizedKeys == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.AuthorizedKeys = filepath.Join(home, ".ssh", "authorized_keys")
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.OrphanTransferTTLSecs == 0 {
		c.OrphanTransferTTLSecs = 5 * 60
	}
	for i := range c.Sync {
		if c.Sync[i].Name == "" {
			c.Sync[i].Name = fmt.Sprintf("sync-%d", i)
		}
	}
}

// validate mirrors config.rs's Config::validate: at least the fields needed
// to start are present, and every sync rule has a usable path/destination.
func (c *HubConfig) validate() error {
	if c.HostKeyPath == "" {
		return fmt.Errorf("host_key_path must be set")
	}
	for _, rule := range c.Sync {
		if rule.Path == "" {
			return fmt.Errorf("sync rule %q: path must be set", rule.Name)
		}
		if rule.Destination == "" {
			return fmt.Errorf("sync rule %q: destination must be set", rule.Name)
		}
	}
	return nil
}
