package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// AgentConfig is the agent binary's full configuration.
type AgentConfig struct {
	HubAddress      string `toml:"hub_address"`
	Hostname        string `toml:"hostname"`
	PrivateKeyPath  string `toml:"private_key_path"`
	HubHostKeyFile  string `toml:"hub_host_key_file"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
	LogFile         string `toml:"log_file"`
	// ThrottleBytesPerSec caps the agent's signature-frame write throughput
	// on the rsync data channel; zero disables throttling.
	ThrottleBytesPerSec int64 `toml:"throttle_bytes_per_sec"`
	ReconnectMinSecs    int   `toml:"reconnect_min_secs"`
	ReconnectMaxSecs    int   `toml:"reconnect_max_secs"`
	HeartbeatIntervalSecs int `toml:"heartbeat_interval_secs"`
	// CompressTransfers must match the hub's setting; see HubConfig.CompressTransfers.
	CompressTransfers bool `toml:"compress_transfers"`
}

// LoadAgentConfig reads and validates an AgentConfig from path.
func LoadAgentConfig(path string) (AgentConfig, error) {
	var cfg AgentConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return AgentConfig{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return AgentConfig{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *AgentConfig) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.ReconnectMinSecs == 0 {
		c.ReconnectMinSecs = 5
	}
	if c.ReconnectMaxSecs == 0 {
		c.ReconnectMaxSecs = 60
	}
	if c.HeartbeatIntervalSecs == 0 {
		c.HeartbeatIntervalSecs = 15
	}
}

func (c *AgentConfig) validate() error {
	if c.HubAddress == "" {
		return fmt.Errorf("hub_address must be set")
	}
	if c.PrivateKeyPath == "" {
		return fmt.Errorf("private_key_path must be set")
	}
	if c.ReconnectMaxSecs < c.ReconnectMinSecs {
		return fmt.Errorf("reconnect_max_secs must be >= reconnect_min_secs")
	}
	return nil
}
