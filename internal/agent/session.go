// Package agent implements the agent side of the protocol: dialing the hub
// over SSH, registering, and servicing RsyncStart/Execute/Ping/Shutdown
// pushes on its control channel (spec §4.9), grounded on
// nishisan-dev-n-backup's internal/agent daemon reconnect-loop idiom.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/nishisan-dev/hubsync/internal/config"
	"github.com/nishisan-dev/hubsync/internal/protocol"
	"github.com/nishisan-dev/hubsync/internal/transport"
)

// Session is the agent's live connection state across reconnects.
type Session struct {
	cfg      config.AgentConfig
	logger   *slog.Logger
	hostname string
}

// New builds a Session, defaulting hostname to the OS-reported hostname
// when the config doesn't pin one.
func New(cfg config.AgentConfig, logger *slog.Logger) *Session {
	hostname := cfg.Hostname
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		}
	}
	return &Session{cfg: cfg, logger: logger, hostname: hostname}
}

// Run dials the hub and services it until ctx is cancelled, reconnecting
// with exponential backoff (bounded by ReconnectMinSecs/ReconnectMaxSecs)
// whenever the connection drops. It returns nil, without reconnecting,
// once the hub sends Shutdown.
func (s *Session) Run(ctx context.Context) error {
	minBackoff := time.Duration(s.cfg.ReconnectMinSecs) * time.Second
	maxBackoff := time.Duration(s.cfg.ReconnectMaxSecs) * time.Second
	backoff := minBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		connected := false
		err := s.connectAndServe(ctx, func() { connected = true })
		if errors.Is(err, errHubShutdown) {
			s.logger.Info("agent shutting down", "reason", err)
			return nil
		}
		if err != nil {
			s.logger.Warn("agent connection ended", "error", err)
		}
		if connected {
			backoff = minBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Session) connectAndServe(ctx context.Context, onRegistered func()) error {
	client, err := transport.Dial(transport.DialConfig{
		Address:               s.cfg.HubAddress,
		User:                  "agent",
		PrivateKeyPath:        s.cfg.PrivateKeyPath,
		HubHostKeyFingerprint: s.hubHostKeyFingerprint(),
		Timeout:               15 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("agent: dialing hub: %w", err)
	}
	defer client.Close()

	ch, reqs, err := client.OpenChannel("session", nil)
	if err != nil {
		return fmt.Errorf("agent: opening control channel: %w", err)
	}
	defer ch.Close()
	go ssh.DiscardRequests(reqs)

	register := protocol.Register{Hostname: s.hostname, Platform: runtime.GOOS}
	if err := sendFrame(ch, protocol.EncodeAgentMessage(register)); err != nil {
		return fmt.Errorf("agent: sending register: %w", err)
	}

	onRegistered()
	s.logger.Info("connected to hub", "address", s.cfg.HubAddress, "hostname", s.hostname)
	return s.controlLoop(ctx, client, ch)
}

func (s *Session) hubHostKeyFingerprint() string {
	if s.cfg.HubHostKeyFile == "" {
		return ""
	}
	data, err := os.ReadFile(s.cfg.HubHostKeyFile)
	if err != nil {
		s.logger.Warn("reading pinned hub host key", "path", s.cfg.HubHostKeyFile, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}

func sendFrame(w io.Writer, frame protocol.Frame) error {
	return protocol.Write(w, frame.Type, frame.Payload)
}
