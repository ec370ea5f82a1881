package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/nishisan-dev/hubsync/internal/protocol"
)

// errHubShutdown is returned by handleHubFrame when the hub sends Shutdown.
var errHubShutdown = errors.New("agent: hub requested shutdown")

// controlLoop reads frames off the control channel and services them,
// interleaved with the heartbeat and status-report tickers, until the
// channel closes, ctx is cancelled, or the hub sends Shutdown.
func (s *Session) controlLoop(ctx context.Context, client *ssh.Client, ch ssh.Channel) error {
	heartbeatInterval := time.Duration(s.cfg.HeartbeatIntervalSecs) * time.Second
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	status := time.NewTicker(heartbeatInterval * 4)
	defer status.Stop()

	frames := make(chan protocol.Frame)
	readErrs := make(chan error, 1)
	go func() {
		for {
			f, err := protocol.Read(ch)
			if err != nil {
				readErrs <- err
				return
			}
			frames <- f
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrs:
			return fmt.Errorf("agent: control channel closed: %w", err)

		case <-heartbeat.C:
			if err := sendFrame(ch, protocol.EncodeAgentMessage(protocol.Heartbeat{})); err != nil {
				return fmt.Errorf("agent: sending heartbeat: %w", err)
			}

		case <-status.C:
			if err := s.sendStatus(ch); err != nil {
				s.logger.Warn("sending status report", "error", err)
			}

		case f := <-frames:
			if err := s.handleHubFrame(ctx, client, ch, f); err != nil {
				if errors.Is(err, errHubShutdown) {
					return err
				}
				s.logger.Warn("handling hub frame", "error", err)
			}
		}
	}
}

func (s *Session) handleHubFrame(ctx context.Context, client *ssh.Client, ch ssh.Channel, frame protocol.Frame) error {
	msg, ok, err := protocol.DecodeHubMessage(frame)
	if err != nil {
		return fmt.Errorf("agent: decoding hub frame: %w", err)
	}
	if !ok {
		return fmt.Errorf("agent: frame type %#x is not a hub message", frame.Type)
	}

	switch m := msg.(type) {
	case protocol.Welcome:
		s.logger.Info("hub welcome", "message", m.Message)

	case protocol.Ping:
		return s.sendStatus(ch)

	case protocol.RsyncStart:
		go s.handleRsyncStart(client, ch, m)

	case protocol.Execute:
		go s.handleExecute(ctx, ch, m)

	case protocol.DeleteFile:
		go s.handleDeleteFile(ch, m)

	case protocol.Shutdown:
		return fmt.Errorf("%w: %s", errHubShutdown, m.Message)
	}
	return nil
}
