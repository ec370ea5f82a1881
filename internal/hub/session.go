package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/nishisan-dev/hubsync/internal/delta"
	"github.com/nishisan-dev/hubsync/internal/logging"
	"github.com/nishisan-dev/hubsync/internal/mux"
	"github.com/nishisan-dev/hubsync/internal/protocol"
	"github.com/nishisan-dev/hubsync/internal/registry"
	"github.com/nishisan-dev/hubsync/internal/transport"
)

// connSession is the per-SSH-connection state: at most one control channel,
// classified as either an agent or an operator on its first message, plus
// whatever data channels that agent opens for in-flight pushes.
type connSession struct {
	hub            *Hub
	sconn          *ssh.ServerConn
	agentSessionID string
	hostname       string
	logger         *slog.Logger
}

func newConnSession(h *Hub, sconn *ssh.ServerConn) *connSession {
	return &connSession{hub: h, sconn: sconn, logger: h.logger}
}

func (s *connSession) close() {
	if s.agentSessionID != "" {
		s.hub.registry.Unregister(s.agentSessionID)
		s.logger.Info("agent disconnected", "session_id", s.agentSessionID)
	}
}

func (s *connSession) handleChannel(ctx context.Context, newChannel ssh.NewChannel) {
	if newChannel.ChannelType() == "rsync-data" {
		s.handleDataChannel(ctx, newChannel)
		return
	}
	s.handleControlChannel(ctx, newChannel)
}

func (s *connSession) handleControlChannel(ctx context.Context, newChannel ssh.NewChannel) {
	ch, reqs, err := newChannel.Accept()
	if err != nil {
		s.logger.Warn("accepting control channel", "error", err)
		return
	}
	go ssh.DiscardRequests(reqs)
	defer ch.Close()

	var classified mux.Channel
	buf := protocol.NewBuffer()
	readBuf := make([]byte, 32*1024)

	for {
		n, rerr := ch.Read(readBuf)
		if n > 0 {
			buf.Append(readBuf[:n])
			for {
				frame, ok, perr := buf.TryParse()
				if perr != nil {
					s.logger.Warn("malformed frame on control channel", "error", perr)
					return
				}
				if !ok {
					break
				}
				s.dispatchControlFrame(ch, &classified, frame)
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				s.logger.Debug("control channel read ended", "error", rerr)
			}
			return
		}
	}
}

func (s *connSession) dispatchControlFrame(ch ssh.Channel, classified *mux.Channel, frame protocol.Frame) {
	if classified.Kind == mux.KindUnknown {
		msg, err := classified.Classify(frame)
		if err != nil {
			s.logger.Warn("classifying first control frame", "error", err)
			return
		}
		s.routeControlMessage(ch, classified.Kind, msg)
		return
	}

	switch classified.Kind {
	case mux.KindControlAgent:
		msg, ok, err := protocol.DecodeAgentMessage(frame)
		if err != nil || !ok {
			s.logger.Warn("decoding agent message", "error", err)
			return
		}
		s.routeControlMessage(ch, classified.Kind, msg)
	case mux.KindControlOperator:
		msg, ok, err := protocol.DecodeOperatorMessage(frame)
		if err != nil || !ok {
			s.logger.Warn("decoding operator message", "error", err)
			return
		}
		s.routeControlMessage(ch, classified.Kind, msg)
	}
}

func (s *connSession) routeControlMessage(ch ssh.Channel, kind mux.ChannelKind, msg any) {
	switch kind {
	case mux.KindControlAgent:
		s.handleAgentMessage(ch, msg)
	case mux.KindControlOperator:
		s.handleOperatorMessage(ch, msg)
	}
}

func (s *connSession) handleAgentMessage(ch ssh.Channel, msg any) {
	switch m := msg.(type) {
	case protocol.Register:
		now := time.Now()
		s.agentSessionID = uuid.NewString()
		s.hostname = m.Hostname
		s.hub.registry.Register(&registry.Agent{
			SessionID:     s.agentSessionID,
			Hostname:      m.Hostname,
			Platform:      m.Platform,
			ConnectedAt:   now,
			LastHeartbeat: now,
			Sender:        &channelSender{ch: ch},
		})
		s.logger.Info("agent registered", "hostname", m.Hostname, "session_id", s.agentSessionID)
		sendFrame(ch, protocol.EncodeHubMessage(protocol.Welcome{Message: "registered"}))
		s.hub.pushInitialSync(m.Hostname)

	case protocol.Heartbeat:
		s.hub.registry.UpdateHeartbeat(s.agentSessionID, time.Now())

	case protocol.RsyncComplete:
		tr, _ := s.hub.transfers.Get(m.RequestID)
		s.hub.transfers.Complete(m.RequestID)

		logger, closer, _, err := logging.NewTransferLogger(s.logger, s.hub.cfg.TransferLogDir, s.hostname, m.RequestID)
		if err != nil {
			logger = s.logger
		}
		if m.Success {
			logger.Info("rsync complete", "request_id", m.RequestID, "bytes", m.BytesTransferred, "hash", m.Hash)
		} else {
			logger.Error("rsync failed", "request_id", m.RequestID, "error", m.Error)
		}
		if closer != nil {
			closer.Close()
		}
		logging.RemoveTransferLog(s.hub.cfg.TransferLogDir, s.hostname, m.RequestID)

		if m.Success && tr != nil && tr.ExecuteCommand != "" {
			s.hub.triggerPostSyncExecute(s.hostname, tr.ExecuteCommand, tr.ExecuteArgs, tr.ExecuteEnv, tr.ExecuteWorkingDir)
		}

	case protocol.ExecComplete:
		s.logger.Info("exec complete", "request_id", m.RequestID, "exit_code", m.ExitCode)

	case protocol.StatusReport:
		s.hub.registry.UpdateStatus(s.agentSessionID, time.Now(), m.UptimeSecs, m.LoadPercent, m.MemUsedBytes, m.DiskFreeBytes)
		s.logger.Info("status report", "hostname", m.Hostname, "uptime_secs", m.UptimeSecs)

	case protocol.Error:
		s.logger.Warn("agent reported error", "session_id", s.agentSessionID, "message", m.Message)

	case protocol.DeleteComplete:
		if m.Success {
			s.logger.Info("mirror delete complete", "request_id", m.RequestID)
		} else {
			s.logger.Warn("mirror delete failed", "request_id", m.RequestID, "error", m.Error)
		}
	}
}

func (s *connSession) handleOperatorMessage(ch ssh.Channel, msg any) {
	cmd, ok := msg.(protocol.Command)
	if !ok {
		return
	}
	resp := s.hub.ExecuteCommand(cmd)
	sendFrame(ch, protocol.EncodeOperatorMessage(resp))
}

func (s *connSession) handleDataChannel(ctx context.Context, newChannel ssh.NewChannel) {
	requestID := string(newChannel.ExtraData())
	ch, reqs, err := newChannel.Accept()
	if err != nil {
		s.logger.Warn("accepting data channel", "error", err, "request_id", requestID)
		return
	}
	go ssh.DiscardRequests(reqs)
	defer ch.Close()

	transfer, ok := s.hub.transfers.Get(requestID)
	if !ok {
		s.logger.Warn("data channel for unknown transfer", "request_id", requestID)
		return
	}
	s.hub.transfers.MarkInProgress(requestID)

	frame, err := protocol.Read(ch)
	if err != nil || protocol.MessageType(frame.Type) != protocol.MsgRsyncSignature {
		s.logger.Warn("expected rsync signature frame", "error", err, "request_id", requestID)
		return
	}
	sigPayload := frame.Payload
	if s.hub.cfg.CompressTransfers {
		sigPayload, err = transport.DecompressPayload(sigPayload)
		if err != nil {
			s.logger.Warn("decompressing signature", "error", err, "request_id", requestID)
			return
		}
	}
	sig, err := delta.UnmarshalSignature(sigPayload)
	if err != nil {
		s.logger.Warn("decoding signature", "error", err, "request_id", requestID)
		return
	}

	src, err := openSource(transfer.SourcePath)
	if err != nil {
		s.logger.Warn("opening source file", "error", err, "request_id", requestID)
		return
	}
	defer src.Close()

	d, err := delta.GenerateDelta(src, sig)
	if err != nil {
		s.logger.Warn("generating delta", "error", err, "request_id", requestID)
		return
	}

	deltaPayload := d.Marshal()
	if s.hub.cfg.CompressTransfers {
		deltaPayload, err = transport.CompressPayload(deltaPayload)
		if err != nil {
			s.logger.Warn("compressing delta", "error", err, "request_id", requestID)
			return
		}
	}
	if err := protocol.Write(ch, uint16(protocol.MsgRsyncDelta), deltaPayload); err != nil {
		s.logger.Warn("writing delta frame", "error", err, "request_id", requestID)
	}
}

func sendFrame(w io.Writer, frame protocol.Frame) error {
	return protocol.Write(w, frame.Type, frame.Payload)
}

// channelSender adapts an ssh.Channel to registry.Sender, accepting any
// protocol.HubMessage.
type channelSender struct {
	ch ssh.Channel
}

func (c *channelSender) Send(frame any) error {
	m, ok := frame.(protocol.HubMessage)
	if !ok {
		return fmt.Errorf("hub: cannot send %T to an agent control channel", frame)
	}
	return sendFrame(c.ch, protocol.EncodeHubMessage(m))
}
