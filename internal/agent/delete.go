package agent

import (
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/nishisan-dev/hubsync/internal/protocol"
)

// handleDeleteFile removes Destination, acknowledging a Mirror-mode rule's
// source-side removal. A missing destination is not an error: the agent
// may have never received the file, or a previous delete already ran.
func (s *Session) handleDeleteFile(ch ssh.Channel, m protocol.DeleteFile) {
	complete := protocol.DeleteComplete{RequestID: m.RequestID, Success: true}

	if err := os.Remove(m.Destination); err != nil && !os.IsNotExist(err) {
		complete.Success = false
		complete.Error = err.Error()
		s.logger.Warn("deleting mirrored file", "request_id", m.RequestID, "destination", m.Destination, "error", err)
	}

	if err := sendFrame(ch, protocol.EncodeAgentMessage(complete)); err != nil {
		s.logger.Warn("sending delete complete", "request_id", m.RequestID, "error", err)
	}
}
