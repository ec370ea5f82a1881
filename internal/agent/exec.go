package agent

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/nishisan-dev/hubsync/internal/protocol"
)

// execTimeout bounds how long a hub-requested command may run, since a
// wedged subprocess would otherwise block this goroutine forever.
const execTimeout = 5 * time.Minute

func (s *Session) handleExecute(ctx context.Context, ch ssh.Channel, m protocol.Execute) {
	cctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, m.Binary, m.Args...)
	if m.WorkingDir != "" {
		cmd.Dir = m.WorkingDir
	}
	if len(m.Env) > 0 {
		env := os.Environ()
		for k, v := range m.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	complete := protocol.ExecComplete{RequestID: m.RequestID}
	runErr := cmd.Run()
	complete.Stdout = stdout.String()
	complete.Stderr = stderr.String()

	switch e := runErr.(type) {
	case nil:
		complete.ExitCode = 0
	case *exec.ExitError:
		complete.ExitCode = int32(e.ExitCode())
	default:
		complete.ExitCode = -1
		complete.Stderr += "\n" + runErr.Error()
	}

	if err := sendFrame(ch, protocol.EncodeAgentMessage(complete)); err != nil {
		s.logger.Warn("sending exec complete", "request_id", m.RequestID, "error", err)
	}
}
