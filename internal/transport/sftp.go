package transport

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// UploadBootstrap copies localPath to remotePath over sftp on an arbitrary
// SSH target, per spec §6's "SFTP subsystem for bootstrap upload of the
// agent binary": the operator has no existing hubsync agent to push
// through yet, so getting the agent binary onto a new host is a plain SSH
// file copy to that host's own sshd, not a hub/agent protocol operation.
func UploadBootstrap(client *ssh.Client, localPath, remotePath string) error {
	sc, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("transport: opening sftp session: %w", err)
	}
	defer sc.Close()

	if err := sc.MkdirAll(filepath.Dir(remotePath)); err != nil {
		return fmt.Errorf("transport: creating remote directory for %s: %w", remotePath, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("transport: opening %s: %w", localPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("transport: statting %s: %w", localPath, err)
	}

	dst, err := sc.Create(remotePath)
	if err != nil {
		return fmt.Errorf("transport: creating remote file %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("transport: uploading %s: %w", remotePath, err)
	}
	if err := sc.Chmod(remotePath, info.Mode()); err != nil {
		return fmt.Errorf("transport: setting mode on %s: %w", remotePath, err)
	}
	return nil
}
