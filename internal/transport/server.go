// Package transport provides the SSH listener the hub accepts agent and
// operator connections on, the SSH dialer agents use to reach the hub, an
// sftp-based agent-binary bootstrap uploader, and the zstd payload
// compression used for rsync signature/delta frames. golang.org/x/crypto/ssh
// and github.com/pkg/sftp are the two external interfaces spec §6 names as
// "consumed, not specified"; used directly rather than grounded on any
// example repo (neither appears in the pack).
package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Server listens for incoming SSH connections from agents and operator
// clients and authenticates them against an authorized_keys file.
type Server struct {
	listener net.Listener
	config   *ssh.ServerConfig
}

// NewServer generates or loads a host key and prepares a listener-ready
// ssh.ServerConfig. When hostKeyPath is empty the hub runs with a fresh
// ephemeral ed25519 host key for the process lifetime (fine for a single
// long-lived hub process; operators wanting a stable host key across
// restarts set hostKeyPath).
func NewServer(hostKeyPath, authorizedKeysPath string) (*Server, error) {
	signer, err := loadOrGenerateHostKey(hostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: host key: %w", err)
	}

	authorized, err := loadAuthorizedKeys(authorizedKeysPath)
	if err != nil {
		return nil, fmt.Errorf("transport: authorized_keys: %w", err)
	}

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			fp := ssh.FingerprintSHA256(key)
			if _, ok := authorized[fp]; !ok {
				return nil, fmt.Errorf("transport: unrecognized public key %s for user %q", fp, conn.User())
			}
			return &ssh.Permissions{Extensions: map[string]string{"fingerprint": fp}}, nil
		},
	}
	config.AddHostKey(signer)

	return &Server{config: config}, nil
}

// Listen binds addr and blocks future Accept calls on it.
func (s *Server) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listening on %s: %w", addr, err)
	}
	s.listener = l
	return nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close shuts down the listener.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Accept blocks for the next incoming TCP connection and completes its SSH
// handshake, returning the resulting connection and its channel/request
// streams for the caller to multiplex.
func (s *Server) Accept() (*ssh.ServerConn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	nc, err := s.listener.Accept()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transport: accept: %w", err)
	}
	sconn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		nc.Close()
		return nil, nil, nil, fmt.Errorf("transport: ssh handshake: %w", err)
	}
	return sconn, chans, reqs, nil
}

func loadOrGenerateHostKey(path string) (ssh.Signer, error) {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return ssh.ParsePrivateKey(data)
		}
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral ed25519 host key: %w", err)
	}
	return ssh.NewSignerFromKey(priv)
}

// loadAuthorizedKeys parses an authorized_keys-formatted file into a set of
// SHA-256 fingerprints.
func loadAuthorizedKeys(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	fingerprints := make(map[string]struct{})
	rest := data
	for len(rest) > 0 {
		var pubKey ssh.PublicKey
		pubKey, _, _, rest, err = ssh.ParseAuthorizedKey(rest)
		if err != nil {
			break
		}
		fingerprints[ssh.FingerprintSHA256(pubKey)] = struct{}{}
	}
	if len(fingerprints) == 0 {
		return nil, fmt.Errorf("%s contains no parsable public keys", path)
	}
	return fingerprints, nil
}

// FingerprintFromBase64 computes the SHA-256 fingerprint of a raw
// base64-encoded ed25519 public key blob, used by the syncctl
// "trust hub key" helper without needing a full authorized_keys file.
func FingerprintFromBase64(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(sum[:]), nil
}
