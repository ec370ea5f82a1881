package transport

import (
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// DialConfig configures an agent's outbound SSH connection to the hub.
type DialConfig struct {
	Address        string
	User           string
	PrivateKeyPath string
	// HubHostKeyFingerprint pins the hub's expected host key (format
	// "SHA256:..."), matching ssh.FingerprintSHA256's output. Empty
	// disables pinning, accepting whatever host key the hub presents on
	// first connect (trust-on-first-use is the caller's responsibility to
	// enforce by persisting the observed fingerprint).
	HubHostKeyFingerprint string
	Timeout               time.Duration
}

// Dial connects to the hub over SSH, preferring an ssh-agent-backed key
// (so the agent never has the private key material itself) and falling
// back to loading PrivateKeyPath directly when no ssh-agent is reachable.
func Dial(cfg DialConfig) (*ssh.Client, error) {
	authMethods, err := authMethods(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: building auth methods: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback(cfg.HubHostKeyFingerprint),
		Timeout:         cfg.Timeout,
	}

	client, err := ssh.Dial("tcp", cfg.Address, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", cfg.Address, err)
	}
	return client, nil
}

func authMethods(privateKeyPath string) ([]ssh.AuthMethod, error) {
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentClient := agent.NewClient(conn)
			return []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)}, nil
		}
	}

	data, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", privateKeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", privateKeyPath, err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func hostKeyCallback(pinnedFingerprint string) ssh.HostKeyCallback {
	if pinnedFingerprint == "" {
		return ssh.InsecureIgnoreHostKey()
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		got := ssh.FingerprintSHA256(key)
		if got != pinnedFingerprint {
			return fmt.Errorf("transport: hub host key fingerprint mismatch: got %s, want %s", got, pinnedFingerprint)
		}
		return nil
	}
}
