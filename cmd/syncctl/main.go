// Command syncctl is the operator CLI: it opens one SSH control channel to
// a hub, sends a single Command, prints the Response, and exits (spec
// §4.8's operator surface), grounded on wingthing's cobra-rooted cmd/wt
// layout generalized from its interactive tool commands to one-shot
// request/response subcommands.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/nishisan-dev/hubsync/internal/protocol"
	"github.com/nishisan-dev/hubsync/internal/transport"
)

var (
	hubAddress      string
	privateKey      string
	hostFingerprint string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "syncctl",
		Short: "operator CLI for a hubsync hub",
	}
	rootCmd.PersistentFlags().StringVar(&hubAddress, "hub", "localhost:2222", "hub address (host:port)")
	rootCmd.PersistentFlags().StringVar(&privateKey, "key", "", "path to operator private key")
	rootCmd.PersistentFlags().StringVar(&hostFingerprint, "hub-fingerprint", "", "pinned hub host key fingerprint (SHA256:...)")

	rootCmd.AddCommand(
		pingCmd(),
		listClientsCmd(),
		statusCmd(),
		syncFileCmd(),
		executeCmd(),
		shutdownCmd(),
		watchCmd(),
		unwatchCmd(),
		listWatchesCmd(),
		trustCmd(),
		bootstrapCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "check the hub is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(protocol.Command{Op: protocol.OpPing})
		},
	}
}

func listClientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-clients",
		Short: "list connected agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(protocol.Command{Op: protocol.OpListClients})
		},
	}
}

func statusCmd() *cobra.Command {
	var hostname string
	c := &cobra.Command{
		Use:   "status",
		Short: "hub status, or one agent's cached system stats with --hostname",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(protocol.Command{Op: protocol.OpStatus, Hostname: hostname})
		},
	}
	c.Flags().StringVar(&hostname, "hostname", "", "report one agent's status instead of the hub's own")
	return c
}

func syncFileCmd() *cobra.Command {
	var destination string
	var recursive bool
	var include, exclude, clients []string
	c := &cobra.Command{
		Use:   "sync-file <path>",
		Short: "push path to destination on matching agents immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(protocol.Command{
				Op: protocol.OpSyncFile, Path: args[0], Destination: destination,
				Recursive: recursive, Include: include, Exclude: exclude, Clients: clients,
			})
		},
	}
	c.Flags().StringVar(&destination, "destination", "", "destination path on the agent")
	c.Flags().BoolVar(&recursive, "recursive", false, "recurse into subdirectories")
	c.Flags().StringSliceVar(&include, "include", nil, "include glob patterns")
	c.Flags().StringSliceVar(&exclude, "exclude", nil, "exclude glob patterns")
	c.Flags().StringSliceVar(&clients, "clients", nil, "hostname glob patterns to restrict the push to")
	c.MarkFlagRequired("destination")
	return c
}

func executeCmd() *cobra.Command {
	var hostname string
	var clients []string
	var workingDir string
	var env []string
	c := &cobra.Command{
		Use:   "execute <binary> [args...]",
		Short: "run a command on matching agents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(protocol.Command{
				Op: protocol.OpExecute, Hostname: hostname, Clients: clients,
				Binary: args[0], Args: args[1:], WorkingDir: workingDir, Env: parseEnv(env),
			})
		},
	}
	c.Flags().StringVar(&hostname, "hostname", "", "single target hostname")
	c.Flags().StringSliceVar(&clients, "clients", nil, "hostname glob patterns (default: all connected agents)")
	c.Flags().StringVar(&workingDir, "working-dir", "", "working directory on the agent")
	c.Flags().StringArrayVar(&env, "env", nil, "KEY=VALUE environment variable, repeatable")
	return c
}

func shutdownCmd() *cobra.Command {
	var hostname string
	var clients []string
	c := &cobra.Command{
		Use:   "shutdown",
		Short: "ask matching agents to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(protocol.Command{Op: protocol.OpShutdown, Hostname: hostname, Clients: clients})
		},
	}
	c.Flags().StringVar(&hostname, "hostname", "", "single target hostname")
	c.Flags().StringSliceVar(&clients, "clients", nil, "hostname glob patterns (default: all connected agents)")
	return c
}

func watchCmd() *cobra.Command {
	var destination string
	var recursive bool
	var include, exclude, clients []string
	c := &cobra.Command{
		Use:   "watch <path>",
		Short: "start watching path and pushing changes to matching agents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(protocol.Command{
				Op: protocol.OpWatchDirectory, Path: args[0], Destination: destination,
				Recursive: recursive, Include: include, Exclude: exclude, Clients: clients,
			})
		},
	}
	c.Flags().StringVar(&destination, "destination", "", "destination path on target agents")
	c.Flags().BoolVar(&recursive, "recursive", false, "recurse into subdirectories")
	c.Flags().StringSliceVar(&include, "include", nil, "include glob patterns")
	c.Flags().StringSliceVar(&exclude, "exclude", nil, "exclude glob patterns")
	c.Flags().StringSliceVar(&clients, "clients", nil, "hostname glob patterns to restrict the push to")
	c.MarkFlagRequired("destination")
	return c
}

func unwatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unwatch <path>",
		Short: "stop watching path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(protocol.Command{Op: protocol.OpUnwatchDirectory, Path: args[0]})
		},
	}
}

func listWatchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-watches",
		Short: "list active watch rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(protocol.Command{Op: protocol.OpListWatches})
		},
	}
}

func bootstrapCmd() *cobra.Command {
	var sshUser, sshKey, remotePath string
	c := &cobra.Command{
		Use:   "bootstrap <host:port> <local-agent-binary>",
		Short: "upload the agent binary to a new host over sftp, before it has ever joined the hub",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := transport.Dial(transport.DialConfig{
				Address:        args[0],
				User:           sshUser,
				PrivateKeyPath: sshKey,
				Timeout:        15 * time.Second,
			})
			if err != nil {
				return fmt.Errorf("dialing %s: %w", args[0], err)
			}
			defer client.Close()

			if err := transport.UploadBootstrap(client, args[1], remotePath); err != nil {
				return err
			}
			fmt.Printf("uploaded %s to %s:%s\n", args[1], args[0], remotePath)
			return nil
		},
	}
	c.Flags().StringVar(&sshUser, "user", "root", "SSH user on the target host")
	c.Flags().StringVar(&sshKey, "ssh-key", "", "path to the SSH private key for the target host")
	c.Flags().StringVar(&remotePath, "remote-path", "/usr/local/bin/hubsync-agent", "destination path on the target host")
	return c
}

func trustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trust <base64-public-key>",
		Short: "print the SHA256 fingerprint of a hub host public key, for pinning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := transport.FingerprintFromBase64(args[0])
			if err != nil {
				return err
			}
			fmt.Println(fp)
			return nil
		},
	}
}

func parseEnv(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func sendAndPrint(cmd protocol.Command) error {
	resp, err := sendCommand(cmd)
	if err != nil {
		return err
	}
	printResponse(resp)
	if resp.Kind == protocol.RespError {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

func sendCommand(cmd protocol.Command) (protocol.Response, error) {
	client, err := transport.Dial(transport.DialConfig{
		Address:               hubAddress,
		User:                  "operator",
		PrivateKeyPath:        privateKey,
		HubHostKeyFingerprint: hostFingerprint,
		Timeout:               10 * time.Second,
	})
	if err != nil {
		return protocol.Response{}, fmt.Errorf("dialing hub: %w", err)
	}
	defer client.Close()

	ch, reqs, err := client.OpenChannel("session", nil)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("opening control channel: %w", err)
	}
	defer ch.Close()
	go ssh.DiscardRequests(reqs)

	frame := protocol.EncodeOperatorMessage(cmd)
	if err := protocol.Write(ch, frame.Type, frame.Payload); err != nil {
		return protocol.Response{}, fmt.Errorf("sending command: %w", err)
	}

	respFrame, err := protocol.Read(ch)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("reading response: %w", err)
	}
	msg, ok, err := protocol.DecodeOperatorMessage(respFrame)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("decoding response: %w", err)
	}
	if !ok {
		return protocol.Response{}, fmt.Errorf("unexpected response frame type %#x", respFrame.Type)
	}
	resp, ok := msg.(protocol.Response)
	if !ok {
		return protocol.Response{}, fmt.Errorf("expected Response, got %T", msg)
	}
	return resp, nil
}

func printResponse(resp protocol.Response) {
	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	for _, c := range resp.Clients {
		fmt.Printf("%s\tsession=%s\tplatform=%s\tconnected=%ds\tlast_heartbeat=%ds\n",
			c.Hostname, c.SessionID, c.Platform, c.ConnectedSecs, c.LastHeartbeatSecs)
	}
	for _, w := range resp.Watches {
		fmt.Printf("%s\trecursive=%v\tclients=%v\n", w.Path, w.Recursive, w.Clients)
	}
}
