package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nishisan-dev/hubsync/internal/config"
	"github.com/nishisan-dev/hubsync/internal/hub"
	"github.com/nishisan-dev/hubsync/internal/logging"
	"github.com/nishisan-dev/hubsync/internal/transport"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "hub",
		Short: "hubsync hub: accepts agent/operator SSH connections and pushes file changes",
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to .hubsync.toml (default: search upward from cwd)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		found, err := config.FindHubConfig(".")
		if err != nil {
			return fmt.Errorf("locating config: %w", err)
		}
		path = found
	}

	cfg, err := config.LoadHubConfig(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closer := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	defer closer.Close()

	srv, err := transport.NewServer(cfg.HostKeyPath, cfg.AuthorizedKeys)
	if err != nil {
		return fmt.Errorf("starting ssh server: %w", err)
	}
	if err := srv.Listen(cfg.Listen); err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}
	logger.Info("hub listening", "address", srv.Addr().String())

	h, err := hub.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing hub: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	return h.Run(ctx, srv)
}
