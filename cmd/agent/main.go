package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nishisan-dev/hubsync/internal/agent"
	"github.com/nishisan-dev/hubsync/internal/config"
	"github.com/nishisan-dev/hubsync/internal/logging"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "agent",
		Short: "hubsync agent: connects to a hub over SSH and services rsync/exec pushes",
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/hubsync/agent.toml", "path to agent config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAgentConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closer := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	defer closer.Close()

	sess := agent.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	return sess.Run(ctx)
}
