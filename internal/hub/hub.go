// Package hub implements the hub side of the protocol: accepting agent and
// operator SSH connections, keeping the agent registry and watch engine in
// sync, and executing operator commands (spec §4.4, §4.7-§4.9), grounded on
// nishisan-dev-n-backup's internal/server/server.go accept-loop structure,
// generalized from TLS to SSH per spec §6.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/ssh"

	"github.com/nishisan-dev/hubsync/internal/config"
	"github.com/nishisan-dev/hubsync/internal/logging"
	"github.com/nishisan-dev/hubsync/internal/mux"
	"github.com/nishisan-dev/hubsync/internal/registry"
	"github.com/nishisan-dev/hubsync/internal/transport"
	"github.com/nishisan-dev/hubsync/internal/watch"
)

// Hub is the live server-side state shared by every connection.
type Hub struct {
	cfg       config.HubConfig
	logger    *slog.Logger
	registry  *registry.Registry
	transfers *mux.Table
	watches   *watch.Engine
	rescan    *cron.Cron
	startedAt time.Time
}

// New builds a Hub from cfg, starting its watch engine and registering
// every declarative [[sync]] rule the config carries.
func New(cfg config.HubConfig, logger *slog.Logger) (*Hub, error) {
	engine, err := watch.New()
	if err != nil {
		return nil, fmt.Errorf("hub: starting watch engine: %w", err)
	}

	h := &Hub{
		cfg:       cfg,
		logger:    logger,
		registry:  registry.New(),
		transfers: mux.NewTable(),
		watches:   engine,
		startedAt: time.Now(),
	}

	for _, rule := range cfg.Sync {
		if err := h.watches.AddRule(toWatchRule(rule)); err != nil {
			return nil, fmt.Errorf("hub: registering sync rule %q: %w", rule.Name, err)
		}
	}

	if cfg.RescanIntervalSecs > 0 {
		h.rescan = cron.New()
		spec := fmt.Sprintf("@every %ds", cfg.RescanIntervalSecs)
		if _, err := h.rescan.AddFunc(spec, h.rescanAll); err != nil {
			return nil, fmt.Errorf("hub: scheduling rescan: %w", err)
		}
		h.rescan.Start()
	}

	return h, nil
}

// rescanAll re-enumerates every rule and re-pushes each file to its
// matching connected agents, catching up changes an agent's watch missed
// while disconnected (SPEC_FULL.md §9, beyond per-connect initial sync).
func (h *Hub) rescanAll() {
	for _, rule := range h.watches.ListRules() {
		files, err := watch.Enumerate(rule)
		if err != nil {
			h.logger.Warn("rescan: enumerating rule", "rule", rule.Name, "error", err)
			continue
		}
		for _, agent := range h.targetAgents(rule) {
			for _, absPath := range files {
				if err := h.pushFileTo(rule, agent.Hostname, absPath); err != nil {
					h.logger.Warn("rescan push failed", "hostname", agent.Hostname, "path", absPath, "error", err)
				}
			}
		}
	}
}

func toWatchRule(r config.SyncRule) *watch.Rule {
	rule := &watch.Rule{
		Name:        r.Name,
		Path:        r.Path,
		Destination: r.Destination,
		Recursive:   r.Recursive,
		Include:     r.Include,
		Exclude:     r.Exclude,
		Clients:     r.Clients,
		Mirror:      r.Mirror,
	}
	if r.Execute != nil {
		rule.Execute = &watch.ExecuteSpec{
			Command:    r.Execute.Command,
			Args:       r.Execute.Args,
			Env:        r.Execute.Env,
			WorkingDir: r.Execute.WorkingDir,
		}
	}
	return rule
}

// Run accepts connections on srv until ctx is cancelled, and runs the
// background watch-event pump and stale-transfer/stale-agent sweeps
// alongside it.
func (h *Hub) Run(ctx context.Context, srv *transport.Server) error {
	go h.pumpWatchEvents(ctx)
	go h.sweepLoop(ctx)

	go func() {
		for {
			sconn, chans, reqs, err := srv.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				h.logger.Warn("accept failed", "error", err)
				time.Sleep(time.Second)
				continue
			}
			go h.handleConnection(ctx, sconn, chans, reqs)
		}
	}()

	<-ctx.Done()
	if h.rescan != nil {
		h.rescan.Stop()
	}
	return srv.Close()
}

func (h *Hub) handleConnection(ctx context.Context, sconn *ssh.ServerConn, chans <-chan ssh.NewChannel, reqs <-chan *ssh.Request) {
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	sess := newConnSession(h, sconn)
	defer sess.close()

	for newChannel := range chans {
		go sess.handleChannel(ctx, newChannel)
	}
}

func (h *Hub) pumpWatchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.watches.Events():
			if !ok {
				return
			}
			h.onWatchEvent(ev)
		}
	}
}

func (h *Hub) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ttl := time.Duration(h.cfg.OrphanTransferTTLSecs) * time.Second
			for _, id := range h.transfers.SweepExpired(ttl, time.Now()) {
				h.logger.Warn("evicted orphaned transfer", "request_id", id)
				logging.RemoveTransferLog(h.cfg.TransferLogDir, "", id)
			}

			if h.cfg.StaleAgentTimeoutSecs > 0 {
				timeout := time.Duration(h.cfg.StaleAgentTimeoutSecs) * time.Second
				for _, id := range h.registry.StaleSessions(timeout, time.Now()) {
					h.logger.Warn("evicting stale agent", "session_id", id)
					h.registry.Unregister(id)
				}
			}
		}
	}
}
