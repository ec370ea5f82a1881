package hub

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nishisan-dev/hubsync/internal/delta"
	"github.com/nishisan-dev/hubsync/internal/protocol"
	"github.com/nishisan-dev/hubsync/internal/registry"
	"github.com/nishisan-dev/hubsync/internal/watch"
)

func openSource(path string) (*os.File, error) {
	return os.Open(path)
}

// pushInitialSync enumerates every file a newly-registered hostname is
// eligible for under the hub's configured rules and pushes each one, so an
// agent that (re)connects catches up on everything it missed, not just
// subsequent live changes.
func (h *Hub) pushInitialSync(hostname string) {
	for _, rule := range h.watches.ListRules() {
		if len(rule.Clients) > 0 && !hostnameMatchesRule(hostname, rule) {
			continue
		}
		files, err := watch.Enumerate(rule)
		if err != nil {
			h.logger.Warn("enumerating rule for initial sync", "rule", rule.Name, "error", err)
			continue
		}
		for _, absPath := range files {
			if err := h.pushFileTo(rule, hostname, absPath); err != nil {
				h.logger.Warn("initial sync push failed", "rule", rule.Name, "path", absPath, "error", err)
			}
		}
	}
}

func hostnameMatchesRule(hostname string, rule *watch.Rule) bool {
	for _, pattern := range rule.Clients {
		if matched, _ := filepath.Match(pattern, hostname); matched {
			return true
		}
	}
	return false
}

// onWatchEvent reacts to one debounced filesystem change by pushing it to
// every matching connected agent (spec §4.5/§4.7).
func (h *Hub) onWatchEvent(ev watch.ChangeEvent) {
	if ev.Removed {
		if ev.Rule.Mirror {
			h.mirrorDelete(ev)
		}
		return
	}

	targets := h.targetAgents(ev.Rule)
	if len(targets) == 0 {
		return
	}
	for _, agent := range targets {
		if err := h.pushFileTo(ev.Rule, agent.Hostname, ev.AbsPath); err != nil {
			h.logger.Warn("push failed", "hostname", agent.Hostname, "path", ev.AbsPath, "error", err)
		}
	}
}

// mirrorDelete propagates a source-side removal under a Mirror rule to
// every matching agent, asking each to remove its copy of the same relative
// path (SPEC_FULL.md's supplemented mirror feature).
func (h *Hub) mirrorDelete(ev watch.ChangeEvent) {
	targets := h.targetAgents(ev.Rule)
	if len(targets) == 0 {
		return
	}
	destination := filepath.Join(ev.Rule.Destination, ev.RelPath)
	for _, agent := range targets {
		err := agent.Sender.Send(protocol.DeleteFile{
			RequestID:   uuid.NewString(),
			Destination: destination,
		})
		if err != nil {
			h.logger.Warn("mirror delete failed to send", "hostname", agent.Hostname, "path", destination, "error", err)
		}
	}
}

func (h *Hub) targetAgents(rule *watch.Rule) []*registry.Agent {
	if len(rule.Clients) == 0 {
		return h.registry.List()
	}
	var out []*registry.Agent
	for _, a := range h.registry.List() {
		if hostnameMatchesRule(a.Hostname, rule) {
			out = append(out, a)
		}
	}
	return out
}

// pushFileTo issues one RsyncStart for absPath against hostname's agent,
// recording a Transfer so the eventual RsyncComplete (and the data channel
// the agent opens in between) can be correlated back to this push.
func (h *Hub) pushFileTo(rule *watch.Rule, hostname, absPath string) error {
	agent, ok := h.registry.GetByHostname(hostname)
	if !ok {
		return fmt.Errorf("hub: no agent registered for hostname %q", hostname)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("hub: stat %s: %w", absPath, err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("hub: opening %s: %w", absPath, err)
	}
	defer f.Close()

	contentHash, err := delta.Hash(f)
	if err != nil {
		return fmt.Errorf("hub: hashing %s: %w", absPath, err)
	}

	rel, err := filepath.Rel(rule.Path, absPath)
	if err != nil {
		return fmt.Errorf("hub: computing relative path for %s: %w", absPath, err)
	}
	destination := filepath.Join(rule.Destination, rel)

	requestID := uuid.NewString()
	tr := h.transfers.Create(requestID, hostname, destination, time.Now())
	tr.SourcePath = absPath
	tr.BlockSize = delta.ChooseBlockSize(info.Size())
	if rule.Execute != nil {
		tr.ExecuteCommand = rule.Execute.Command
		tr.ExecuteArgs = rule.Execute.Args
		tr.ExecuteEnv = rule.Execute.Env
		tr.ExecuteWorkingDir = rule.Execute.WorkingDir
	}

	return agent.Sender.Send(protocol.RsyncStart{
		RequestID:   requestID,
		Destination: destination,
		ContentHash: contentHash,
		ModTime:     info.ModTime().Unix(),
		BlockSize:   tr.BlockSize,
	})
}

// triggerPostSyncExecute fires a rule's configured post-sync command on the
// agent that just finished a successful transfer.
func (h *Hub) triggerPostSyncExecute(hostname, command string, args []string, env map[string]string, workingDir string) {
	agent, ok := h.registry.GetByHostname(hostname)
	if !ok {
		return
	}
	err := agent.Sender.Send(protocol.Execute{
		RequestID:  uuid.NewString(),
		Binary:     command,
		Args:       args,
		Env:        env,
		WorkingDir: workingDir,
	})
	if err != nil {
		h.logger.Warn("post-sync execute failed to send", "hostname", hostname, "error", err)
	}
}
