package hub

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nishisan-dev/hubsync/internal/protocol"
	"github.com/nishisan-dev/hubsync/internal/registry"
	"github.com/nishisan-dev/hubsync/internal/watch"
)

// ExecuteCommand runs one operator Command (spec §4.8-§4.9) against the
// hub's live registry and watch engine, returning the Response to send
// back over the operator's control channel.
func (h *Hub) ExecuteCommand(cmd protocol.Command) protocol.Response {
	switch cmd.Op {
	case protocol.OpPing:
		return protocol.Response{Kind: protocol.RespSuccess, Message: "pong"}

	case protocol.OpListClients:
		return h.listClients()

	case protocol.OpStatus:
		return h.status(cmd)

	case protocol.OpSyncFile:
		return h.syncFile(cmd)

	case protocol.OpExecute:
		return h.executeOnAgents(cmd)

	case protocol.OpShutdown:
		return h.shutdownAgents(cmd)

	case protocol.OpWatchDirectory:
		return h.watchDirectory(cmd)

	case protocol.OpUnwatchDirectory:
		return h.unwatchDirectory(cmd)

	case protocol.OpListWatches:
		return h.listWatches()

	default:
		return protocol.Response{Kind: protocol.RespError, Message: fmt.Sprintf("unknown command %q", cmd.Op)}
	}
}

func (h *Hub) listClients() protocol.Response {
	now := time.Now()
	var clients []protocol.ClientInfo
	for _, a := range h.registry.List() {
		clients = append(clients, protocol.ClientInfo{
			Hostname:          a.Hostname,
			SessionID:         a.SessionID,
			Platform:          a.Platform,
			ConnectedSecs:     uint64(now.Sub(a.ConnectedAt).Seconds()),
			LastHeartbeatSecs: uint64(now.Sub(a.LastHeartbeat).Seconds()),
		})
	}
	return protocol.Response{Kind: protocol.RespClientList, Clients: clients}
}

// status reports either the hub's own uptime and connected-agent count, or,
// when cmd.Hostname names a connected agent, that agent's most recently
// cached StatusReport (gopsutil load/mem/disk stats) rather than blocking
// the operator's reply on a fresh round trip to the agent (SPEC_FULL.md §9).
func (h *Hub) status(cmd protocol.Command) protocol.Response {
	if cmd.Hostname == "" {
		return protocol.Response{
			Kind:       protocol.RespStatus,
			Message:    fmt.Sprintf("%d agents connected", h.registry.Count()),
			UptimeSecs: uint64(time.Since(h.startedAt).Seconds()),
		}
	}

	agent, ok := h.registry.GetByHostname(cmd.Hostname)
	if !ok {
		return protocol.Response{Kind: protocol.RespError, Message: fmt.Sprintf("no agent registered for hostname %q", cmd.Hostname)}
	}
	return protocol.Response{
		Kind:       protocol.RespStatus,
		Hostname:   agent.Hostname,
		Message:    fmt.Sprintf("load=%d%% mem_used=%dB disk_free=%dB", agent.LoadPercent, agent.MemUsedBytes, agent.DiskFreeBytes),
		UptimeSecs: agent.UptimeSecs,
	}
}

func (h *Hub) syncFile(cmd protocol.Command) protocol.Response {
	rule := &watch.Rule{
		Name:        "adhoc-" + uuid.NewString(),
		Path:        cmd.Path,
		Destination: cmd.Destination,
		Recursive:   cmd.Recursive,
		Include:     cmd.Include,
		Exclude:     cmd.Exclude,
		Clients:     cmd.Clients,
	}
	files, err := watch.Enumerate(rule)
	if err != nil {
		return protocol.Response{Kind: protocol.RespError, Message: err.Error()}
	}

	var errs []string
	pushed := 0
	for _, agent := range h.targetAgents(rule) {
		for _, absPath := range files {
			if err := h.pushFileTo(rule, agent.Hostname, absPath); err != nil {
				errs = append(errs, err.Error())
				continue
			}
			pushed++
		}
	}
	if len(errs) > 0 {
		return protocol.Response{Kind: protocol.RespError, Message: fmt.Sprintf("%d pushed, errors: %v", pushed, errs)}
	}
	return protocol.Response{Kind: protocol.RespSuccess, Message: fmt.Sprintf("%d files pushed", pushed)}
}

func (h *Hub) executeOnAgents(cmd protocol.Command) protocol.Response {
	targets := h.commandTargets(cmd)
	if len(targets) == 0 {
		return protocol.Response{Kind: protocol.RespError, Message: "no matching agents"}
	}
	for _, a := range targets {
		err := a.Sender.Send(protocol.Execute{
			RequestID:  uuid.NewString(),
			Binary:     cmd.Binary,
			Args:       cmd.Args,
			Env:        cmd.Env,
			WorkingDir: cmd.WorkingDir,
		})
		if err != nil {
			h.logger.Warn("execute command failed to send", "hostname", a.Hostname, "error", err)
		}
	}
	return protocol.Response{Kind: protocol.RespSuccess, Message: fmt.Sprintf("execute sent to %d agents", len(targets))}
}

func (h *Hub) shutdownAgents(cmd protocol.Command) protocol.Response {
	targets := h.commandTargets(cmd)
	for _, a := range targets {
		if err := a.Sender.Send(protocol.Shutdown{Message: "shutdown requested by operator"}); err != nil {
			h.logger.Warn("shutdown command failed to send", "hostname", a.Hostname, "error", err)
		}
	}
	return protocol.Response{Kind: protocol.RespSuccess, Message: fmt.Sprintf("shutdown sent to %d agents", len(targets))}
}

func (h *Hub) watchDirectory(cmd protocol.Command) protocol.Response {
	rule := &watch.Rule{
		Name:        cmd.Path,
		Path:        cmd.Path,
		Destination: cmd.Destination,
		Recursive:   cmd.Recursive,
		Include:     cmd.Include,
		Exclude:     cmd.Exclude,
		Clients:     cmd.Clients,
	}
	if err := h.watches.AddRule(rule); err != nil {
		return protocol.Response{Kind: protocol.RespError, Message: err.Error()}
	}

	go func() {
		for _, agent := range h.targetAgents(rule) {
			files, err := watch.Enumerate(rule)
			if err != nil {
				h.logger.Warn("enumerating new watch", "path", rule.Path, "error", err)
				return
			}
			for _, absPath := range files {
				if err := h.pushFileTo(rule, agent.Hostname, absPath); err != nil {
					h.logger.Warn("initial push for new watch failed", "hostname", agent.Hostname, "path", absPath, "error", err)
				}
			}
		}
	}()

	return protocol.Response{Kind: protocol.RespSuccess, Message: fmt.Sprintf("watching %s", cmd.Path)}
}

func (h *Hub) unwatchDirectory(cmd protocol.Command) protocol.Response {
	if err := h.watches.RemoveRule(cmd.Path); err != nil {
		return protocol.Response{Kind: protocol.RespError, Message: err.Error()}
	}
	return protocol.Response{Kind: protocol.RespSuccess, Message: fmt.Sprintf("stopped watching %s", cmd.Path)}
}

func (h *Hub) listWatches() protocol.Response {
	var watches []protocol.WatchInfo
	for _, r := range h.watches.ListRules() {
		watches = append(watches, protocol.WatchInfo{
			Path:      r.Path,
			Recursive: r.Recursive,
			Include:   r.Include,
			Exclude:   r.Exclude,
			Clients:   r.Clients,
		})
	}
	return protocol.Response{Kind: protocol.RespWatchList, Watches: watches}
}

func (h *Hub) commandTargets(cmd protocol.Command) []*registry.Agent {
	rule := &watch.Rule{Clients: cmd.Clients}
	if cmd.Hostname != "" {
		rule.Clients = append(rule.Clients, cmd.Hostname)
	}
	return h.targetAgents(rule)
}
