// Package registry tracks agents currently connected to the hub, keyed by
// their session ID with hostname as a secondary lookup index (spec §4.4,
// resolved per SPEC_FULL.md §9: session-id keying, most-recent-wins on a
// hostname collision), grounded on original_source/launcher/src/client_registry.rs.
package registry

import (
	"fmt"
	"sync"
	"time"
)

// Sender is the minimal interface the registry needs to push a frame to a
// connected agent's control channel, implemented by the hub's per-agent
// session type.
type Sender interface {
	Send(frame any) error
}

// Agent is one connected agent's registry entry.
type Agent struct {
	SessionID     string
	Hostname      string
	Platform      string
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	Sender        Sender

	// Status mirrors the agent's most recently received StatusReport
	// (host system stats collected via gopsutil), cached here so an
	// operator Status query answers from local state instead of blocking
	// on a fresh round trip to the agent.
	StatusAt      time.Time
	UptimeSecs    uint64
	LoadPercent   uint64
	MemUsedBytes  uint64
	DiskFreeBytes uint64
}

// Registry is the hub's live set of connected agents.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Agent
	byHost   map[string]string // hostname -> session ID, most-recent-wins
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:   make(map[string]*Agent),
		byHost: make(map[string]string),
	}
}

// Register adds or replaces the entry for sessionID. On a hostname
// collision with a different, still-registered session, the new
// registration wins the hostname index; the older session remains
// reachable by session ID until it disconnects and calls Unregister.
func (r *Registry) Register(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[a.SessionID] = a
	r.byHost[a.Hostname] = a.SessionID
}

// Unregister removes sessionID's entry. If it currently owns its hostname's
// index entry, that index entry is cleared too; if a newer session already
// claimed the hostname, that claim is left untouched.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[sessionID]
	if !ok {
		return
	}
	delete(r.byID, sessionID)
	if r.byHost[a.Hostname] == sessionID {
		delete(r.byHost, a.Hostname)
	}
}

// Get returns the entry for sessionID.
func (r *Registry) Get(sessionID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[sessionID]
	return a, ok
}

// GetByHostname returns the most-recently-registered entry for hostname.
func (r *Registry) GetByHostname(hostname string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHost[hostname]
	if !ok {
		return nil, false
	}
	a, ok := r.byID[id]
	return a, ok
}

// UpdateHeartbeat bumps sessionID's LastHeartbeat to now. It is a no-op if
// the session is not registered (e.g. it disconnected mid-flight).
func (r *Registry) UpdateHeartbeat(sessionID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[sessionID]; ok {
		a.LastHeartbeat = now
	}
}

// UpdateStatus records sessionID's latest self-reported system stats.
// No-op if the session isn't registered.
func (r *Registry) UpdateStatus(sessionID string, now time.Time, uptimeSecs, loadPercent, memUsedBytes, diskFreeBytes uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[sessionID]
	if !ok {
		return
	}
	a.StatusAt = now
	a.UptimeSecs = uptimeSecs
	a.LoadPercent = loadPercent
	a.MemUsedBytes = memUsedBytes
	a.DiskFreeBytes = diskFreeBytes
}

// SendTo delivers frame to hostname's current session (the most recently
// registered one). hostname is compared exactly; glob patterns are not
// expanded here (Broadcast does pattern matching).
func (r *Registry) SendTo(hostname string, frame any) error {
	a, ok := r.GetByHostname(hostname)
	if !ok {
		return fmt.Errorf("registry: no agent registered for hostname %q", hostname)
	}
	return a.Sender.Send(frame)
}

// Broadcast delivers frame to every registered agent whose hostname matches
// one of patterns (or to all agents if patterns is empty), per spec §4.4's
// default push-to-all-connected-agents behavior.
func (r *Registry) Broadcast(frame any, patterns []string) []error {
	r.mu.RLock()
	targets := make([]*Agent, 0, len(r.byID))
	for _, a := range r.byID {
		if len(patterns) == 0 || matchesAny(a.Hostname, patterns) {
			targets = append(targets, a)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, a := range targets {
		if err := a.Sender.Send(frame); err != nil {
			errs = append(errs, fmt.Errorf("registry: sending to %s: %w", a.Hostname, err))
		}
	}
	return errs
}

// List returns a snapshot of every registered agent.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	return out
}

// Count returns the number of currently registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// StaleSessions returns the session IDs whose LastHeartbeat is older than
// timeout as of now. Per SPEC_FULL.md §9, the registry itself never evicts
// these; the caller (the hub's stale-agent sweep, gated by the operator
// config's stale_agent_timeout_secs) decides what to do with them.
func (r *Registry) StaleSessions(timeout time.Duration, now time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []string
	for id, a := range r.byID {
		if now.Sub(a.LastHeartbeat) > timeout {
			stale = append(stale, id)
		}
	}
	return stale
}
