package mux

import (
	"fmt"
	"sync"
	"time"
)

// TransferState is where a push is in its lifecycle.
type TransferState int

const (
	TransferPending TransferState = iota
	TransferInProgress
	TransferCompleted
)

// Transfer is one in-flight RsyncStart request, tracked from the moment
// the hub issues it until the agent's RsyncComplete (or TTL eviction)
// resolves it.
type Transfer struct {
	RequestID   string
	Hostname    string
	Destination string
	// SourcePath is the hub-local file the transfer diffs against; set by
	// the caller after Create since it's only known on the push path, not
	// on every transfer lookup.
	SourcePath string
	BlockSize  uint32
	// ExecuteCommand and friends carry a rule's optional post-sync command,
	// fired once RsyncComplete reports success. ExecuteCommand empty means
	// no post-sync command.
	ExecuteCommand    string
	ExecuteArgs       []string
	ExecuteEnv        map[string]string
	ExecuteWorkingDir string
	State             TransferState
	CreatedAt         time.Time
}

// Table is the hub's live set of in-flight transfers.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Transfer
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*Transfer)}
}

// Create registers a new pending transfer.
func (t *Table) Create(requestID, hostname, destination string, now time.Time) *Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := &Transfer{RequestID: requestID, Hostname: hostname, Destination: destination, State: TransferPending, CreatedAt: now}
	t.entries[requestID] = tr
	return tr
}

// Get returns the transfer for requestID.
func (t *Table) Get(requestID string) (*Transfer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.entries[requestID]
	return tr, ok
}

// MarkInProgress transitions requestID to in-progress once the agent opens
// its data channel.
func (t *Table) MarkInProgress(requestID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.entries[requestID]
	if !ok {
		return fmt.Errorf("mux: no transfer %q", requestID)
	}
	tr.State = TransferInProgress
	return nil
}

// Complete removes requestID from the table once a RsyncComplete arrives.
func (t *Table) Complete(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, requestID)
}

// SweepExpired removes and returns the IDs of every transfer older than
// ttl, per SPEC_FULL.md §9's orphan-transfer eviction decision.
func (t *Table) SweepExpired(ttl time.Duration, now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []string
	for id, tr := range t.entries {
		if now.Sub(tr.CreatedAt) > ttl {
			expired = append(expired, id)
			delete(t.entries, id)
		}
	}
	return expired
}

// Count returns the number of in-flight transfers.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
