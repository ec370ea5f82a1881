// Package mux implements the hub-side channel state machine (spec §4.2) and
// the in-flight transfer-request table (spec §4.6, §9) that correlates a
// RsyncStart with the data channel and RsyncComplete that eventually
// resolve it.
package mux

import (
	"fmt"

	"github.com/nishisan-dev/hubsync/internal/protocol"
)

// ChannelKind classifies one SSH channel opened by an agent or operator.
type ChannelKind int

const (
	// KindUnknown is a channel whose first message hasn't arrived yet.
	KindUnknown ChannelKind = iota
	// KindControlAgent is a control channel latched to the agent family.
	KindControlAgent
	// KindControlOperator is a control channel latched to the operator family.
	KindControlOperator
	// KindData is a channel dedicated to one rsync signature/delta exchange.
	KindData
)

func (k ChannelKind) String() string {
	switch k {
	case KindControlAgent:
		return "control-agent"
	case KindControlOperator:
		return "control-operator"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Channel tracks one SSH channel's classification as it moves from Unknown
// to a latched kind on its first message.
type Channel struct {
	Kind ChannelKind
}

// Classify inspects the first frame seen on an Unknown channel and latches
// Kind to whichever family the frame belongs to, per spec §4.2's
// speculative-parse-then-latch rule: try the agent-message parser, then the
// operator-command parser, in that fixed order.
//
// Once latched, callers should decode subsequent frames directly with
// protocol.DecodeAgentMessage or protocol.DecodeOperatorMessage rather than
// calling Classify again.
func (c *Channel) Classify(frame protocol.Frame) (any, error) {
	if c.Kind != KindUnknown {
		return nil, fmt.Errorf("mux: channel already classified as %s", c.Kind)
	}

	family, msg, err := protocol.ParseControlMessage(frame)
	if err != nil {
		return nil, fmt.Errorf("mux: classifying first frame: %w", err)
	}

	switch family {
	case protocol.FamilyAgentToHub:
		c.Kind = KindControlAgent
	case protocol.FamilyOperator:
		c.Kind = KindControlOperator
	default:
		return nil, fmt.Errorf("mux: unexpected family %v on control channel", family)
	}
	return msg, nil
}

// MarkData latches a newly opened channel as a dedicated rsync data
// channel; these are opened deliberately by the agent in response to a
// RsyncStart and never need speculative classification.
func (c *Channel) MarkData() {
	c.Kind = KindData
}
