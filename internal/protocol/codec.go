package protocol

// AgentMessage is any message an agent sends on its control channel.
type AgentMessage interface {
	msgType() MessageType
	marshal() []byte
}

// HubMessage is any message the hub sends on an agent's control channel.
type HubMessage interface {
	msgType() MessageType
	marshal() []byte
}

// OperatorMessage is any message exchanged between an operator client and
// the hub.
type OperatorMessage interface {
	msgType() MessageType
	marshal() []byte
}

func (Register) msgType() MessageType       { return MsgRegister }
func (Heartbeat) msgType() MessageType      { return MsgHeartbeat }
func (RsyncComplete) msgType() MessageType  { return MsgRsyncComplete }
func (ExecComplete) msgType() MessageType   { return MsgExecComplete }
func (StatusReport) msgType() MessageType   { return MsgStatusReport }
func (Error) msgType() MessageType          { return MsgError }
func (DeleteComplete) msgType() MessageType { return MsgDeleteComplete }

func (Welcome) msgType() MessageType    { return MsgWelcome }
func (Ping) msgType() MessageType       { return MsgPing }
func (RsyncStart) msgType() MessageType { return MsgRsyncStart }
func (Execute) msgType() MessageType    { return MsgExecute }
func (Shutdown) msgType() MessageType   { return MsgShutdown }
func (DeleteFile) msgType() MessageType { return MsgDeleteFile }

func (Command) msgType() MessageType  { return MsgCommand }
func (Response) msgType() MessageType { return MsgResponse }

// EncodeAgentMessage wraps m in its family envelope and returns the Frame
// ready for protocol.Write.
func EncodeAgentMessage(m AgentMessage) Frame {
	return wrap(FamilyAgentToHub, m.msgType(), m.marshal())
}

// EncodeHubMessage wraps m in its family envelope.
func EncodeHubMessage(m HubMessage) Frame {
	return wrap(FamilyHubToAgent, m.msgType(), m.marshal())
}

// EncodeOperatorMessage wraps m in its family envelope.
func EncodeOperatorMessage(m OperatorMessage) Frame {
	return wrap(FamilyOperator, m.msgType(), m.marshal())
}

func wrap(family Family, msgType MessageType, payload []byte) Frame {
	out := make([]byte, 1+len(payload))
	out[0] = byte(family)
	copy(out[1:], payload)
	return Frame{Type: uint16(msgType), Payload: out}
}

// DecodeAgentMessage attempts to interpret f as an agent-family message. It
// returns (nil, false, nil) — not an error — when f's payload does not carry
// the agent-family discriminator, so callers can fall through to the next
// family's parser per spec §4.2's speculative classification.
func DecodeAgentMessage(f Frame) (AgentMessage, bool, error) {
	inner, ok := unwrap(f, FamilyAgentToHub)
	if !ok {
		return nil, false, nil
	}
	switch MessageType(f.Type) {
	case MsgRegister:
		m, err := unmarshalRegister(inner)
		return m, true, err
	case MsgHeartbeat:
		m, err := unmarshalHeartbeat(inner)
		return m, true, err
	case MsgRsyncComplete:
		m, err := unmarshalRsyncComplete(inner)
		return m, true, err
	case MsgExecComplete:
		m, err := unmarshalExecComplete(inner)
		return m, true, err
	case MsgStatusReport:
		m, err := unmarshalStatusReport(inner)
		return m, true, err
	case MsgError:
		m, err := unmarshalError(inner)
		return m, true, err
	case MsgDeleteComplete:
		m, err := unmarshalDeleteComplete(inner)
		return m, true, err
	default:
		return nil, true, errUnknownMessageType(MessageType(f.Type))
	}
}

// DecodeHubMessage attempts to interpret f as a hub-family message.
func DecodeHubMessage(f Frame) (HubMessage, bool, error) {
	inner, ok := unwrap(f, FamilyHubToAgent)
	if !ok {
		return nil, false, nil
	}
	switch MessageType(f.Type) {
	case MsgWelcome:
		m, err := unmarshalWelcome(inner)
		return m, true, err
	case MsgPing:
		m, err := unmarshalPing(inner)
		return m, true, err
	case MsgRsyncStart:
		m, err := unmarshalRsyncStart(inner)
		return m, true, err
	case MsgExecute:
		m, err := unmarshalExecute(inner)
		return m, true, err
	case MsgShutdown:
		m, err := unmarshalShutdown(inner)
		return m, true, err
	case MsgDeleteFile:
		m, err := unmarshalDeleteFile(inner)
		return m, true, err
	default:
		return nil, true, errUnknownMessageType(MessageType(f.Type))
	}
}

// DecodeOperatorMessage attempts to interpret f as an operator-family
// message.
func DecodeOperatorMessage(f Frame) (OperatorMessage, bool, error) {
	inner, ok := unwrap(f, FamilyOperator)
	if !ok {
		return nil, false, nil
	}
	switch MessageType(f.Type) {
	case MsgCommand:
		m, err := unmarshalCommand(inner)
		return m, true, err
	case MsgResponse:
		m, err := unmarshalResponse(inner)
		return m, true, err
	default:
		return nil, true, errUnknownMessageType(MessageType(f.Type))
	}
}

func unwrap(f Frame, want Family) ([]byte, bool) {
	if len(f.Payload) == 0 || Family(f.Payload[0]) != want {
		return nil, false
	}
	return f.Payload[1:], true
}

// ParseControlMessage classifies the first frame received on a hub-side
// control channel, whose family is not yet latched. Per spec §4.2 it tries
// the agent-message parser, then the operator-message parser, in that fixed
// order, returning whichever succeeds along with the family it matched.
//
// Once a channel's family is known, callers should use DecodeAgentMessage or
// DecodeOperatorMessage directly instead of re-running this classification.
func ParseControlMessage(f Frame) (family Family, msg any, err error) {
	if m, ok, err := DecodeAgentMessage(f); ok {
		return FamilyAgentToHub, m, err
	}
	if m, ok, err := DecodeOperatorMessage(f); ok {
		return FamilyOperator, m, err
	}
	return 0, nil, errUnknownMessageType(MessageType(f.Type))
}
