package protocol

// MessageType identifies the payload carried by a Frame once it has been
// unwrapped from its family envelope. The constant ranges are fixed by the
// wire format and must not be renumbered.
type MessageType uint16

// agent -> hub control messages (0x0001-0x0007).
const (
	MsgRegister       MessageType = 0x0001
	MsgHeartbeat      MessageType = 0x0002
	MsgFileReceived   MessageType = 0x0003 // deprecated: superseded by MsgRsyncComplete
	MsgExecComplete   MessageType = 0x0004
	MsgStatusReport   MessageType = 0x0005
	MsgError          MessageType = 0x0006
	MsgDeleteComplete MessageType = 0x0007
)

// hub -> agent control messages (0x0010-0x0015).
const (
	MsgWelcome    MessageType = 0x0010
	MsgSyncFile   MessageType = 0x0011 // deprecated: superseded by MsgRsyncStart
	MsgExecute    MessageType = 0x0012
	MsgPing       MessageType = 0x0013
	MsgShutdown   MessageType = 0x0014
	MsgDeleteFile MessageType = 0x0015
)

// rsync-channel messages (0x0100-0x0103).
const (
	MsgRsyncStart     MessageType = 0x0100
	MsgRsyncComplete  MessageType = 0x0101
	MsgRsyncSignature MessageType = 0x0102
	MsgRsyncDelta     MessageType = 0x0103
)

// operator <-> hub messages (0x0300-0x0301).
const (
	MsgCommand  MessageType = 0x0300
	MsgResponse MessageType = 0x0301
)

func (t MessageType) String() string {
	switch t {
	case MsgRegister:
		return "Register"
	case MsgHeartbeat:
		return "Heartbeat"
	case MsgFileReceived:
		return "FileReceived"
	case MsgExecComplete:
		return "ExecComplete"
	case MsgStatusReport:
		return "StatusReport"
	case MsgError:
		return "Error"
	case MsgWelcome:
		return "Welcome"
	case MsgSyncFile:
		return "SyncFile"
	case MsgExecute:
		return "Execute"
	case MsgPing:
		return "Ping"
	case MsgShutdown:
		return "Shutdown"
	case MsgDeleteFile:
		return "DeleteFile"
	case MsgDeleteComplete:
		return "DeleteComplete"
	case MsgRsyncStart:
		return "RsyncStart"
	case MsgRsyncComplete:
		return "RsyncComplete"
	case MsgRsyncSignature:
		return "RsyncSignature"
	case MsgRsyncDelta:
		return "RsyncDelta"
	case MsgCommand:
		return "Command"
	case MsgResponse:
		return "Response"
	default:
		return "Unknown"
	}
}

// Family is the one-byte discriminator prefixed to every message family's
// serialized form, letting a control-channel reader classify the first
// message on a channel before any type is latched.
type Family byte

const (
	FamilyAgentToHub Family = 0x01
	FamilyHubToAgent Family = 0x02
	FamilyOperator   Family = 0x03
	FamilyRsync      Family = 0x04
)
