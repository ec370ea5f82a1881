package protocol

import "fmt"

// --- agent -> hub control messages -----------------------------------------

// Register is sent once, immediately after a new connection's control
// channel opens, to announce the agent to the hub.
type Register struct {
	Hostname string
	Platform string
}

func (m Register) marshal() []byte {
	var e encoder
	e.string(m.Hostname)
	e.string(m.Platform)
	return e.bytesOut()
}

func unmarshalRegister(data []byte) (Register, error) {
	d := newDecoder(data)
	hostname, err := d.string()
	if err != nil {
		return Register{}, err
	}
	platform, err := d.string()
	if err != nil {
		return Register{}, err
	}
	return Register{Hostname: hostname, Platform: platform}, nil
}

// Heartbeat carries no payload; its arrival alone bumps the registry's
// last-heartbeat time.
type Heartbeat struct{}

func (m Heartbeat) marshal() []byte { return nil }

func unmarshalHeartbeat(data []byte) (Heartbeat, error) { return Heartbeat{}, nil }

// RsyncComplete reports the outcome of one agent-side delta-transfer apply.
type RsyncComplete struct {
	RequestID        string
	Success          bool
	BytesTransferred uint64
	Hash             string
	Error            string
}

func (m RsyncComplete) marshal() []byte {
	var e encoder
	e.string(m.RequestID)
	e.bool(m.Success)
	e.uint64(m.BytesTransferred)
	e.string(m.Hash)
	e.string(m.Error)
	return e.bytesOut()
}

func unmarshalRsyncComplete(data []byte) (RsyncComplete, error) {
	d := newDecoder(data)
	requestID, err := d.string()
	if err != nil {
		return RsyncComplete{}, err
	}
	success, err := d.bool()
	if err != nil {
		return RsyncComplete{}, err
	}
	bytesTransferred, err := d.uint64()
	if err != nil {
		return RsyncComplete{}, err
	}
	hash, err := d.string()
	if err != nil {
		return RsyncComplete{}, err
	}
	errMsg, err := d.string()
	if err != nil {
		return RsyncComplete{}, err
	}
	return RsyncComplete{
		RequestID:        requestID,
		Success:          success,
		BytesTransferred: bytesTransferred,
		Hash:             hash,
		Error:            errMsg,
	}, nil
}

// ExecComplete reports the outcome of an agent-side Execute.
type ExecComplete struct {
	RequestID string
	ExitCode  int32
	Stdout    string
	Stderr    string
}

func (m ExecComplete) marshal() []byte {
	var e encoder
	e.string(m.RequestID)
	e.uint32(uint32(m.ExitCode))
	e.string(m.Stdout)
	e.string(m.Stderr)
	return e.bytesOut()
}

func unmarshalExecComplete(data []byte) (ExecComplete, error) {
	d := newDecoder(data)
	requestID, err := d.string()
	if err != nil {
		return ExecComplete{}, err
	}
	exitCode, err := d.uint32()
	if err != nil {
		return ExecComplete{}, err
	}
	stdout, err := d.string()
	if err != nil {
		return ExecComplete{}, err
	}
	stderr, err := d.string()
	if err != nil {
		return ExecComplete{}, err
	}
	return ExecComplete{RequestID: requestID, ExitCode: int32(exitCode), Stdout: stdout, Stderr: stderr}, nil
}

// DeleteComplete reports the outcome of an agent-side DeleteFile.
type DeleteComplete struct {
	RequestID string
	Success   bool
	Error     string
}

func (m DeleteComplete) marshal() []byte {
	var e encoder
	e.string(m.RequestID)
	e.bool(m.Success)
	e.string(m.Error)
	return e.bytesOut()
}

func unmarshalDeleteComplete(data []byte) (DeleteComplete, error) {
	d := newDecoder(data)
	requestID, err := d.string()
	if err != nil {
		return DeleteComplete{}, err
	}
	success, err := d.bool()
	if err != nil {
		return DeleteComplete{}, err
	}
	errMsg, err := d.string()
	if err != nil {
		return DeleteComplete{}, err
	}
	return DeleteComplete{RequestID: requestID, Success: success, Error: errMsg}, nil
}

// StatusReport is the agent's reply to Ping, and optionally its self-reported
// system stats (gopsutil-sourced on the agent side).
type StatusReport struct {
	RequestID    string
	Hostname     string
	UptimeSecs   uint64
	LoadPercent  uint64 // 0-100, coarse CPU load; 0 if unavailable
	MemUsedBytes uint64
	DiskFreeBytes uint64
}

func (m StatusReport) marshal() []byte {
	var e encoder
	e.string(m.RequestID)
	e.string(m.Hostname)
	e.uint64(m.UptimeSecs)
	e.uint64(m.LoadPercent)
	e.uint64(m.MemUsedBytes)
	e.uint64(m.DiskFreeBytes)
	return e.bytesOut()
}

func unmarshalStatusReport(data []byte) (StatusReport, error) {
	d := newDecoder(data)
	requestID, err := d.string()
	if err != nil {
		return StatusReport{}, err
	}
	hostname, err := d.string()
	if err != nil {
		return StatusReport{}, err
	}
	uptime, err := d.uint64()
	if err != nil {
		return StatusReport{}, err
	}
	load, err := d.uint64()
	if err != nil {
		return StatusReport{}, err
	}
	mem, err := d.uint64()
	if err != nil {
		return StatusReport{}, err
	}
	disk, err := d.uint64()
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		RequestID: requestID, Hostname: hostname, UptimeSecs: uptime,
		LoadPercent: load, MemUsedBytes: mem, DiskFreeBytes: disk,
	}, nil
}

// Error reports an agent-side failure that isn't tied to a specific request.
type Error struct {
	Message string
}

func (m Error) marshal() []byte {
	var e encoder
	e.string(m.Message)
	return e.bytesOut()
}

func unmarshalError(data []byte) (Error, error) {
	d := newDecoder(data)
	msg, err := d.string()
	if err != nil {
		return Error{}, err
	}
	return Error{Message: msg}, nil
}

// --- hub -> agent control messages ------------------------------------------

// Welcome acknowledges a successful Register.
type Welcome struct {
	Message string
}

func (m Welcome) marshal() []byte {
	var e encoder
	e.string(m.Message)
	return e.bytesOut()
}

func unmarshalWelcome(data []byte) (Welcome, error) {
	d := newDecoder(data)
	msg, err := d.string()
	if err != nil {
		return Welcome{}, err
	}
	return Welcome{Message: msg}, nil
}

// Ping asks the agent to report its status.
type Ping struct {
	RequestID string
}

func (m Ping) marshal() []byte {
	var e encoder
	e.string(m.RequestID)
	return e.bytesOut()
}

func unmarshalPing(data []byte) (Ping, error) {
	d := newDecoder(data)
	id, err := d.string()
	if err != nil {
		return Ping{}, err
	}
	return Ping{RequestID: id}, nil
}

// RsyncStart announces a pending push; the agent replies by opening a data
// channel and performing the exchange described in spec §4.6.
type RsyncStart struct {
	RequestID   string
	Destination string
	ContentHash string
	ModTime     int64
	BlockSize   uint32
}

func (m RsyncStart) marshal() []byte {
	var e encoder
	e.string(m.RequestID)
	e.string(m.Destination)
	e.string(m.ContentHash)
	e.uint64(uint64(m.ModTime))
	e.uint32(m.BlockSize)
	return e.bytesOut()
}

func unmarshalRsyncStart(data []byte) (RsyncStart, error) {
	d := newDecoder(data)
	requestID, err := d.string()
	if err != nil {
		return RsyncStart{}, err
	}
	destination, err := d.string()
	if err != nil {
		return RsyncStart{}, err
	}
	hash, err := d.string()
	if err != nil {
		return RsyncStart{}, err
	}
	modTime, err := d.uint64()
	if err != nil {
		return RsyncStart{}, err
	}
	blockSize, err := d.uint32()
	if err != nil {
		return RsyncStart{}, err
	}
	return RsyncStart{
		RequestID: requestID, Destination: destination, ContentHash: hash,
		ModTime: int64(modTime), BlockSize: blockSize,
	}, nil
}

// Execute asks the agent to spawn a local process. Env and WorkingDir
// supplement spec.md's bare (binary, args) signature per SPEC_FULL.md's
// ExecuteConfig-derived enrichment.
type Execute struct {
	RequestID  string
	Binary     string
	Args       []string
	Env        map[string]string
	WorkingDir string
}

func (m Execute) marshal() []byte {
	var e encoder
	e.string(m.RequestID)
	e.string(m.Binary)
	e.strings(m.Args)
	e.stringMap(m.Env)
	e.string(m.WorkingDir)
	return e.bytesOut()
}

func unmarshalExecute(data []byte) (Execute, error) {
	d := newDecoder(data)
	requestID, err := d.string()
	if err != nil {
		return Execute{}, err
	}
	binary, err := d.string()
	if err != nil {
		return Execute{}, err
	}
	args, err := d.strings()
	if err != nil {
		return Execute{}, err
	}
	env, err := d.stringMap()
	if err != nil {
		return Execute{}, err
	}
	workingDir, err := d.string()
	if err != nil {
		return Execute{}, err
	}
	return Execute{RequestID: requestID, Binary: binary, Args: args, Env: env, WorkingDir: workingDir}, nil
}

// DeleteFile asks the agent to remove Destination, used by a Mirror-mode
// rule to propagate a source-side removal (SPEC_FULL.md's supplemented
// mirror feature).
type DeleteFile struct {
	RequestID   string
	Destination string
}

func (m DeleteFile) marshal() []byte {
	var e encoder
	e.string(m.RequestID)
	e.string(m.Destination)
	return e.bytesOut()
}

func unmarshalDeleteFile(data []byte) (DeleteFile, error) {
	d := newDecoder(data)
	requestID, err := d.string()
	if err != nil {
		return DeleteFile{}, err
	}
	destination, err := d.string()
	if err != nil {
		return DeleteFile{}, err
	}
	return DeleteFile{RequestID: requestID, Destination: destination}, nil
}

// Shutdown tells the agent to exit its control loop cleanly.
type Shutdown struct {
	Message string
}

func (m Shutdown) marshal() []byte {
	var e encoder
	e.string(m.Message)
	return e.bytesOut()
}

func unmarshalShutdown(data []byte) (Shutdown, error) {
	d := newDecoder(data)
	msg, err := d.string()
	if err != nil {
		return Shutdown{}, err
	}
	return Shutdown{Message: msg}, nil
}

// --- operator <-> hub messages ----------------------------------------------

// CommandOp names the operator command carried by a Command message.
type CommandOp string

const (
	OpPing             CommandOp = "ping"
	OpListClients      CommandOp = "list_clients"
	OpStatus           CommandOp = "status"
	OpSyncFile         CommandOp = "sync_file"
	OpExecute          CommandOp = "execute"
	OpShutdown         CommandOp = "shutdown"
	OpWatchDirectory   CommandOp = "watch_directory"
	OpUnwatchDirectory CommandOp = "unwatch_directory"
	OpListWatches      CommandOp = "list_watches"
)

// Command is the single operator-command envelope; only the fields relevant
// to Op are meaningful.
type Command struct {
	Op          CommandOp
	Hostname    string
	Path        string
	Destination string
	Recursive   bool
	Include     []string
	Exclude     []string
	Clients     []string
	Binary      string
	Args        []string
	Env         map[string]string
	WorkingDir  string
}

func (m Command) marshal() []byte {
	var e encoder
	e.string(string(m.Op))
	e.string(m.Hostname)
	e.string(m.Path)
	e.string(m.Destination)
	e.bool(m.Recursive)
	e.strings(m.Include)
	e.strings(m.Exclude)
	e.strings(m.Clients)
	e.string(m.Binary)
	e.strings(m.Args)
	e.stringMap(m.Env)
	e.string(m.WorkingDir)
	return e.bytesOut()
}

func unmarshalCommand(data []byte) (Command, error) {
	d := newDecoder(data)
	op, err := d.string()
	if err != nil {
		return Command{}, err
	}
	hostname, err := d.string()
	if err != nil {
		return Command{}, err
	}
	path, err := d.string()
	if err != nil {
		return Command{}, err
	}
	destination, err := d.string()
	if err != nil {
		return Command{}, err
	}
	recursive, err := d.bool()
	if err != nil {
		return Command{}, err
	}
	include, err := d.strings()
	if err != nil {
		return Command{}, err
	}
	exclude, err := d.strings()
	if err != nil {
		return Command{}, err
	}
	clients, err := d.strings()
	if err != nil {
		return Command{}, err
	}
	binary, err := d.string()
	if err != nil {
		return Command{}, err
	}
	args, err := d.strings()
	if err != nil {
		return Command{}, err
	}
	env, err := d.stringMap()
	if err != nil {
		return Command{}, err
	}
	workingDir, err := d.string()
	if err != nil {
		return Command{}, err
	}
	return Command{
		Op: CommandOp(op), Hostname: hostname, Path: path, Destination: destination,
		Recursive: recursive, Include: include, Exclude: exclude, Clients: clients,
		Binary: binary, Args: args, Env: env, WorkingDir: workingDir,
	}, nil
}

// ResponseKind names the variant carried by a Response message.
type ResponseKind string

const (
	RespSuccess    ResponseKind = "success"
	RespError      ResponseKind = "error"
	RespClientList ResponseKind = "client_list"
	RespStatus     ResponseKind = "status"
	RespWatchList  ResponseKind = "watch_list"
)

// ClientInfo is one entry of a RespClientList/RespStatus response.
type ClientInfo struct {
	Hostname          string
	SessionID         string
	Platform          string
	ConnectedSecs     uint64
	LastHeartbeatSecs uint64
}

// WatchInfo is one entry of a RespWatchList response.
type WatchInfo struct {
	Path      string
	Recursive bool
	Include   []string
	Exclude   []string
	Clients   []string
}

// Response is the single reply envelope for every operator Command.
type Response struct {
	Kind       ResponseKind
	Message    string
	Hostname   string
	Version    string
	UptimeSecs uint64
	Clients    []ClientInfo
	Watches    []WatchInfo
}

func (m Response) marshal() []byte {
	var e encoder
	e.string(string(m.Kind))
	e.string(m.Message)
	e.string(m.Hostname)
	e.string(m.Version)
	e.uint64(m.UptimeSecs)
	e.uint32(uint32(len(m.Clients)))
	for _, c := range m.Clients {
		e.string(c.Hostname)
		e.string(c.SessionID)
		e.string(c.Platform)
		e.uint64(c.ConnectedSecs)
		e.uint64(c.LastHeartbeatSecs)
	}
	e.uint32(uint32(len(m.Watches)))
	for _, w := range m.Watches {
		e.string(w.Path)
		e.bool(w.Recursive)
		e.strings(w.Include)
		e.strings(w.Exclude)
		e.strings(w.Clients)
	}
	return e.bytesOut()
}

func unmarshalResponse(data []byte) (Response, error) {
	d := newDecoder(data)
	kind, err := d.string()
	if err != nil {
		return Response{}, err
	}
	message, err := d.string()
	if err != nil {
		return Response{}, err
	}
	hostname, err := d.string()
	if err != nil {
		return Response{}, err
	}
	version, err := d.string()
	if err != nil {
		return Response{}, err
	}
	uptime, err := d.uint64()
	if err != nil {
		return Response{}, err
	}
	nClients, err := d.uint32()
	if err != nil {
		return Response{}, err
	}
	var clients []ClientInfo
	for i := uint32(0); i < nClients; i++ {
		hostname, err := d.string()
		if err != nil {
			return Response{}, err
		}
		sessionID, err := d.string()
		if err != nil {
			return Response{}, err
		}
		platform, err := d.string()
		if err != nil {
			return Response{}, err
		}
		connected, err := d.uint64()
		if err != nil {
			return Response{}, err
		}
		lastHB, err := d.uint64()
		if err != nil {
			return Response{}, err
		}
		clients = append(clients, ClientInfo{
			Hostname: hostname, SessionID: sessionID, Platform: platform,
			ConnectedSecs: connected, LastHeartbeatSecs: lastHB,
		})
	}
	nWatches, err := d.uint32()
	if err != nil {
		return Response{}, err
	}
	var watches []WatchInfo
	for i := uint32(0); i < nWatches; i++ {
		path, err := d.string()
		if err != nil {
			return Response{}, err
		}
		recursive, err := d.bool()
		if err != nil {
			return Response{}, err
		}
		include, err := d.strings()
		if err != nil {
			return Response{}, err
		}
		exclude, err := d.strings()
		if err != nil {
			return Response{}, err
		}
		clients, err := d.strings()
		if err != nil {
			return Response{}, err
		}
		watches = append(watches, WatchInfo{Path: path, Recursive: recursive, Include: include, Exclude: exclude, Clients: clients})
	}
	return Response{
		Kind: ResponseKind(kind), Message: message, Hostname: hostname,
		Version: version, UptimeSecs: uptime, Clients: clients, Watches: watches,
	}, nil
}

var errUnknownMessageType = func(t MessageType) error {
	return fmt.Errorf("protocol: unknown message type %#x", uint16(t))
}
