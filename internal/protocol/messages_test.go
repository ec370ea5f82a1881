package protocol

import (
	"reflect"
	"testing"
)

func TestRegisterRoundTrip(t *testing.T) {
	want := Register{Hostname: "web-01", Platform: "linux/amd64"}
	got, err := unmarshalRegister(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	if _, err := unmarshalHeartbeat(Heartbeat{}.marshal()); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestRsyncCompleteRoundTrip(t *testing.T) {
	want := RsyncComplete{
		RequestID:        "a1b2",
		Success:          true,
		BytesTransferred: 4096,
		Hash:             "deadbeef",
		Error:            "",
	}
	got, err := unmarshalRsyncComplete(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestRsyncCompleteFailureRoundTrip(t *testing.T) {
	want := RsyncComplete{RequestID: "x", Success: false, Error: "checksum mismatch"}
	got, err := unmarshalRsyncComplete(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestExecCompleteRoundTrip(t *testing.T) {
	want := ExecComplete{RequestID: "r1", ExitCode: -1, Stdout: "out", Stderr: "err"}
	got, err := unmarshalExecComplete(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestStatusReportRoundTrip(t *testing.T) {
	want := StatusReport{
		RequestID: "p1", Hostname: "db-02", UptimeSecs: 3600,
		LoadPercent: 42, MemUsedBytes: 1 << 20, DiskFreeBytes: 1 << 30,
	}
	got, err := unmarshalStatusReport(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestErrorRoundTrip(t *testing.T) {
	want := Error{Message: "disk full"}
	got, err := unmarshalError(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestWelcomeRoundTrip(t *testing.T) {
	want := Welcome{Message: "registered"}
	got, err := unmarshalWelcome(want.marshal())
	if err != nil || got != want {
		t.Fatalf("got %+v err %v, want %+v", got, err, want)
	}
}

func TestPingRoundTrip(t *testing.T) {
	want := Ping{RequestID: "ping-1"}
	got, err := unmarshalPing(want.marshal())
	if err != nil || got != want {
		t.Fatalf("got %+v err %v, want %+v", got, err, want)
	}
}

func TestRsyncStartRoundTrip(t *testing.T) {
	want := RsyncStart{
		RequestID: "t1", Destination: "/etc/app/config.yml",
		ContentHash: "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f",
		ModTime:     1700000000, BlockSize: 4096,
	}
	got, err := unmarshalRsyncStart(want.marshal())
	if err != nil || got != want {
		t.Fatalf("got %+v err %v, want %+v", got, err, want)
	}
}

func TestExecuteRoundTrip(t *testing.T) {
	want := Execute{
		RequestID: "e1", Binary: "/usr/bin/systemctl",
		Args:       []string{"restart", "app"},
		Env:        map[string]string{"FOO": "bar"},
		WorkingDir: "/opt/app",
	}
	got, err := unmarshalExecute(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestShutdownRoundTrip(t *testing.T) {
	want := Shutdown{Message: "maintenance"}
	got, err := unmarshalShutdown(want.marshal())
	if err != nil || got != want {
		t.Fatalf("got %+v err %v, want %+v", got, err, want)
	}
}

func TestDeleteFileRoundTrip(t *testing.T) {
	want := DeleteFile{RequestID: "req-1", Destination: "/srv/data/old.txt"}
	got, err := unmarshalDeleteFile(want.marshal())
	if err != nil || got != want {
		t.Fatalf("got %+v err %v, want %+v", got, err, want)
	}
}

func TestDeleteCompleteRoundTrip(t *testing.T) {
	want := DeleteComplete{RequestID: "req-1", Success: true}
	got, err := unmarshalDeleteComplete(want.marshal())
	if err != nil || got != want {
		t.Fatalf("got %+v err %v, want %+v", got, err, want)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	want := Command{
		Op: OpWatchDirectory, Path: "/srv/data", Recursive: true,
		Include: []string{"*.conf"}, Exclude: []string{"*.tmp"},
		Clients: []string{"web-*"},
	}
	got, err := unmarshalCommand(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCommandExecuteVariantRoundTrip(t *testing.T) {
	want := Command{
		Op: OpExecute, Hostname: "web-01", Binary: "/bin/echo",
		Args: []string{"hi"}, Env: map[string]string{"X": "1"}, WorkingDir: "/tmp",
	}
	got, err := unmarshalCommand(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	want := Response{
		Kind: RespClientList, Message: "ok",
		Clients: []ClientInfo{
			{Hostname: "web-01", SessionID: "sess-1", Platform: "linux/amd64", ConnectedSecs: 120, LastHeartbeatSecs: 3},
			{Hostname: "web-02", SessionID: "sess-2", Platform: "linux/arm64", ConnectedSecs: 60, LastHeartbeatSecs: 1},
		},
	}
	got, err := unmarshalResponse(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestResponseWatchListRoundTrip(t *testing.T) {
	want := Response{
		Kind: RespWatchList,
		Watches: []WatchInfo{
			{Path: "/srv/data", Recursive: true, Include: []string{"*.conf"}, Exclude: nil, Clients: []string{"web-*"}},
		},
	}
	got, err := unmarshalResponse(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestResponseEmptyRoundTrip(t *testing.T) {
	want := Response{Kind: RespSuccess, Message: "done"}
	got, err := unmarshalResponse(want.marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
