package registry

import (
	"errors"
	"testing"
	"time"
)

type fakeSender struct {
	sent []any
	fail bool
}

func (s *fakeSender) Send(frame any) error {
	if s.fail {
		return errors.New("send failed")
	}
	s.sent = append(s.sent, frame)
	return nil
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	sender := &fakeSender{}
	a := &Agent{SessionID: "sess-1", Hostname: "web-01", Sender: sender}
	r.Register(a)

	got, ok := r.Get("sess-1")
	if !ok || got.Hostname != "web-01" {
		t.Fatalf("Get: ok=%v got=%+v", ok, got)
	}

	byHost, ok := r.GetByHostname("web-01")
	if !ok || byHost.SessionID != "sess-1" {
		t.Fatalf("GetByHostname: ok=%v got=%+v", ok, byHost)
	}
}

func TestUnregisterRemovesEntry(t *testing.T) {
	r := New()
	r.Register(&Agent{SessionID: "sess-1", Hostname: "web-01", Sender: &fakeSender{}})
	r.Unregister("sess-1")

	if _, ok := r.Get("sess-1"); ok {
		t.Fatal("expected session removed")
	}
	if _, ok := r.GetByHostname("web-01"); ok {
		t.Fatal("expected hostname index cleared")
	}
}

func TestHostnameCollisionMostRecentWins(t *testing.T) {
	r := New()
	r.Register(&Agent{SessionID: "sess-old", Hostname: "web-01", Sender: &fakeSender{}})
	r.Register(&Agent{SessionID: "sess-new", Hostname: "web-01", Sender: &fakeSender{}})

	got, ok := r.GetByHostname("web-01")
	if !ok || got.SessionID != "sess-new" {
		t.Fatalf("GetByHostname after collision = %+v, want sess-new", got)
	}

	// The old session is still reachable by ID until it unregisters.
	if _, ok := r.Get("sess-old"); !ok {
		t.Fatal("expected old session still reachable by ID")
	}
}

func TestUnregisterOldSessionAfterCollisionDoesNotClearNewIndex(t *testing.T) {
	r := New()
	r.Register(&Agent{SessionID: "sess-old", Hostname: "web-01", Sender: &fakeSender{}})
	r.Register(&Agent{SessionID: "sess-new", Hostname: "web-01", Sender: &fakeSender{}})
	r.Unregister("sess-old")

	got, ok := r.GetByHostname("web-01")
	if !ok || got.SessionID != "sess-new" {
		t.Fatalf("GetByHostname = %+v, want sess-new still indexed", got)
	}
}

func TestUpdateHeartbeat(t *testing.T) {
	r := New()
	r.Register(&Agent{SessionID: "sess-1", Hostname: "web-01", Sender: &fakeSender{}})

	now := time.Now()
	r.UpdateHeartbeat("sess-1", now)

	a, _ := r.Get("sess-1")
	if !a.LastHeartbeat.Equal(now) {
		t.Errorf("LastHeartbeat = %v, want %v", a.LastHeartbeat, now)
	}
}

func TestSendToUnknownHostname(t *testing.T) {
	r := New()
	if err := r.SendTo("ghost", "frame"); err == nil {
		t.Fatal("expected error for unregistered hostname")
	}
}

func TestSendToDeliversFrame(t *testing.T) {
	r := New()
	sender := &fakeSender{}
	r.Register(&Agent{SessionID: "sess-1", Hostname: "web-01", Sender: sender})

	if err := r.SendTo("web-01", "hello"); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "hello" {
		t.Errorf("sent = %v", sender.sent)
	}
}

func TestBroadcastToAllWhenNoPatterns(t *testing.T) {
	r := New()
	s1, s2 := &fakeSender{}, &fakeSender{}
	r.Register(&Agent{SessionID: "sess-1", Hostname: "web-01", Sender: s1})
	r.Register(&Agent{SessionID: "sess-2", Hostname: "db-01", Sender: s2})

	errs := r.Broadcast("msg", nil)
	if len(errs) != 0 {
		t.Fatalf("Broadcast errors: %v", errs)
	}
	if len(s1.sent) != 1 || len(s2.sent) != 1 {
		t.Fatalf("s1.sent=%v s2.sent=%v", s1.sent, s2.sent)
	}
}

func TestBroadcastHonorsHostnameGlob(t *testing.T) {
	r := New()
	web, db := &fakeSender{}, &fakeSender{}
	r.Register(&Agent{SessionID: "sess-1", Hostname: "web-01", Sender: web})
	r.Register(&Agent{SessionID: "sess-2", Hostname: "db-01", Sender: db})

	r.Broadcast("msg", []string{"web-*"})

	if len(web.sent) != 1 {
		t.Errorf("web agent: sent %d, want 1", len(web.sent))
	}
	if len(db.sent) != 0 {
		t.Errorf("db agent: sent %d, want 0", len(db.sent))
	}
}

func TestBroadcastCollectsSendErrors(t *testing.T) {
	r := New()
	r.Register(&Agent{SessionID: "sess-1", Hostname: "web-01", Sender: &fakeSender{fail: true}})

	errs := r.Broadcast("msg", nil)
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want 1", errs)
	}
}

func TestListAndCount(t *testing.T) {
	r := New()
	r.Register(&Agent{SessionID: "sess-1", Hostname: "web-01", Sender: &fakeSender{}})
	r.Register(&Agent{SessionID: "sess-2", Hostname: "db-01", Sender: &fakeSender{}})

	if r.Count() != 2 {
		t.Fatalf("Count = %d, want 2", r.Count())
	}
	if len(r.List()) != 2 {
		t.Fatalf("List len = %d, want 2", len(r.List()))
	}
}

func TestStaleSessions(t *testing.T) {
	r := New()
	now := time.Now()
	r.Register(&Agent{SessionID: "fresh", Hostname: "web-01", LastHeartbeat: now, Sender: &fakeSender{}})
	r.Register(&Agent{SessionID: "stale", Hostname: "web-02", LastHeartbeat: now.Add(-10 * time.Minute), Sender: &fakeSender{}})

	stale := r.StaleSessions(5*time.Minute, now)
	if len(stale) != 1 || stale[0] != "stale" {
		t.Errorf("StaleSessions = %v, want [stale]", stale)
	}
}
