package mux

import (
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Create("req-1", "web-01", "/etc/app.conf", now)

	tr, ok := tbl.Get("req-1")
	if !ok || tr.State != TransferPending {
		t.Fatalf("Get: ok=%v tr=%+v", ok, tr)
	}
}

func TestMarkInProgress(t *testing.T) {
	tbl := NewTable()
	tbl.Create("req-1", "web-01", "/etc/app.conf", time.Now())
	if err := tbl.MarkInProgress("req-1"); err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}
	tr, _ := tbl.Get("req-1")
	if tr.State != TransferInProgress {
		t.Errorf("State = %v, want TransferInProgress", tr.State)
	}
}

func TestMarkInProgressUnknownID(t *testing.T) {
	tbl := NewTable()
	if err := tbl.MarkInProgress("ghost"); err == nil {
		t.Fatal("expected error for unknown request ID")
	}
}

func TestComplete(t *testing.T) {
	tbl := NewTable()
	tbl.Create("req-1", "web-01", "/etc/app.conf", time.Now())
	tbl.Complete("req-1")
	if _, ok := tbl.Get("req-1"); ok {
		t.Fatal("expected transfer removed after Complete")
	}
}

func TestSweepExpired(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Create("fresh", "web-01", "/a", now)
	tbl.Create("stale", "web-02", "/b", now.Add(-10*time.Minute))

	expired := tbl.SweepExpired(5*time.Minute, now)
	if len(expired) != 1 || expired[0] != "stale" {
		t.Fatalf("SweepExpired = %v, want [stale]", expired)
	}
	if tbl.Count() != 1 {
		t.Fatalf("Count = %d, want 1", tbl.Count())
	}
}
