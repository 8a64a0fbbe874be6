package common

import (
	"errors"
	"testing"
	"time"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerWindow: 10}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaInstructions(t *testing.T) {
	q := Quota{MaxInstructionsPerWindow: 1000}
	prev := QuotaNow{EpochID: 5}

	next, err := CheckQuota(q, 5, prev, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Instructions != 1000 {
		t.Fatalf("unexpected instructions: %d", next.Instructions)
	}

	denied, err := CheckQuota(q, 5, next, 0, 1)
	if !errors.Is(err, ErrQuotaInstructionsExceeded) {
		t.Fatalf("expected ErrQuotaInstructionsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 6, next, 0, 500)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.Instructions != 500 {
		t.Fatalf("unexpected instructions after rollover: %d", rollover.Instructions)
	}
}

func TestQuotaTrackerWindows(t *testing.T) {
	tracker := NewQuotaTracker(Quota{MaxRequestsPerWindow: 2, WindowSeconds: 60})
	now := time.Unix(6000, 0)
	tracker.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if err := tracker.Charge("alice", 1, 1); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}
	if err := tracker.Charge("alice", 1, 1); !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if err := tracker.Charge("bob", 1, 1); err != nil {
		t.Fatalf("keys must be independent: %v", err)
	}
	now = now.Add(time.Minute)
	if err := tracker.Charge("alice", 1, 1); err != nil {
		t.Fatalf("expected fresh window: %v", err)
	}
}

func TestQuotaTrackerDisabled(t *testing.T) {
	tracker := NewQuotaTracker(Quota{})
	for i := 0; i < 100; i++ {
		if err := tracker.Charge("alice", 1, 100); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	var nilTracker *QuotaTracker
	if err := nilTracker.Charge("alice", 1, 1); err != nil {
		t.Fatalf("nil tracker must not limit: %v", err)
	}
}

func TestPauses(t *testing.T) {
	p := NewPauses(" Escrow ")
	if err := Guard(p, "escrow"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(p, "token"); err != nil {
		t.Fatalf("token should run: %v", err)
	}
	p.Set("escrow", false)
	if err := Guard(p, "escrow"); err != nil {
		t.Fatalf("escrow resumed: %v", err)
	}
	p.Set("token", true)
	if got := p.List(); len(got) != 1 || got[0] != "token" {
		t.Fatalf("unexpected paused list: %v", got)
	}
	if err := Guard(nil, "escrow"); err != nil {
		t.Fatalf("nil view must not pause: %v", err)
	}
}
