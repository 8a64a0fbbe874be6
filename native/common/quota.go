package common

import (
	"errors"
	"math"
	"sync"
	"time"
)

var (
	ErrQuotaRequestsExceeded     = errors.New("quota requests exceeded")
	ErrQuotaInstructionsExceeded = errors.New("quota instruction cap exceeded")
	ErrQuotaCounterOverflow      = errors.New("quota counter overflow")
)

// QuotaNow captures the current usage counters for one key.
type QuotaNow struct {
	ReqCount     uint32
	Instructions uint64
	EpochID      uint64
}

// Quota defines the limits enforced per key within one window. Zero limits
// are unbounded.
type Quota struct {
	MaxRequestsPerWindow     uint32 `toml:"MaxRequestsPerWindow" yaml:"maxRequestsPerWindow"`
	MaxInstructionsPerWindow uint64 `toml:"MaxInstructionsPerWindow" yaml:"maxInstructionsPerWindow"`
	WindowSeconds            uint32 `toml:"WindowSeconds" yaml:"windowSeconds"`
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerWindow > 0 || q.MaxInstructionsPerWindow > 0
}

// CheckQuota verifies whether the additional requests and instructions fit
// within q. The returned QuotaNow reflects the updated counters when the
// quota is not exceeded; on failure prev is returned unchanged.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addInstructions uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerWindow > 0 && next.ReqCount > q.MaxRequestsPerWindow {
		return prev, ErrQuotaRequestsExceeded
	}

	if addInstructions > 0 {
		if next.Instructions > math.MaxUint64-addInstructions {
			return prev, ErrQuotaCounterOverflow
		}
		next.Instructions += addInstructions
	}
	if q.MaxInstructionsPerWindow > 0 && next.Instructions > q.MaxInstructionsPerWindow {
		return prev, ErrQuotaInstructionsExceeded
	}

	return next, nil
}

// QuotaTracker applies one Quota across many keys, rolling counters over at
// each window boundary.
type QuotaTracker struct {
	mu    sync.Mutex
	quota Quota
	now   func() time.Time
	usage map[string]QuotaNow
}

// NewQuotaTracker returns a tracker for q. A zero WindowSeconds means one
// minute.
func NewQuotaTracker(q Quota) *QuotaTracker {
	if q.WindowSeconds == 0 {
		q.WindowSeconds = 60
	}
	return &QuotaTracker{quota: q, now: time.Now, usage: make(map[string]QuotaNow)}
}

// SetNowFunc overrides the clock.
func (t *QuotaTracker) SetNowFunc(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	t.now = now
}

// Charge records usage for key, refusing it when a limit would be exceeded.
func (t *QuotaTracker) Charge(key string, requests uint32, instructions uint64) error {
	if t == nil || !t.quota.Enabled() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	epoch := uint64(t.now().Unix()) / uint64(t.quota.WindowSeconds)
	next, err := CheckQuota(t.quota, epoch, t.usage[key], requests, instructions)
	if err != nil {
		return err
	}
	t.usage[key] = next
	for k, v := range t.usage {
		if v.EpochID != epoch {
			delete(t.usage, k)
		}
	}
	return nil
}
