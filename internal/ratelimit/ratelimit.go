// Package ratelimit tracks the GitHub API quota as the server reports it.
// The tracker never decrements locally: other consumers may share the
// same credential, so only response headers are trusted.
package ratelimit

import (
	"sync"
	"time"

	"github.com/kvasirlabs/gh-activity/internal/models"
)

// Tracker records the most recent server-reported quota. Safe for
// concurrent use; all operations are non-blocking.
type Tracker struct {
	mu    sync.Mutex
	quota models.QuotaState
	now   func() time.Time
}

// New creates a tracker in the optimistic pre-first-response state, so
// the very first request is never blocked.
func New() *Tracker {
	return &Tracker{now: time.Now}
}

// Update overwrites the quota with server-reported values.
func (t *Tracker) Update(remaining, limit int, resetAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quota = models.QuotaState{
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   resetAt,
		Known:     true,
	}
}

// UpdateFromQuota applies a quota snapshot returned by a fetch. Unknown
// snapshots (no rate headers were seen) leave the state untouched.
func (t *Tracker) UpdateFromQuota(quota models.QuotaState) {
	if !quota.Known {
		return
	}
	t.Update(quota.Remaining, quota.Limit, quota.ResetAt)
}

// CanProceed reports whether a new API call may be issued now: quota is
// still unknown, calls remain, or the reset time has passed (the server
// will report a fresh window on the next call).
func (t *Tracker) CanProceed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.quota.Known {
		return true
	}
	if t.quota.Remaining > 0 {
		return true
	}
	return !t.now().Before(t.quota.ResetAt)
}

// TimeUntilReset returns how long until the quota window rolls over,
// never negative.
func (t *Tracker) TimeUntilReset() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.quota.Known {
		return 0
	}
	until := t.quota.ResetAt.Sub(t.now())
	if until < 0 {
		return 0
	}
	return until
}

// Snapshot returns a copy of the current quota state for display.
func (t *Tracker) Snapshot() models.QuotaState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quota
}
