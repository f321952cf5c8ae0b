package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// retryScheduler arms at most one deferred call at a time. The armed flag
// clears before the callback runs so a failure inside the callback can arm
// the next attempt. A timer that is already armed cannot be replaced; a
// completed operation does not cancel it, the fired callback just finds
// nothing to do.
type retryScheduler struct {
	armed atomic.Bool
	mu    sync.Mutex
	timer *time.Timer
}

func newRetryScheduler() *retryScheduler {
	return &retryScheduler{}
}

// Arm schedules fn after d. It reports false when a retry is already
// pending.
func (r *retryScheduler) Arm(d time.Duration, fn func()) bool {
	if !r.armed.CompareAndSwap(false, true) {
		return false
	}
	r.mu.Lock()
	r.timer = time.AfterFunc(d, func() {
		r.armed.Store(false)
		fn()
	})
	r.mu.Unlock()
	return true
}

// Pending reports whether a retry is currently armed.
func (r *retryScheduler) Pending() bool {
	return r.armed.Load()
}

// Stop cancels a pending retry, if any. Used on shutdown only.
func (r *retryScheduler) Stop() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()
	r.armed.Store(false)
}
