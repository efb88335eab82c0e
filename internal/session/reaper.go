package session

import (
	"context"
	"time"
)

// Reaper periodically destroys sessions that have been idle past their
// timeout. It never touches the default session: that session's lock is
// effectively reentrant with respect to the reaper because the reaper skips
// it before ever acquiring it, so a sweep can never block on, or deadlock
// with, a default-session command in flight.
type Reaper struct {
	mgr      *Manager
	interval time.Duration
	timeout  time.Duration
}

// NewReaper builds a Reaper for mgr using the given sweep cadence and idle
// timeout.
func NewReaper(mgr *Manager, interval, timeout time.Duration) *Reaper {
	return &Reaper{mgr: mgr, interval: interval, timeout: timeout}
}

// Run ticks every interval until ctx is canceled, calling SweepOnce on each
// tick. Intended to be launched in its own goroutine.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce destroys every non-default, non-leased session that is either
// Stopped (a dead worker, reaped on the very next tick regardless of idle
// time) or has been idle past the configured timeout. Kept separate from
// the ticker loop so it is deterministic and suitable for unit testing.
func (r *Reaper) SweepOnce(ctx context.Context) int {
	now := time.Now()

	r.mgr.idxMu.RLock()
	candidates := make([]*Session, 0)
	for id, sess := range r.mgr.index {
		if id == DefaultSessionID {
			continue
		}
		candidates = append(candidates, sess)
	}
	r.mgr.idxMu.RUnlock()

	reaped := 0
	for _, sess := range candidates {
		sess.mu.Lock()
		idle := now.Sub(sess.lastActivityAt)
		busy := sess.leased
		stopped := sess.State == StateStopped
		sess.mu.Unlock()

		if busy {
			continue
		}
		if !stopped && idle < r.timeout {
			continue
		}

		r.mgr.idxMu.Lock()
		if current, ok := r.mgr.index[sess.ID]; ok && current == sess {
			delete(r.mgr.index, sess.ID)
		} else {
			r.mgr.idxMu.Unlock()
			continue
		}
		r.mgr.idxMu.Unlock()

		reason := "idle_reaped"
		if stopped {
			reason = "dead_reaped"
		}
		r.mgr.destroy(ctx, sess, reason)
		reaped++
	}
	return reaped
}
