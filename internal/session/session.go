// Package session implements the Session Manager: a bounded pool of
// engine-backed sessions, each pairing a session id with exactly one worker
// process, a default session created eagerly at startup, and an idle
// reaper that destroys sessions which have gone quiet.
package session

import (
	"context"
	"sync"
	"time"
)

// DefaultSessionID is the sentinel id that always resolves to the
// eagerly-created default session.
const DefaultSessionID = "default"

// State is the lifecycle state of a session.
type State int

const (
	StateReady State = iota
	StateBusy
	StateStopped
	StateInitFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateStopped:
		return "stopped"
	case StateInitFailed:
		return "init_failed"
	default:
		return "unknown"
	}
}

// WorkerHandle is the subset of the worker process lifecycle the session
// manager depends on. The concrete implementation lives in internal/worker;
// session depends only on this interface so it can be unit tested without
// spawning real processes.
type WorkerHandle interface {
	// Stop tears the worker down, escalating through the termination
	// ladder as needed. It must not block past ctx's deadline.
	Stop(ctx context.Context) error
	// Alive reports whether the worker process is still running.
	Alive() bool
}

// Spawner creates a new WorkerHandle for a session. Implemented by
// internal/worker.Supervisor in production, faked in tests.
type Spawner interface {
	Spawn(ctx context.Context) (WorkerHandle, error)
}

// Session is one entry in the pool.
type Session struct {
	ID     string
	Kind   string // "default" or "named"
	State  State
	Worker WorkerHandle

	mu             sync.Mutex
	createdAt      time.Time
	lastActivityAt time.Time
	leased         bool
	released       *sync.Cond // broadcast on Release, waited on by a blocked default-session Acquire
}

// newSession constructs a Session with its release condition wired to its
// own mutex.
func newSession(id, kind string, state State) *Session {
	sess := &Session{ID: id, Kind: kind, State: state}
	sess.released = sync.NewCond(&sess.mu)
	return sess
}

// waitForRelease blocks until the session's lease is released or ctx is
// done, looping past spurious and lost-race wakeups. sess.mu must be held
// on entry and is held again on return.
func (sess *Session) waitForRelease(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		sess.mu.Lock()
		sess.released.Broadcast()
		sess.mu.Unlock()
	})
	defer stop()

	for sess.leased {
		if err := ctx.Err(); err != nil {
			return err
		}
		sess.released.Wait()
	}
	return nil
}

// SessionView is the read-only projection returned by ListSessions.
type SessionView struct {
	ID             string
	Kind           string
	State          string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

func (s *Session) view() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		ID:             s.ID,
		Kind:           s.Kind,
		State:          s.State.String(),
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivityAt,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivityAt)
}

// Lease grants exclusive use of a session's worker for the duration of one
// command. Exactly one Lease may be outstanding per session at a time.
type Lease struct {
	SessionID string
	Worker    WorkerHandle
}
