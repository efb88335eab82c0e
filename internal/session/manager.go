package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hanlulong/stata-mcp/internal/log"
	"github.com/hanlulong/stata-mcp/internal/metrics"
)

// Config bounds the pool and reaper behaviour.
type Config struct {
	MaxSessions     int
	SessionTimeout  time.Duration
	ReaperInterval  time.Duration
}

// Manager owns the set of sessions. Index mutations (create/destroy) run
// under a single exclusive lock; lookups (list, acquire of an existing
// entry) only need a read lock on the index, with per-session state guarded
// independently so a long-running command doesn't block list_sessions.
type Manager struct {
	idxMu sync.RWMutex
	index map[string]*Session

	cfg     Config
	spawner Spawner
}

// NewManager constructs an empty Manager. The default session is created by
// Bootstrap, and idle sweeping is done by a separate Reaper.
func NewManager(cfg Config, spawner Spawner) *Manager {
	return &Manager{
		index:   make(map[string]*Session),
		cfg:     cfg,
		spawner: spawner,
	}
}

// Bootstrap creates the default session. Must be called once before serving
// any requests.
func (m *Manager) Bootstrap(ctx context.Context) error {
	sess, err := m.spawnSession(ctx, DefaultSessionID, "default")
	if err != nil {
		return fmt.Errorf("bootstrap default session: %w", err)
	}

	m.idxMu.Lock()
	m.index[DefaultSessionID] = sess
	m.idxMu.Unlock()

	metrics.SessionsActive.Inc()
	metrics.SessionsCreatedTotal.WithLabelValues("default").Inc()
	log.AuditInfo("session.created", "default session created", map[string]any{"session_id": DefaultSessionID})
	return nil
}

// CreateSession spawns a new named session and admits it to the pool,
// enforcing max_sessions (which counts the default session).
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	m.idxMu.Lock()
	if len(m.index) >= m.cfg.MaxSessions {
		m.idxMu.Unlock()
		return "", ErrPoolFull
	}
	// Reserve the slot before releasing the lock so a concurrent create
	// can't both pass the bound check and double-book the pool.
	id := uuid.NewString()
	placeholder := newSession(id, "named", StateInitFailed)
	m.index[id] = placeholder
	m.idxMu.Unlock()

	sess, err := m.spawnSession(ctx, id, "named")
	if err != nil {
		m.idxMu.Lock()
		delete(m.index, id)
		m.idxMu.Unlock()
		metrics.SessionAcquireTotal.WithLabelValues("not_found").Inc()
		return "", fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	m.idxMu.Lock()
	m.index[id] = sess
	m.idxMu.Unlock()

	metrics.SessionsActive.Inc()
	metrics.SessionsCreatedTotal.WithLabelValues("named").Inc()
	log.AuditInfo("session.created", "session created", map[string]any{"session_id": id})
	return id, nil
}

func (m *Manager) spawnSession(ctx context.Context, id, kind string) (*Session, error) {
	handle, err := m.spawner.Spawn(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := newSession(id, kind, StateReady)
	sess.Worker = handle
	sess.createdAt = now
	sess.lastActivityAt = now
	return sess, nil
}

// DestroySession stops the worker and removes the session from the pool.
// The default session cannot be destroyed.
func (m *Manager) DestroySession(ctx context.Context, id string) error {
	if id == DefaultSessionID {
		return fmt.Errorf("%w: default session cannot be destroyed", ErrNotFound)
	}

	m.idxMu.Lock()
	sess, ok := m.index[id]
	if !ok {
		m.idxMu.Unlock()
		return ErrNotFound
	}
	delete(m.index, id)
	m.idxMu.Unlock()

	m.destroy(ctx, sess, "explicit")
	return nil
}

func (m *Manager) destroy(ctx context.Context, sess *Session, reason string) {
	if sess.Worker != nil {
		_ = sess.Worker.Stop(ctx)
	}
	metrics.SessionsActive.Dec()
	metrics.SessionsDestroyedTotal.WithLabelValues(reason).Inc()
	log.AuditInfo("session.destroyed", "session destroyed", map[string]any{
		"session_id": sess.ID,
		"reason":     reason,
	})
}

// ListSessions returns a point-in-time view of every session in the pool.
func (m *Manager) ListSessions() []SessionView {
	m.idxMu.RLock()
	defer m.idxMu.RUnlock()

	out := make([]SessionView, 0, len(m.index))
	for _, sess := range m.index {
		out = append(out, sess.view())
	}
	return out
}

// Lookup returns a point-in-time view of a single session.
func (m *Manager) Lookup(id string) (SessionView, error) {
	if id == "" {
		id = DefaultSessionID
	}
	m.idxMu.RLock()
	sess, ok := m.index[id]
	m.idxMu.RUnlock()
	if !ok {
		return SessionView{}, ErrNotFound
	}
	return sess.view(), nil
}

// Acquire resolves id (or the default sentinel) to a session and grants an
// exclusive lease on it for one command's duration. An explicit (named)
// session that is already leased fails fast with ErrBusy. The default
// session instead waits for the current lease to free up, preserving the
// engine's legacy one-command-at-a-time semantics for clients that never
// create a named session; the wait is bounded by ctx.
func (m *Manager) Acquire(ctx context.Context, id string) (*Lease, error) {
	if id == "" {
		id = DefaultSessionID
	}

	m.idxMu.RLock()
	sess, ok := m.index[id]
	m.idxMu.RUnlock()
	if !ok {
		metrics.SessionAcquireTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	sess.mu.Lock()
	if sess.leased && id == DefaultSessionID {
		if err := sess.waitForRelease(ctx); err != nil {
			sess.mu.Unlock()
			metrics.SessionAcquireTotal.WithLabelValues("busy").Inc()
			return nil, err
		}
	}
	if sess.leased {
		sess.mu.Unlock()
		metrics.SessionAcquireTotal.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
	if sess.State == StateStopped || sess.State == StateInitFailed {
		sess.mu.Unlock()
		metrics.SessionAcquireTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}
	sess.leased = true
	sess.State = StateBusy
	sess.lastActivityAt = time.Now()
	sess.mu.Unlock()

	metrics.SessionAcquireTotal.WithLabelValues("ok").Inc()
	return &Lease{SessionID: sess.ID, Worker: sess.Worker}, nil
}

// Release returns a session to the Ready state after a command completes
// and wakes any Acquire blocked waiting for the default session.
func (m *Manager) Release(lease *Lease) error {
	m.idxMu.RLock()
	sess, ok := m.index[lease.SessionID]
	m.idxMu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	sess.mu.Lock()
	sess.leased = false
	if sess.State == StateBusy {
		sess.State = StateReady
	}
	sess.lastActivityAt = time.Now()
	sess.released.Broadcast()
	sess.mu.Unlock()
	return nil
}

// Peek returns id's current worker handle without acquiring a lease,
// for operations like stop_execution's cooperative Break that must reach a
// session's worker even while a command holds its lease.
func (m *Manager) Peek(id string) (WorkerHandle, error) {
	if id == "" {
		id = DefaultSessionID
	}
	m.idxMu.RLock()
	sess, ok := m.index[id]
	m.idxMu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.State == StateStopped || sess.State == StateInitFailed {
		return nil, ErrNotFound
	}
	return sess.Worker, nil
}

// MarkDead transitions a session to Stopped after its worker has died or
// been killed, including in the middle of a command. The reaper removes a
// Stopped named session on its next tick once no lease is held; the default
// session is never reaped or respawned, so it stays Stopped and later
// Acquire calls on it return ErrNotFound.
func (m *Manager) MarkDead(id string) {
	m.idxMu.RLock()
	sess, ok := m.index[id]
	m.idxMu.RUnlock()
	if !ok {
		return
	}
	sess.mu.Lock()
	sess.State = StateStopped
	sess.mu.Unlock()
}

// Shutdown stops every session's worker concurrently, including the default
// session, and empties the index. Intended as a daemon shutdown hook.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.idxMu.Lock()
	sessions := make([]*Session, 0, len(m.index))
	for _, sess := range m.index {
		sessions = append(sessions, sess)
	}
	m.index = make(map[string]*Session)
	m.idxMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			m.destroy(gctx, sess, "shutdown")
			return nil
		})
	}
	return g.Wait()
}
