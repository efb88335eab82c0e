// Package daemon boots the process's two HTTP listeners (the combined
// REST/SSE + MCP surface, and the Prometheus metrics endpoint) and owns
// their graceful shutdown. Grounded on the teacher's internal/daemon/manager.go
// (error-channel server supervision, LIFO shutdown hooks, shutdown-timeout
// context), retargeted from API+metrics+proxy to the combined REST/MCP
// listener plus metrics, since spec.md §6 binds both wire transports to one
// configurable host/port rather than the teacher's three independent
// surfaces.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hanlulong/stata-mcp/internal/config"
	"github.com/hanlulong/stata-mcp/internal/log"
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order (LIFO), mirroring the order dependent
// subsystems were started in.
type ShutdownHook func(ctx context.Context) error

// Config bounds the manager's listeners and shutdown behaviour.
type Config struct {
	ListenAddr      string
	MetricsAddr     string // empty disables the metrics server
	ShutdownTimeout time.Duration
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager owns the daemon's HTTP servers and shutdown sequencing.
type Manager struct {
	cfg            Config
	mainHandler    http.Handler
	metricsHandler http.Handler
	cfgHolder      *config.Holder

	mainServer    *http.Server
	metricsServer *http.Server

	mu            sync.Mutex
	started       bool
	shutdownHooks []namedHook
}

// NewManager builds a Manager. mainHandler serves the combined REST/SSE and
// MCP surface; metricsHandler serves Prometheus scrapes and may be nil if
// cfg.MetricsAddr is empty. cfgHolder may be nil if config reload is not
// wired (e.g. in tests).
func NewManager(cfg Config, mainHandler, metricsHandler http.Handler, cfgHolder *config.Holder) *Manager {
	return &Manager{
		cfg:            cfg,
		mainHandler:    mainHandler,
		metricsHandler: metricsHandler,
		cfgHolder:      cfgHolder,
	}
}

// RegisterShutdownHook registers a cleanup function invoked during Shutdown,
// in reverse registration order.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}

// Reload re-reads the hot-reloadable configuration subset. Wired to SIGHUP
// by cmd/statsrv.
func (m *Manager) Reload(ctx context.Context) error {
	if m.cfgHolder == nil {
		return nil
	}
	return m.cfgHolder.Reload(ctx)
}

// Start runs the HTTP servers and blocks until ctx is cancelled or a server
// fails, then shuts everything down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	logger := log.WithComponent("daemon")
	errChan := make(chan error, 2)

	m.mainServer = &http.Server{
		Addr:              m.cfg.ListenAddr,
		Handler:           m.mainHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       5 * time.Minute,
	}
	go func() {
		logger.Info().Str("addr", m.cfg.ListenAddr).Msg("REST/MCP server listening")
		if err := m.mainServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("main server: %w", err)
		}
	}()

	if m.cfg.MetricsAddr != "" && m.metricsHandler != nil {
		m.metricsServer = &http.Server{
			Addr:              m.cfg.MetricsAddr,
			Handler:           m.metricsHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", m.cfg.MetricsAddr).Msg("metrics server listening")
			if err := m.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case err := <-errChan:
		logger.Error().Err(err).Msg("server error, initiating shutdown")
		if shutdownErr := m.Shutdown(context.Background()); shutdownErr != nil {
			return fmt.Errorf("%w (shutdown: %v)", err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		return m.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops both servers and runs shutdown hooks in LIFO
// order, within cfg.ShutdownTimeout.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrNotStarted
	}

	logger := log.WithComponent("daemon")
	shutdownCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	if m.mainServer != nil {
		if err := m.mainServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("main server shutdown: %w", err))
		}
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	for i := len(m.shutdownHooks) - 1; i >= 0; i-- {
		hook := m.shutdownHooks[i]
		if err := hook.hook(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("hook", hook.name).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	logger.Info().Msg("daemon stopped cleanly")
	return nil
}
