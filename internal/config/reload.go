package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	statlog "github.com/hanlulong/stata-mcp/internal/log"
)

// Holder holds configuration with atomic hot-reload. SIGHUP (wired by
// cmd/statsrv) and, once StartWatcher is running, file-watch events both
// funnel into Reload, which only
// ever replaces the HotReloadable subset of fields — session pool size,
// listener addresses, and the engine path never change without a restart.
type Holder struct {
	reloadOpMu sync.Mutex
	epoch      atomic.Uint64
	snapshot   atomic.Pointer[Snapshot]

	loader     *Loader
	cli        CLIOverrides
	configPath string
	configDir  string
	configFile string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	listenMu  sync.RWMutex
	listeners []chan<- HotReloadable
}

// NewHolder creates a Holder seeded with an already-loaded config.
func NewHolder(initial AppConfig, loader *Loader, cli CLIOverrides, configPath string) *Holder {
	h := &Holder{
		loader:     loader,
		cli:        cli,
		configPath: configPath,
		logger:     statlog.WithComponent("config"),
	}
	h.Swap(&Snapshot{App: initial})
	return h
}

// Get returns the current AppConfig.
func (h *Holder) Get() AppConfig {
	return h.Current().App
}

// Current returns the current Snapshot pointer.
func (h *Holder) Current() *Snapshot {
	if s := h.snapshot.Load(); s != nil {
		return s
	}
	return &Snapshot{}
}

// Swap atomically installs next, assigning it the next epoch.
func (h *Holder) Swap(next *Snapshot) *Snapshot {
	if next == nil {
		return h.snapshot.Load()
	}
	next.Epoch = h.epoch.Add(1)
	return h.snapshot.Swap(next)
}

// Reload re-reads file+env+CLI, validates the result, and if valid swaps
// in only the hot-reloadable subset of fields on top of the current
// snapshot; listeners and bound ports are untouched.
func (h *Holder) Reload(_ context.Context) error {
	h.reloadOpMu.Lock()
	defer h.reloadOpMu.Unlock()

	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load(h.cli)
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	current := h.Get()
	hot := hotReloadableOf(newCfg)
	applyHotReloadable(&current, hot)

	next := &Snapshot{App: current}
	h.Swap(next)
	h.notifyListeners(hot)

	h.logger.Info().
		Str("event", "config.reload_success").
		Str("log_level", hot.LogLevel).
		Dur("session_timeout", hot.SessionTimeout).
		Dur("stream_interval", hot.StreamInterval).
		Int("max_output_tokens", hot.MaxOutputTokens).
		Msg("configuration reloaded")

	return nil
}

func applyHotReloadable(cfg *AppConfig, hot HotReloadable) {
	cfg.LogLevel = hot.LogLevel
	cfg.SessionTimeout = hot.SessionTimeout
	cfg.StreamInterval = hot.StreamInterval
	cfg.MaxOutputTokens = hot.MaxOutputTokens
}

// RegisterListener registers a channel to receive hot-reload notifications.
func (h *Holder) RegisterListener(ch chan<- HotReloadable) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(hot HotReloadable) {
	h.listenMu.RLock()
	defer h.listenMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- hot:
		default:
			h.logger.Warn().Str("event", "config.listener_skip").Msg("skipped notifying listener (channel full)")
		}
	}
}

// StartWatcher watches the config file's directory for writes/creates/
// renames and debounces them into a Reload call. No-op if configPath is
// empty (env/CLI-only configuration).
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher
	h.configDir = filepath.Dir(h.configPath)
	h.configFile = filepath.Base(h.configPath)

	if err := watcher.Add(h.configDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().Str("event", "config.watcher_started").Str("path", h.configPath).Msg("watching config file for changes")
	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	const debounceDuration = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if h.watcher != nil {
				_ = h.watcher.Close()
			}
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if h.configFile != "" && filepath.Base(event.Name) != h.configFile {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().Err(err).Str("event", "config.auto_reload_failed").Msg("automatic config reload failed")
					}
				})
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

// Stop closes the file watcher, if running.
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}
