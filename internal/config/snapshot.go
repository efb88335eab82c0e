package config

import "time"

// Snapshot is the immutable, effective runtime configuration. Epoch
// increments on every successful Swap so callers can detect "config changed
// under me" within a long-running operation.
type Snapshot struct {
	Epoch uint64
	App   AppConfig
}

// HotReloadable is the subset of fields SIGHUP is allowed to change without
// restarting any listener: log level, the idle-reaper horizon, the
// streaming heartbeat cadence, and the output token bound.
type HotReloadable struct {
	LogLevel        string
	SessionTimeout  time.Duration
	StreamInterval  time.Duration
	MaxOutputTokens int
}

func hotReloadableOf(cfg AppConfig) HotReloadable {
	return HotReloadable{
		LogLevel:        cfg.LogLevel,
		SessionTimeout:  cfg.SessionTimeout,
		StreamInterval:  cfg.StreamInterval,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
}
