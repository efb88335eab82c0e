package config

import "time"

// Defaults returns the AppConfig populated with every documented default
// from spec.md's configuration surface table.
func Defaults() AppConfig {
	return AppConfig{
		EnginePath:    "",
		EngineEdition: "",

		Host:      "127.0.0.1",
		Port:      8765,
		ForcePort: false,

		MaxSessions:        8,
		SessionTimeout:     30 * time.Minute,
		WorkerStartTimeout: 30 * time.Second,
		CommandTimeout:     120 * time.Second,
		StreamInterval:     6 * time.Second,
		MaxOutputTokens:    4000,
		ResultDisplayMode:  DisplayModeFull,
		LogFileLocation:    LogLocationServerDir,
		WorkingDirPolicy:   WorkDirPolicyScriptDir,

		LogLevel:    "info",
		LogService:  "statsrv",
		MetricsAddr: "",

		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "grpc",
			SamplingRate: 1.0,
		},
	}
}

// ReaperInterval is the idle-reaper sweep cadence; not part of the
// documented surface (it is a fixed cadence per spec.md §4.1), kept as an
// internal constant so the session package doesn't hardcode a magic number.
const ReaperInterval = 60 * time.Second
