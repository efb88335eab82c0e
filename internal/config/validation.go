package config

import (
	"github.com/hanlulong/stata-mcp/internal/validate"
)

// Validate checks an AppConfig against the documented constraints for every
// field in spec.md's configuration surface.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Port("Port", cfg.Port)
	v.NonNegative("MaxSessions", cfg.MaxSessions)
	v.Positive("MaxSessions", cfg.MaxSessions)
	v.NonNegative("MaxOutputTokens", cfg.MaxOutputTokens)

	v.OneOf("ResultDisplayMode", cfg.ResultDisplayMode, []string{DisplayModeFull, DisplayModeCompact})
	v.OneOf("LogFileLocation", cfg.LogFileLocation, []string{
		LogLocationServerDir, LogLocationScriptDir, LogLocationScriptParent,
		LogLocationWorkspace, LogLocationCustom,
	})
	v.OneOf("WorkingDirPolicy", cfg.WorkingDirPolicy, []string{
		WorkDirPolicyScriptDir, WorkDirPolicyScriptParnt, WorkDirPolicyWorkspace,
		WorkDirPolicyServerDir, WorkDirPolicyCustom, WorkDirPolicyNone,
	})

	if cfg.LogFileLocation == LogLocationCustom {
		v.NotEmpty("CustomLogDirectory", cfg.CustomLogDirectory)
	}

	if cfg.SessionTimeout <= 0 {
		v.AddError("SessionTimeout", "must be positive", cfg.SessionTimeout)
	}
	if cfg.WorkerStartTimeout <= 0 {
		v.AddError("WorkerStartTimeout", "must be positive", cfg.WorkerStartTimeout)
	}
	if cfg.CommandTimeout <= 0 {
		v.AddError("CommandTimeout", "must be positive", cfg.CommandTimeout)
	}
	if cfg.StreamInterval <= 0 {
		v.AddError("StreamInterval", "must be positive", cfg.StreamInterval)
	}

	if cfg.Tracing.Enabled {
		v.OneOf("Tracing.Exporter", cfg.Tracing.Exporter, []string{"grpc", "http"})
		if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
			v.AddError("Tracing.SamplingRate", "must be between 0 and 1", cfg.Tracing.SamplingRate)
		}
	}

	return v.Err()
}
