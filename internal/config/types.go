package config

import "time"

const (
	LogLocationServerDir     = "server_dir"
	LogLocationScriptDir     = "script_dir"
	LogLocationScriptParent  = "script_parent"
	LogLocationWorkspace     = "workspace"
	LogLocationCustom        = "custom"
	WorkDirPolicyScriptDir   = "script_dir"
	WorkDirPolicyScriptParnt = "script_parent"
	WorkDirPolicyWorkspace   = "workspace"
	WorkDirPolicyServerDir   = "server_dir"
	WorkDirPolicyCustom      = "custom"
	WorkDirPolicyNone        = "none"

	DisplayModeFull    = "full"
	DisplayModeCompact = "compact"
)

// FileConfig is the on-disk YAML shape. Pointer fields distinguish "not set"
// from "explicitly set to zero/false" so env and CLI layers can tell whether
// to override.
type FileConfig struct {
	EnginePath    string `yaml:"engine_path,omitempty"`
	EngineEdition string `yaml:"engine_edition,omitempty"`

	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
	ForcePort *bool  `yaml:"force_port,omitempty"`

	MaxSessions         *int    `yaml:"max_sessions,omitempty"`
	SessionTimeoutSec   *int    `yaml:"session_timeout,omitempty"`
	WorkerStartTimeout  string  `yaml:"worker_start_timeout,omitempty"`
	CommandTimeout      string  `yaml:"command_timeout,omitempty"`
	StreamInterval      string  `yaml:"stream_interval,omitempty"`
	MaxOutputTokens     *int    `yaml:"max_output_tokens,omitempty"`
	ResultDisplayMode   string  `yaml:"result_display_mode,omitempty"`
	LogFileLocation     string  `yaml:"log_file_location,omitempty"`
	CustomLogDirectory  string  `yaml:"custom_log_directory,omitempty"`
	WorkingDirPolicy    string  `yaml:"working_directory_policy,omitempty"`

	LogLevel    string `yaml:"log_level,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	Tracing TracingFileConfig `yaml:"tracing,omitempty"`
}

// TracingFileConfig is the YAML shape for the telemetry provider.
type TracingFileConfig struct {
	Enabled      *bool   `yaml:"enabled,omitempty"`
	Exporter     string  `yaml:"exporter,omitempty"` // grpc|http
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
}

// AppConfig is the fully resolved, typed configuration used at runtime.
type AppConfig struct {
	Version string

	EnginePath    string
	EngineEdition string

	Host      string
	Port      int
	ForcePort bool

	MaxSessions        int
	SessionTimeout     time.Duration
	WorkerStartTimeout time.Duration
	CommandTimeout     time.Duration
	StreamInterval     time.Duration
	MaxOutputTokens    int
	ResultDisplayMode  string
	LogFileLocation    string
	CustomLogDirectory string
	WorkingDirPolicy   string

	LogLevel    string
	LogService  string
	MetricsAddr string

	Tracing TracingConfig
}

// TracingConfig is the resolved telemetry.Config input.
type TracingConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}
