package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with precedence: CLI > ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a configuration loader for the given YAML path (may be
// empty, in which case env/CLI/defaults alone produce the config).
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// CLIOverrides holds flag values from cmd/statsrv; a zero value for any
// field means "not passed on the command line, don't override".
type CLIOverrides struct {
	Host               string
	Port               int
	EnginePath         string
	EngineEdition      string
	LogLevel           string
	MetricsAddr        string
	ConfigPath         string
}

// Load resolves the final AppConfig and validates it. On validation failure
// the returned AppConfig is the best-effort merged value and the caller must
// not use it.
func (l *Loader) Load(cli CLIOverrides) (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	mergeEnvConfig(&cfg)
	mergeCLIConfig(&cfg, cli)

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile parses a YAML file in strict mode: unknown fields are a hard
// error so a typo in the config doesn't silently get ignored.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- config path is operator-supplied via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) {
	if src.EnginePath != "" {
		dst.EnginePath = os.ExpandEnv(src.EnginePath)
	}
	if src.EngineEdition != "" {
		dst.EngineEdition = src.EngineEdition
	}
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port > 0 {
		dst.Port = src.Port
	}
	if src.ForcePort != nil {
		dst.ForcePort = *src.ForcePort
	}
	if src.MaxSessions != nil {
		dst.MaxSessions = *src.MaxSessions
	}
	if src.SessionTimeoutSec != nil {
		dst.SessionTimeout = time.Duration(*src.SessionTimeoutSec) * time.Second
	}
	if src.WorkerStartTimeout != "" {
		if d, err := time.ParseDuration(src.WorkerStartTimeout); err == nil {
			dst.WorkerStartTimeout = d
		}
	}
	if src.CommandTimeout != "" {
		if d, err := time.ParseDuration(src.CommandTimeout); err == nil {
			dst.CommandTimeout = d
		}
	}
	if src.StreamInterval != "" {
		if d, err := time.ParseDuration(src.StreamInterval); err == nil {
			dst.StreamInterval = d
		}
	}
	if src.MaxOutputTokens != nil {
		dst.MaxOutputTokens = *src.MaxOutputTokens
	}
	if src.ResultDisplayMode != "" {
		dst.ResultDisplayMode = src.ResultDisplayMode
	}
	if src.LogFileLocation != "" {
		dst.LogFileLocation = src.LogFileLocation
	}
	if src.CustomLogDirectory != "" {
		dst.CustomLogDirectory = os.ExpandEnv(src.CustomLogDirectory)
	}
	if src.WorkingDirPolicy != "" {
		dst.WorkingDirPolicy = src.WorkingDirPolicy
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.MetricsAddr != "" {
		dst.MetricsAddr = src.MetricsAddr
	}
	if src.Tracing.Enabled != nil {
		dst.Tracing.Enabled = *src.Tracing.Enabled
	}
	if src.Tracing.Exporter != "" {
		dst.Tracing.Exporter = src.Tracing.Exporter
	}
	if src.Tracing.Endpoint != "" {
		dst.Tracing.Endpoint = src.Tracing.Endpoint
	}
	if src.Tracing.SamplingRate > 0 {
		dst.Tracing.SamplingRate = src.Tracing.SamplingRate
	}
}

// mergeEnvConfig overlays STATSRV_* environment variables, highest
// precedence below explicit CLI flags.
func mergeEnvConfig(cfg *AppConfig) {
	cfg.EnginePath = ParseString("STATSRV_ENGINE_PATH", cfg.EnginePath)
	cfg.EngineEdition = ParseString("STATSRV_ENGINE_EDITION", cfg.EngineEdition)
	cfg.Host = ParseString("STATSRV_HOST", cfg.Host)
	cfg.Port = ParseInt("STATSRV_PORT", cfg.Port)
	cfg.ForcePort = ParseBool("STATSRV_FORCE_PORT", cfg.ForcePort)
	cfg.MaxSessions = ParseInt("STATSRV_MAX_SESSIONS", cfg.MaxSessions)
	cfg.SessionTimeout = ParseDuration("STATSRV_SESSION_TIMEOUT", cfg.SessionTimeout)
	cfg.WorkerStartTimeout = ParseDuration("STATSRV_WORKER_START_TIMEOUT", cfg.WorkerStartTimeout)
	cfg.CommandTimeout = ParseDuration("STATSRV_COMMAND_TIMEOUT", cfg.CommandTimeout)
	cfg.StreamInterval = ParseDuration("STATSRV_STREAM_INTERVAL", cfg.StreamInterval)
	cfg.MaxOutputTokens = ParseInt("STATSRV_MAX_OUTPUT_TOKENS", cfg.MaxOutputTokens)
	cfg.ResultDisplayMode = ParseString("STATSRV_RESULT_DISPLAY_MODE", cfg.ResultDisplayMode)
	cfg.LogFileLocation = ParseString("STATSRV_LOG_FILE_LOCATION", cfg.LogFileLocation)
	cfg.CustomLogDirectory = ParseString("STATSRV_CUSTOM_LOG_DIRECTORY", cfg.CustomLogDirectory)
	cfg.WorkingDirPolicy = ParseString("STATSRV_WORKING_DIRECTORY_POLICY", cfg.WorkingDirPolicy)
	cfg.LogLevel = ParseString("STATSRV_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsAddr = ParseString("STATSRV_METRICS_ADDR", cfg.MetricsAddr)
	cfg.Tracing.Enabled = ParseBool("STATSRV_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = ParseString("STATSRV_TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = ParseString("STATSRV_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
}

// mergeCLIConfig applies flag values passed on the command line; these win
// over everything else since they are the most explicit, most recent
// expression of operator intent.
func mergeCLIConfig(cfg *AppConfig, cli CLIOverrides) {
	if cli.Host != "" {
		cfg.Host = cli.Host
	}
	if cli.Port != 0 {
		cfg.Port = cli.Port
	}
	if cli.EnginePath != "" {
		cfg.EnginePath = cli.EnginePath
	}
	if cli.EngineEdition != "" {
		cfg.EngineEdition = cli.EngineEdition
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.MetricsAddr != "" {
		cfg.MetricsAddr = cli.MetricsAddr
	}
}
