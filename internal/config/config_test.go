package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader("", "test-version")
	cfg, err := loader.Load(CLIOverrides{})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != 8765 {
		t.Errorf("expected Port=8765, got %d", cfg.Port)
	}
	if cfg.MaxSessions != 8 {
		t.Errorf("expected MaxSessions=8, got %d", cfg.MaxSessions)
	}
	if cfg.ResultDisplayMode != DisplayModeFull {
		t.Errorf("expected ResultDisplayMode=full, got %s", cfg.ResultDisplayMode)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	enginePath := filepath.Join(tmpDir, "engine")

	yamlContent := fmt.Sprintf(`
engine_path: %s
engine_edition: se
host: 0.0.0.0
port: 9999
max_sessions: 4
session_timeout: 900
result_display_mode: compact
working_directory_policy: workspace
`, enginePath)

	if err := os.WriteFile(configPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(configPath, "1.0.0")
	cfg, err := loader.Load(CLIOverrides{})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.EnginePath != enginePath {
		t.Errorf("expected EnginePath=%s, got %s", enginePath, cfg.EnginePath)
	}
	if cfg.Port != 9999 {
		t.Errorf("expected Port=9999, got %d", cfg.Port)
	}
	if cfg.MaxSessions != 4 {
		t.Errorf("expected MaxSessions=4, got %d", cfg.MaxSessions)
	}
	if cfg.SessionTimeout != 900*time.Second {
		t.Errorf("expected SessionTimeout=900s, got %v", cfg.SessionTimeout)
	}
	if cfg.ResultDisplayMode != DisplayModeCompact {
		t.Errorf("expected ResultDisplayMode=compact, got %s", cfg.ResultDisplayMode)
	}
}

func TestLoadCLIOverridesWinOverFileAndEnv(t *testing.T) {
	t.Setenv("STATSRV_PORT", "7000")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: 6000\n"), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader(configPath, "1.0.0")
	cfg, err := loader.Load(CLIOverrides{Port: 5000})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Port != 5000 {
		t.Errorf("expected CLI override Port=5000 to win, got %d", cfg.Port)
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	cfg := Defaults()
	cfg.ResultDisplayMode = "weird"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown ResultDisplayMode")
	}
}

func TestValidateRequiresCustomLogDirectoryWhenLocationCustom(t *testing.T) {
	cfg := Defaults()
	cfg.LogFileLocation = LogLocationCustom
	cfg.CustomLogDirectory = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error when log_file_location=custom with no directory")
	}
}

func TestHolderReloadOnlyTouchesHotReloadableFields(t *testing.T) {
	loader := NewLoader("", "1.0.0")
	initial, err := loader.Load(CLIOverrides{})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	initial.MaxSessions = 3 // simulate a cold-start-only field

	h := NewHolder(initial, loader, CLIOverrides{}, "")

	t.Setenv("STATSRV_LOG_LEVEL", "debug")
	t.Setenv("STATSRV_SESSION_TIMEOUT", "5m")

	if err := h.Reload(nil); err != nil { //nolint:staticcheck // nil context acceptable in this unit test
		t.Fatalf("Reload() failed: %v", err)
	}

	got := h.Get()
	if got.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug after reload, got %s", got.LogLevel)
	}
	if got.SessionTimeout != 5*time.Minute {
		t.Errorf("expected SessionTimeout=5m after reload, got %v", got.SessionTimeout)
	}
	if got.MaxSessions != 3 {
		t.Errorf("expected MaxSessions to remain untouched by reload, got %d", got.MaxSessions)
	}
}
