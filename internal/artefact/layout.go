// Package artefact lays out the well-known per-session, per-command
// directory tree graph exports land in. Grounded on the teacher's
// internal/pipeline/exec/ffmpeg/runner.go session-scoped output directory
// convention (SessionOutputDir, SegmentPattern), narrowed from one directory
// per streaming session to one directory per session+command pair since a
// session runs many commands over its lifetime.
package artefact

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultExt = ".png"

// Dir returns the directory graphs produced by sessionID running commandID
// are exported under: {root}/artefacts/{sessionID}/{commandID}.
func Dir(root, sessionID, commandID string) string {
	return filepath.Join(root, "artefacts", sessionID, commandID)
}

// Path returns the export path for a single named graph within Dir.
func Path(root, sessionID, commandID, name string) string {
	return filepath.Join(Dir(root, sessionID, commandID), name+defaultExt)
}

// EnsureDir creates the export directory for sessionID/commandID if absent.
func EnsureDir(root, sessionID, commandID string) (string, error) {
	dir := Dir(root, sessionID, commandID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artefact dir: %w", err)
	}
	return dir, nil
}

// FileName returns the export file name for a graph named name, for
// callers (the worker child) that already hold a command's artefact
// directory and only need to join a name onto it.
func FileName(name string) string {
	return name + defaultExt
}
