// Package engine defines the contract a worker process holds against the
// embedded STATISTICAL ENGINE and a stand-in implementation: the real
// third-party engine is a process-wide, non-thread-safe library exposing a
// single blocking "execute code and write to standard output" entry point
// plus a cooperative "break current execution" signal, and nothing about
// its actual identity is assumed here.
package engine

import (
	"context"
	"io"
)

// Engine is the minimal calling contract a worker process drives. Init runs
// once on the worker's main goroutine; every other method may be called
// from that same goroutine only, except Break, which must be safe to call
// concurrently with a RunCode/RunFile in progress.
type Engine interface {
	// Init performs one-time bring-up for edition (e.g. "SE", "MP", "BE").
	// Must run on the worker's main goroutine.
	Init(edition string) error

	// WarmUpGraphics forces the graphics subsystem to initialise by
	// creating a trivial dataset and rendering and discarding an image.
	// Implementations that embed no graphics subsystem may no-op.
	WarmUpGraphics() error

	// RunHeadless asks the engine to run with no visible window and
	// asks the OS to treat the process as background-only. Failure of
	// either is non-fatal; callers log and continue.
	RunHeadless() error

	// RunCode executes code, writing everything the engine produces to
	// out, and blocks until the run completes or ctx is cancelled via
	// Break.
	RunCode(ctx context.Context, code string, out io.Writer) error

	// RunFile executes the do-file at path the same way RunCode executes
	// a code string.
	RunFile(ctx context.Context, path string, out io.Writer) error

	// Break cooperatively interrupts the run in progress, if any. Safe
	// to call with no run in progress.
	Break()

	// DropSessionState clears session-scoped programs and macros,
	// called before a command starts so a previously interrupted run
	// cannot pollute the next one.
	DropSessionState()

	// GraphNames returns the graphs created since the last call to
	// ResetGraphs.
	GraphNames() []string

	// ResetGraphs clears the tracked graph list; called before each
	// command.
	ResetGraphs()

	// ExportGraph writes the named graph to an image file at path.
	ExportGraph(name, path string) error

	// Close releases engine resources.
	Close() error
}
