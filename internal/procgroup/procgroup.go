// Package procgroup provides cross-platform process-group spawn and kill
// primitives used by the worker's forceful termination stage. Each platform
// file provides the full Set/Kill/KillGroup surface directly so there is
// exactly one definition of each symbol per build.
package procgroup

import "errors"

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrKillFailed      = errors.New("kill operation failed")
)
