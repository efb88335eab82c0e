package worker

import "errors"

var (
	// ErrNotReady is returned when a command is sent before the worker's
	// ready handshake completes.
	ErrNotReady = errors.New("worker not ready")
	// ErrDead is returned when a command is sent to a worker whose process
	// has already exited.
	ErrDead = errors.New("worker process exited")
	// ErrStartTimeout is returned by Spawn when the child does not emit its
	// ready frame within worker_start_timeout.
	ErrStartTimeout = errors.New("worker did not become ready in time")
)
