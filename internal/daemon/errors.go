package daemon

import "errors"

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("daemon already started")

// ErrNotStarted is returned by Shutdown when Start was never called.
var ErrNotStarted = errors.New("daemon not started")
