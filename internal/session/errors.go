package session

import "errors"

var (
	// ErrPoolFull is returned by CreateSession when max_sessions is saturated.
	ErrPoolFull = errors.New("session pool full")
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrBusy is returned by Acquire when the session already has an active lease.
	ErrBusy = errors.New("session busy")
	// ErrInitFailed is returned when worker spawn fails during create.
	ErrInitFailed = errors.New("session init failed")
)
