package host

import "errors"

// Host-specific errors
var (
	ErrHostClosed         = errors.New("host is closed")
	ErrHostAlreadyRunning = errors.New("host is already running")
	ErrInvalidConfig      = errors.New("invalid host configuration")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEntityNotFound     = errors.New("entity not found")
	ErrNoScriptComponent  = errors.New("entity has no script component")
	ErrUnknownOp          = errors.New("unknown console operation")
	ErrNotReady           = errors.New("scene is not loaded yet")
)
