package scripts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedReference = errors.New("malformed script reference")
	ErrComponentDestroyed = errors.New("script component destroyed")
	ErrComponentExists    = errors.New("entity already has a script component")
	ErrDuplicateScript    = errors.New("script already registered")
	ErrNoLoader           = errors.New("script system has no loader")
	ErrLoadResultMismatch = errors.New("loader returned wrong number of modules")
	ErrBadArguments       = errors.New("arguments do not match method signature")
)

// ErrorSink is the host's channel for errors surfaced outside the normal
// call chain, such as load failures and script hook failures.
type ErrorSink func(err error)

// LoadError wraps a failed load request for one component.
type LoadError struct {
	Entity string
	URLs   []string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load scripts for %q [%s]: %v", e.Entity, strings.Join(e.URLs, ", "), e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// HookError wraps a failure raised by a script during a lifecycle hook,
// construction, or attribute refresh.
type HookError struct {
	Entity string
	Script string
	Hook   string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("script %q on %q: %s: %v", e.Script, e.Entity, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// recovered turns a recovered panic value into an error.
func recovered(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
