package loader

import (
	"errors"
	"fmt"
)

// Phase indicates where in the pipeline a load failed.
type Phase string

const (
	PhaseFetch    Phase = "fetch"    // reading bytes
	PhaseDecode   Phase = "decode"   // payload decompression
	PhaseCompile  Phase = "compile"  // JavaScript parse
	PhaseEvaluate Phase = "evaluate" // running the module body
	PhaseResolve  Phase = "resolve"  // native registry lookup
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnknownNative     = errors.New("unknown native module")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrInvalidPath       = errors.New("invalid resource path")
)

// Error is a failed load of one URL.
type Error struct {
	Phase Phase
	URL   string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(phase Phase, url string, err error) *Error {
	return &Error{Phase: phase, URL: url, Err: err}
}
