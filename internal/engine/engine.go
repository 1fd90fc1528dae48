// Package engine obtains a running discovery engine instance — either a local
// subprocess or a remote HTTP+SSE service — and exposes its raw output as a
// byte stream behind one Session abstraction with a single idempotent
// termination path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Mode selects a batch run profile for the engine invocation.
type Mode string

const (
	ModeQuick Mode = "quick"
	ModeBatch Mode = "batch"
	ModeDaily Mode = "daily"
)

// Options parameterize one engine invocation. Query must already be
// sanitized for quick discovery (see SanitizeQuery).
type Options struct {
	Mode          Mode
	Query         string
	UserProfileID string
	Sources       []string
	FocusAreas    []string
	Limit         int
	Timeout       time.Duration
}

// Engine starts discovery engine instances.
type Engine interface {
	Start(ctx context.Context, opts Options) (*Session, error)
}

// ErrTimeout marks a session terminated by the wall-clock ceiling. UIs show a
// "took too long" message for this case, distinct from a crash.
var ErrTimeout = errors.New("discovery engine timed out")

// StartError means the engine never produced a running instance.
type StartError struct{ Err error }

func (e *StartError) Error() string {
	return fmt.Sprintf("discovery engine failed to start: %v", e.Err)
}
func (e *StartError) Unwrap() error { return e.Err }

// ExitError means the engine ran but exited non-zero. StderrTail holds the
// last captured stderr output for diagnostics.
type ExitError struct {
	Code       int
	StderrTail string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("discovery engine exited with code %d", e.Code)
}
