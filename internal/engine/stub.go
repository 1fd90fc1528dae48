package engine

import (
	"io"
	"strings"

	"github.com/google/uuid"
)

// NewStubSession returns a session backed by canned output whose process has
// already exited with code. Relays and handlers can be exercised against it
// without spawning an engine.
func NewStubSession(stdout, stderr string, code int) *Session {
	sess := newSession(uuid.NewString(), nil)
	sess.Stdout = strings.NewReader(stdout)
	if stderr != "" {
		sess.Stderr = io.TeeReader(strings.NewReader(stderr), sess.tail)
	}
	sess.finish(code)
	return sess
}
