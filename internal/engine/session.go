package engine

import (
	"io"
	"sync"
	"time"
)

// stderrTailSize bounds how much trailing stderr is kept for ExitError.
const stderrTailSize = 2048

// Session is one running engine instance. Exactly one of four trigger paths
// ends it — wall-clock timeout, client abort, process exit, explicit stop —
// and all of them converge on Cancel, which is guarded to run once.
type Session struct {
	ID     string
	Stdout io.Reader
	// Stderr is nil in remote mode; the remote service folds diagnostics into
	// its response stream.
	Stderr io.Reader

	// OnTimeout, when set, runs once before termination when the wall-clock
	// ceiling fires. The relay uses it to emit a synthetic error event while
	// the transport is still writable.
	OnTimeout func()

	mu        sync.Mutex
	ended     bool
	timedOut  bool
	timer     *time.Timer
	terminate func()

	waitOnce sync.Once
	waitCh   chan struct{}
	exitCode int

	tail *tailBuffer
}

func newSession(id string, terminate func()) *Session {
	return &Session{
		ID:        id,
		terminate: terminate,
		waitCh:    make(chan struct{}),
		tail:      &tailBuffer{max: stderrTailSize},
	}
}

func (s *Session) startTimer(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.timer = time.AfterFunc(d, s.timeoutFired)
}

func (s *Session) timeoutFired() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.timedOut = true
	notify := s.OnTimeout
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
	s.Cancel()
}

// Cancel terminates the engine instance. It is idempotent: a timer firing
// after a client abort, or an abort after process exit, is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if s.timer != nil {
		s.timer.Stop()
	}
	term := s.terminate
	s.mu.Unlock()
	if term != nil {
		term()
	}
}

// finish records process exit. Exit is itself a trigger path, so it marks the
// session ended and stops the timeout timer.
func (s *Session) finish(code int) {
	s.mu.Lock()
	if !s.ended {
		s.ended = true
		if s.timer != nil {
			s.timer.Stop()
		}
	}
	s.exitCode = code
	s.mu.Unlock()
	s.waitOnce.Do(func() { close(s.waitCh) })
}

// TimedOut reports whether the wall-clock ceiling terminated this session.
func (s *Session) TimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timedOut
}

// StderrTail returns the last captured stderr output.
func (s *Session) StderrTail() string { return s.tail.String() }

// Wait blocks until the instance has exited and classifies the outcome:
// nil for exit 0, ErrTimeout when the ceiling fired, *ExitError otherwise.
// The exit code is returned in all cases.
func (s *Session) Wait() (int, error) {
	<-s.waitCh
	s.mu.Lock()
	code := s.exitCode
	timedOut := s.timedOut
	s.mu.Unlock()
	if timedOut {
		return code, ErrTimeout
	}
	if code != 0 {
		return code, &ExitError{Code: code, StderrTail: s.StderrTail()}
	}
	return code, nil
}

// tailBuffer keeps the trailing max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
