package engine

import (
	"sync"
	"testing"
	"time"
)

func TestCancelRunsTerminateOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	sess := newSession("s1", func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Cancel()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("terminate ran %d times", calls)
	}
}

func TestCancelAfterFinishIsNoop(t *testing.T) {
	called := false
	sess := newSession("s2", func() { called = true })
	sess.finish(0)
	sess.Cancel()
	if called {
		t.Fatal("terminate ran after process exit")
	}
	code, err := sess.Wait()
	if code != 0 || err != nil {
		t.Fatalf("Wait: code=%d err=%v", code, err)
	}
}

func TestTimeoutClassification(t *testing.T) {
	sess := newSession("s3", nil)
	fired := make(chan struct{})
	sess.OnTimeout = func() { close(fired) }
	sess.startTimer(5 * time.Millisecond)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
	sess.finish(-1)

	if !sess.TimedOut() {
		t.Fatal("TimedOut false after ceiling fired")
	}
	if _, err := sess.Wait(); err != ErrTimeout {
		t.Fatalf("expected ErrTimeout got %v", err)
	}
}

func TestTimerStoppedByExit(t *testing.T) {
	sess := newSession("s4", nil)
	timedOut := make(chan struct{})
	sess.OnTimeout = func() { close(timedOut) }
	sess.startTimer(30 * time.Millisecond)
	sess.finish(0)

	select {
	case <-timedOut:
		t.Fatal("timer fired after exit")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestWaitReturnsExitError(t *testing.T) {
	sess := newSession("s5", nil)
	sess.tail.Write([]byte("Traceback (most recent call last):\nValueError: boom"))
	sess.finish(1)
	code, err := sess.Wait()
	if code != 1 {
		t.Fatalf("code = %d", code)
	}
	exitErr, ok := err.(*ExitError)
	if !ok {
		t.Fatalf("expected *ExitError got %T", err)
	}
	if exitErr.StderrTail == "" {
		t.Fatal("stderr tail not captured")
	}
}

func TestTailBufferKeepsTrailingBytes(t *testing.T) {
	tb := &tailBuffer{max: 8}
	tb.Write([]byte("0123456789abcdef"))
	if got := tb.String(); got != "89abcdef" {
		t.Fatalf("tail = %q", got)
	}
}
