package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/campusbridge/discovery/internal/engine"
	"github.com/campusbridge/discovery/internal/protocol"
)

func frames(t *testing.T, body string) []protocol.DiscoveryEvent {
	t.Helper()
	var out []protocol.DiscoveryEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev protocol.DiscoveryEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

func TestRelayForwardsEventsAndIsolatesMalformedLines(t *testing.T) {
	stdout := strings.Join([]string{
		`{"type":"layer_start","layer":"query_generation"}`,
		`this line is not JSON at all`,
		`{"type":"layer_complete","layer":"query_generation"}`,
		`{"type":"totally_unknown"}`,
		`{"type":"complete","count":4}`,
	}, "\n") + "\n"

	sess := engine.NewStubSession(stdout, "", 0)
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	New(nil).Run(context.Background(), sess, w)

	evs := frames(t, rec.Body.String())
	if len(evs) != 4 {
		t.Fatalf("expected 4 frames got %d: %+v", len(evs), evs)
	}
	if evs[0].Type != protocol.EventLayerStart || evs[1].Type != protocol.EventLayerComplete {
		t.Fatalf("malformed line not isolated: %+v", evs)
	}
	last := evs[len(evs)-1]
	if last.Type != protocol.EventDone || last.Code == nil || *last.Code != 0 {
		t.Fatalf("stream did not end with done(0): %+v", last)
	}
}

func TestRelayCrashProducesTruncatedErrorThenDone(t *testing.T) {
	traceback := "Traceback (most recent call last):\n" +
		strings.Repeat("  File \"engine.py\", line 42, in crawl\n", 20) +
		"ValueError: extraction failed"

	sess := engine.NewStubSession("", traceback, 1)
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	New(nil).Run(context.Background(), sess, w)

	evs := frames(t, rec.Body.String())
	if len(evs) < 2 {
		t.Fatalf("expected error+done, got %+v", evs)
	}
	last := evs[len(evs)-1]
	if last.Type != protocol.EventDone || last.Code == nil || *last.Code != 1 {
		t.Fatalf("missing done(1): %+v", last)
	}
	var sawFailure bool
	for _, ev := range evs {
		if ev.Type == protocol.EventError && strings.HasPrefix(ev.Message, "Discovery failed: ") {
			sawFailure = true
			if len(ev.Message) > MaxErrorLen {
				t.Fatalf("error frame too long: %d chars", len(ev.Message))
			}
		}
	}
	if !sawFailure {
		t.Fatalf("no failure frame in %+v", evs)
	}
}

func TestRelaySuppressesNoisyStderr(t *testing.T) {
	stderr := strings.Join([]string{
		"DEBUG starting crawler",
		"DeprecationWarning: old API",
		"fatal: engine misconfigured",
	}, "\n") + "\n"

	sess := engine.NewStubSession(`{"type":"complete","count":0}`+"\n", stderr, 0)
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	New(nil).Run(context.Background(), sess, w)

	var errFrames []string
	for _, ev := range frames(t, rec.Body.String()) {
		if ev.Type == protocol.EventError {
			errFrames = append(errFrames, ev.Message)
		}
	}
	if len(errFrames) != 1 || errFrames[0] != "fatal: engine misconfigured" {
		t.Fatalf("unexpected error frames: %v", errFrames)
	}
}

func TestWriterSendAfterCloseIsNoop(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.Close()
	before := rec.Body.Len()
	if err := w.Send(protocol.DoneEvent(0)); err != nil {
		t.Fatalf("Send after close errored: %v", err)
	}
	if rec.Body.Len() != before {
		t.Fatal("write happened after close")
	}
	w.Close() // second close is a no-op too
}

func TestWriterSetsSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, err := NewWriter(rec); err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
		t.Fatalf("Cache-Control = %q", cc)
	}
}
