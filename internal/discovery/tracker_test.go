package discovery

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type memSnapshots struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func newMemSnapshots() *memSnapshots { return &memSnapshots{snaps: map[string]Snapshot{}} }

func (m *memSnapshots) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.State.ID] = snap
	return nil
}

func (m *memSnapshots) Load(_ context.Context, id string) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	return snap, ok, nil
}

func (m *memSnapshots) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}

func sseStream(lines ...string) StreamOpener {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("data: " + l + "\n\n")
	}
	return func(context.Context, string, string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(b.String())), nil
	}
}

func TestTrackerConsumesStreamToCompletion(t *testing.T) {
	open := sseStream(
		`{"type":"layer_start","layer":"web_search"}`,
		`not json, dropped`,
		`{"type":"opportunity_found","id":"op-1","title":"Chem Lab Internship"}`,
		`{"type":"complete","count":1}`,
		`{"type":"done","code":0}`,
	)
	snaps := newMemSnapshots()
	tracker := NewTracker(open, snaps, time.Minute)

	if err := tracker.Start(context.Background(), "chemistry", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	state := tracker.State()
	if state.Status != StatusComplete {
		t.Fatalf("status = %s", state.Status)
	}
	if len(state.Opportunities) != 1 {
		t.Fatalf("opportunities = %+v", state.Opportunities)
	}

	snap, ok, _ := snaps.Load(context.Background(), state.ID)
	if !ok || snap.State.Status != StatusComplete {
		t.Fatalf("final snapshot missing: ok=%v %+v", ok, snap.State)
	}
}

func TestTrackerTreatsCleanEOFAsComplete(t *testing.T) {
	open := sseStream(`{"type":"layer_start","layer":"web_search"}`)
	tracker := NewTracker(open, nil, time.Minute)

	if err := tracker.Start(context.Background(), "q", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := tracker.State().Status; got != StatusComplete {
		t.Fatalf("status = %s", got)
	}
}

func TestTrackerResumeExpiresStaleSession(t *testing.T) {
	snaps := newMemSnapshots()
	stale := NewState("stale-1", "q", time.Now().Add(-time.Hour))
	snaps.Save(context.Background(), Snapshot{State: stale, Heartbeat: time.Now().Add(-time.Hour)})

	tracker := NewTracker(nil, snaps, time.Minute)
	state, err := tracker.Resume(context.Background(), "stale-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if state.Status != StatusError || state.LastError != "session expired" {
		t.Fatalf("stale session not expired: %+v", state)
	}
}

func TestTrackerResumeKeepsFreshSession(t *testing.T) {
	snaps := newMemSnapshots()
	fresh := NewState("fresh-1", "q", time.Now())
	snaps.Save(context.Background(), Snapshot{State: fresh, Heartbeat: time.Now()})

	tracker := NewTracker(nil, snaps, time.Minute)
	state, err := tracker.Resume(context.Background(), "fresh-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if state.Status != StatusRunning {
		t.Fatalf("fresh session finalized: %+v", state)
	}
}

func TestTrackerResumeUnknownSession(t *testing.T) {
	tracker := NewTracker(nil, newMemSnapshots(), time.Minute)
	if _, err := tracker.Resume(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
