package discovery

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusbridge/discovery/internal/protocol"
)

// StreamOpener opens the SSE transport for a query. Injected so the tracker
// is testable without a server.
type StreamOpener func(ctx context.Context, query, profileID string) (io.ReadCloser, error)

// Snapshot is a persisted session state plus heartbeat, enabling
// resume-after-navigation and stale-session detection.
type Snapshot struct {
	State     DiscoveryState `json:"state"`
	Heartbeat time.Time      `json:"heartbeat"`
}

// SnapshotStore persists session snapshots keyed by session id.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, bool, error)
	Delete(ctx context.Context, id string) error
}

// Tracker owns one discovery session on the consuming side: it opens the
// event stream, folds events through Reduce, and keeps a resumable snapshot.
type Tracker struct {
	open   StreamOpener
	snaps  SnapshotStore
	expiry time.Duration
	logger *log.Logger

	// OnEvent, when set, observes each (event, reduced state) pair. Used by
	// the CLI watcher to render progress.
	OnEvent func(ev protocol.DiscoveryEvent, state DiscoveryState)

	mu     sync.Mutex
	state  DiscoveryState
	cancel context.CancelFunc
}

// NewTracker builds a tracker. snaps may be nil to disable persistence.
func NewTracker(open StreamOpener, snaps SnapshotStore, expiry time.Duration) *Tracker {
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	return &Tracker{
		open:   open,
		snaps:  snaps,
		expiry: expiry,
		logger: log.New(log.Writer(), "[TRACKER] ", log.LstdFlags),
	}
}

// State returns the current reduced state.
func (t *Tracker) State() DiscoveryState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start resets state and consumes the stream until the terminal done event,
// transport close, or Stop. It blocks; callers stream from a goroutine when
// they need concurrency.
func (t *Tracker) Start(ctx context.Context, query, profileID string) error {
	runCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	if t.state.Status == StatusRunning && t.cancel != nil {
		t.mu.Unlock()
		cancel()
		return fmt.Errorf("discovery already running")
	}
	t.cancel = cancel
	t.state = NewState(uuid.NewString(), query, time.Now())
	t.mu.Unlock()

	body, err := t.open(runCtx, query, profileID)
	if err != nil {
		cancel()
		t.finalize(StatusError, fmt.Sprintf("open stream: %v", err))
		return err
	}
	defer body.Close()
	defer cancel()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		ev, err := protocol.ParseLine([]byte(payload))
		if err != nil {
			t.logger.Printf("dropping frame: %v", err)
			continue
		}
		t.apply(runCtx, ev)
		if ev.Terminal() {
			break
		}
	}

	t.mu.Lock()
	running := t.state.Status == StatusRunning
	t.mu.Unlock()
	if running {
		if runCtx.Err() != nil {
			// Stop() or caller cancellation: aborted, items kept.
			t.finalize(StatusError, "discovery stopped")
		} else {
			// Transport closed without a done frame; treat as completion.
			t.finalize(StatusComplete, "")
		}
	}
	return nil
}

func (t *Tracker) apply(ctx context.Context, ev protocol.DiscoveryEvent) {
	t.mu.Lock()
	t.state = Reduce(t.state, ev, time.Now())
	state := t.state
	hook := t.OnEvent
	t.mu.Unlock()
	if hook != nil {
		hook(ev, state)
	}
	t.persist(ctx, state)
}

func (t *Tracker) persist(ctx context.Context, state DiscoveryState) {
	if t.snaps == nil {
		return
	}
	if err := t.snaps.Save(ctx, Snapshot{State: state, Heartbeat: time.Now()}); err != nil {
		t.logger.Printf("snapshot save: %v", err)
	}
}

func (t *Tracker) finalize(st Status, message string) {
	t.mu.Lock()
	if !t.state.Terminal() {
		if message != "" {
			t.state.LastError = message
		}
		t.state.finalize(st, time.Now())
	}
	state := t.state
	t.mu.Unlock()
	t.persist(context.Background(), state)
}

// Stop closes the transport and marks the session aborted without losing
// already-collected items. Server-side cleanup follows from the disconnect.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Clear discards the session entirely, including any persisted snapshot.
func (t *Tracker) Clear(ctx context.Context) {
	t.mu.Lock()
	id := t.state.ID
	t.state = DiscoveryState{Status: StatusIdle}
	t.mu.Unlock()
	if t.snaps != nil && id != "" {
		_ = t.snaps.Delete(ctx, id)
	}
}

// Resume loads a persisted session. A snapshot whose heartbeat is older than
// the expiry window belongs to a server-side process that is long gone; it is
// finalized as a stale error instead of leaving the client running forever.
func (t *Tracker) Resume(ctx context.Context, id string) (DiscoveryState, error) {
	if t.snaps == nil {
		return DiscoveryState{}, fmt.Errorf("session persistence disabled")
	}
	snap, ok, err := t.snaps.Load(ctx, id)
	if err != nil {
		return DiscoveryState{}, err
	}
	if !ok {
		return DiscoveryState{}, fmt.Errorf("session %s not found", id)
	}
	state := snap.State
	if state.Status == StatusRunning && time.Since(snap.Heartbeat) > t.expiry {
		state.LastError = "session expired"
		state.finalize(StatusError, time.Now())
	}
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
	return state, nil
}
