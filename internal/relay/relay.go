package relay

import (
	"bufio"
	"context"
	"log"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/campusbridge/discovery/internal/engine"
	"github.com/campusbridge/discovery/internal/protocol"
)

// MaxErrorLen bounds synthetic error event messages.
const MaxErrorLen = 200

var (
	eventsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_events_forwarded_total",
		Help: "Engine events forwarded to clients over SSE.",
	})
	linesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_lines_dropped_total",
		Help: "Engine stdout lines rejected by the protocol parser.",
	})
	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_sessions_finished_total",
		Help: "Discovery sessions by outcome.",
	}, []string{"outcome"})
)

// Sink receives structured cards as they stream by. Persistence failures are
// tolerated per event; the stream keeps flowing.
type Sink interface {
	SaveOpportunity(ctx context.Context, ev protocol.DiscoveryEvent) error
}

// Relay converts a session's raw output into a framed SSE stream. Only lines
// that parse as protocol events are forwarded; everything else is engine
// debug output and stays server-side.
type Relay struct {
	sink   Sink
	logger *log.Logger
}

// New builds a relay. sink may be nil when results are not persisted.
func New(sink Sink) *Relay {
	return &Relay{sink: sink, logger: log.New(log.Writer(), "[RELAY] ", log.LstdFlags)}
}

// Run pumps the session to the writer until the engine ends, then emits the
// terminal done frame and closes the writer. It always leaves the session
// cancelled.
func (r *Relay) Run(ctx context.Context, sess *engine.Session, w *Writer) {
	defer sess.Cancel()
	defer w.Close()

	// The timeout error must reach the client before termination so the
	// connection does not simply vanish.
	sess.OnTimeout = func() {
		_ = w.Send(protocol.ErrorEvent("discovery timed out before completing; partial results were kept", MaxErrorLen))
	}

	var stderrWG sync.WaitGroup
	if sess.Stderr != nil {
		stderrWG.Add(1)
		go func() {
			defer stderrWG.Done()
			r.pumpStderr(sess, w)
		}()
	}

	scanner := bufio.NewScanner(sess.Stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		ev, err := protocol.ParseLine(line)
		if err != nil {
			linesDropped.Inc()
			r.logger.Printf("session %s: engine output: %s", sess.ID, strings.TrimSpace(string(line)))
			continue
		}
		if ev.Type == protocol.EventOpportunityFound && r.sink != nil {
			if err := r.sink.SaveOpportunity(ctx, ev); err != nil {
				r.logger.Printf("session %s: persist opportunity %s: %v", sess.ID, ev.ID, err)
			}
		}
		eventsForwarded.Inc()
		_ = w.Send(ev)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Printf("session %s: stdout read: %v", sess.ID, err)
	}
	stderrWG.Wait()

	code, err := sess.Wait()
	switch {
	case err == engine.ErrTimeout:
		// Error frame already sent from OnTimeout.
		sessionsFinished.WithLabelValues("timeout").Inc()
	case err != nil:
		_ = w.Send(protocol.ErrorEvent("Discovery failed: "+collapse(sess.StderrTail()), MaxErrorLen))
		sessionsFinished.WithLabelValues("failed").Inc()
	default:
		sessionsFinished.WithLabelValues("complete").Inc()
	}
	_ = w.Send(protocol.DoneEvent(code))
}

// noisyStderrPrefixes mark engine chatter that is suppressed rather than
// surfaced to clients.
var noisyStderrPrefixes = []string{
	"DEBUG", "INFO", "[debug]",
	"DeprecationWarning", "FutureWarning", "UserWarning",
	"warnings.warn", "WARNING",
}

// pumpStderr forwards non-noise stderr lines as synthetic error events so
// clients learn about engine-side problems without being flooded.
func (r *Relay) pumpStderr(sess *engine.Session, w *Writer) {
	scanner := bufio.NewScanner(sess.Stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isNoise(line) {
			r.logger.Printf("session %s: engine stderr: %s", sess.ID, line)
			continue
		}
		_ = w.Send(protocol.ErrorEvent(line, MaxErrorLen))
	}
}

func isNoise(line string) bool {
	for _, p := range noisyStderrPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "engine exited abnormally"
	}
	return s
}
