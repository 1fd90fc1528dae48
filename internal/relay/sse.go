// Package relay bridges a discovery engine session into an outbound
// Server-Sent-Events response with write-after-close-safe semantics.
package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

// Writer frames events as SSE data lines. All writes are guarded by a closed
// flag: writing after the client has gone is a silent no-op, and Close is
// idempotent.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewWriter prepares an SSE response on w. It fails when the underlying
// transport cannot flush incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by transport")
	}
	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send marshals v and writes one `data: <json>\n\n` frame.
func (s *Writer) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.SendRaw(string(data))
}

// SendRaw writes one frame with the payload verbatim (used for the chat
// stream's literal [DONE] sentinel).
func (s *Writer) SendRaw(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if _, err := s.w.Write([]byte("data: " + payload + "\n\n")); err != nil {
		// The client disconnected mid-write; further writes become no-ops.
		s.closed = true
		return nil
	}
	s.flusher.Flush()
	return nil
}

// Close marks the stream finished. Secondary closes are swallowed.
func (s *Writer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether the stream can still accept frames.
func (s *Writer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
