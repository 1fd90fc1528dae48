package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/campusbridge/discovery/internal/engine"
	"github.com/campusbridge/discovery/internal/relay"
)

type stubEngine struct {
	stdout string
	stderr string
	code   int
	opts   engine.Options
}

func (s *stubEngine) Start(_ context.Context, opts engine.Options) (*engine.Session, error) {
	s.opts = opts
	return engine.NewStubSession(s.stdout, s.stderr, s.code), nil
}

func TestStreamRequiresQuery(t *testing.T) {
	e := echo.New()
	handler := &DiscoverHandler{}

	req := httptest.NewRequest(http.MethodGet, "/api/discover/stream", nil)
	rec := httptest.NewRecorder()

	err := handler.stream(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestStreamRejectsUnsanitizableQuery(t *testing.T) {
	e := echo.New()
	handler := &DiscoverHandler{}

	req := httptest.NewRequest(http.MethodGet, "/api/discover/stream?query=%21%21%40%40", nil)
	rec := httptest.NewRecorder()

	err := handler.stream(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestStreamRelaysEngineEvents(t *testing.T) {
	e := echo.New()
	eng := &stubEngine{stdout: `{"type":"complete","count":2}` + "\n"}
	handler := &DiscoverHandler{Engine: eng, Relay: relay.New(nil), Timeout: time.Minute}

	req := httptest.NewRequest(http.MethodGet, "/api/discover/stream?query=AI%2FML+internships%21%21+2024&userProfileId=u7", nil)
	rec := httptest.NewRecorder()

	if err := handler.stream(e.NewContext(req, rec)); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if eng.opts.Query != "AIML internships 2024" {
		t.Fatalf("query not sanitized: %q", eng.opts.Query)
	}
	if eng.opts.UserProfileID != "u7" {
		t.Fatalf("profile = %q", eng.opts.UserProfileID)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var sawComplete, sawDone bool
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, `"type":"complete"`) {
			sawComplete = true
		}
		if strings.Contains(line, `"type":"done"`) {
			sawDone = true
		}
	}
	if !sawComplete || !sawDone {
		t.Fatalf("complete=%v done=%v body=%q", sawComplete, sawDone, rec.Body.String())
	}
}
