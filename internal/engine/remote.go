package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/campusbridge/discovery/config"
)

// Remote drives a hosted discovery engine over HTTP. The authenticated
// response body is treated as the event stream, behind the same Session
// abstraction as a local subprocess.
type Remote struct {
	cfg    config.EngineConfig
	client *http.Client
	logger *log.Logger
}

// NewRemote builds a remote-service launcher from engine config.
func NewRemote(cfg config.EngineConfig) *Remote {
	return &Remote{
		cfg:    cfg,
		client: &http.Client{}, // per-request contexts own the deadlines
		logger: log.New(log.Writer(), "[ENGINE] ", log.LstdFlags),
	}
}

type remoteRequest struct {
	Mode          string   `json:"mode"`
	Query         string   `json:"query,omitempty"`
	UserProfileID string   `json:"userProfileId,omitempty"`
	Sources       []string `json:"sources,omitempty"`
	FocusAreas    []string `json:"focusAreas,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// Start issues the discovery request and returns its body as the session
// stream. Cancellation aborts the request context, which closes the body.
func (r *Remote) Start(ctx context.Context, opts Options) (*Session, error) {
	if r.cfg.RemoteURL == "" {
		return nil, &StartError{Err: fmt.Errorf("engine.remote_url not configured")}
	}
	body, err := json.Marshal(remoteRequest{
		Mode:          string(opts.Mode),
		Query:         opts.Query,
		UserProfileID: opts.UserProfileID,
		Sources:       opts.Sources,
		FocusAreas:    opts.FocusAreas,
		Limit:         opts.Limit,
	})
	if err != nil {
		return nil, &StartError{Err: err}
	}

	// Detached from the caller ctx so Cancel stays the single teardown path;
	// a watcher below links the two.
	reqCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.cfg.RemoteURL+"/discover", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, &StartError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.RemoteToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.RemoteToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		return nil, &StartError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, &StartError{Err: fmt.Errorf("remote engine status %d: %s", resp.StatusCode, bytes.TrimSpace(tail))}
	}

	sess := newSession(uuid.NewString(), nil)
	sess.terminate = func() {
		cancel()
		resp.Body.Close()
	}
	// There is no subprocess exit code: the session finishes when the
	// response stream ends, cleanly or not.
	sess.Stdout = &streamEndReader{r: resp.Body, end: func() { sess.finish(0) }}
	r.logger.Printf("remote engine stream opened session=%s mode=%s", sess.ID, opts.Mode)

	go func() {
		<-ctx.Done()
		sess.Cancel()
	}()
	sess.startTimer(opts.Timeout)
	return sess, nil
}

// streamEndReader finishes the session once the upstream body stops
// producing, so Wait unblocks for remote sessions too.
type streamEndReader struct {
	r    io.ReadCloser
	end  func()
	once sync.Once
}

func (s *streamEndReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil {
		s.once.Do(s.end)
	}
	return n, err
}
