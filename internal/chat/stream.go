package chat

import (
	"context"
	"strings"
	"time"

	"github.com/campusbridge/discovery/internal/relay"
	"github.com/campusbridge/discovery/internal/store"
	"github.com/campusbridge/discovery/provider"
)

// chunkWords controls how many words each text-delta frame carries. Small
// chunks make the answer feel typed out without flooding the connection.
const (
	chunkWords = 3
	chunkDelay = 20 * time.Millisecond
)

type streamFrame struct {
	Type          string              `json:"type"`
	Content       string              `json:"content,omitempty"`
	Status        string              `json:"status,omitempty"`
	Tool          string              `json:"tool,omitempty"`
	Query         string              `json:"query,omitempty"`
	Opportunities []store.Opportunity `json:"opportunities,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// Stream runs one chat turn and writes its progress as SSE frames: tool
// status lines while tools execute, a discovery hand-off frame when the model
// escalates to a live search, surfaced opportunities, then the final answer
// as word-chunked text deltas, closed by a [DONE] sentinel.
func (l *Loop) Stream(ctx context.Context, w *relay.Writer, history []provider.Message, userMsg string) error {
	defer func() {
		_ = w.SendRaw("[DONE]")
		w.Close()
	}()

	prev := l.OnStep
	l.OnStep = func(step ToolStep) {
		frame := streamFrame{Type: "tool-status", Tool: step.Name, Status: step.Status}
		if step.Failed {
			frame.Error = "tool failed"
		}
		_ = w.Send(frame)
		if prev != nil {
			prev(step)
		}
	}
	defer func() { l.OnStep = prev }()

	reply, err := l.Run(ctx, history, userMsg)
	if err != nil {
		_ = w.Send(streamFrame{Type: "error", Error: err.Error()})
		return err
	}

	if reply.DiscoveryQuery != "" {
		_ = w.Send(streamFrame{Type: "trigger_discovery", Query: reply.DiscoveryQuery})
	}
	if len(reply.Opportunities) > 0 {
		_ = w.Send(streamFrame{Type: "opportunities", Opportunities: reply.Opportunities})
	}

	words := strings.Fields(reply.Message)
	for i := 0; i < len(words); i += chunkWords {
		end := i + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}
		if err := w.Send(streamFrame{Type: "text-delta", Content: chunk}); err != nil || w.Closed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chunkDelay):
		}
	}
	return nil
}
