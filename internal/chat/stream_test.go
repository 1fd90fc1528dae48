package chat

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/campusbridge/discovery/internal/relay"
	"github.com/campusbridge/discovery/provider"
)

func streamFrames(t *testing.T, body string) []streamFrame {
	t.Helper()
	var out []streamFrame
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			out = append(out, streamFrame{Type: "[DONE]"})
			continue
		}
		var f streamFrame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			t.Fatalf("bad frame %q: %v", payload, err)
		}
		out = append(out, f)
	}
	return out
}

func TestStreamChunksAnswerAndEndsWithDone(t *testing.T) {
	prov := &scriptedProvider{responses: []provider.Response{
		{Content: "one two three four five six seven"},
	}}
	loop := NewLoop(prov, testRegistry())

	rec := httptest.NewRecorder()
	w, err := relay.NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := loop.Stream(context.Background(), w, nil, "hi"); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	frames := streamFrames(t, rec.Body.String())
	if len(frames) < 3 {
		t.Fatalf("frames = %+v", frames)
	}
	if frames[len(frames)-1].Type != "[DONE]" {
		t.Fatal("missing [DONE] sentinel")
	}
	var text strings.Builder
	for _, f := range frames {
		if f.Type == "text-delta" {
			text.WriteString(f.Content)
		}
	}
	if strings.Join(strings.Fields(text.String()), " ") != "one two three four five six seven" {
		t.Fatalf("reassembled text = %q", text.String())
	}
}

func TestStreamEmitsToolStatusAndTriggerFrames(t *testing.T) {
	prov := &scriptedProvider{responses: []provider.Response{
		toolCallResp("echo_tool", `{}`),
		toolCallResp(ToolTriggerDiscovery, `{"query":"space camps"}`),
	}}
	loop := NewLoop(prov, testRegistry())

	rec := httptest.NewRecorder()
	w, err := relay.NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := loop.Stream(context.Background(), w, nil, "hi"); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var sawStatus, sawTrigger bool
	for _, f := range streamFrames(t, rec.Body.String()) {
		switch f.Type {
		case "tool-status":
			sawStatus = true
		case "trigger_discovery":
			if f.Query != "space camps" {
				t.Fatalf("trigger query = %q", f.Query)
			}
			sawTrigger = true
		}
	}
	if !sawStatus || !sawTrigger {
		t.Fatalf("status=%v trigger=%v", sawStatus, sawTrigger)
	}
}
