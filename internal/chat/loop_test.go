package chat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/campusbridge/discovery/internal/store"
	"github.com/campusbridge/discovery/provider"
)

// scriptedProvider returns canned responses in order; the last one repeats.
type scriptedProvider struct {
	responses []provider.Response
	calls     int
	requests  []provider.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req provider.Request) (provider.Response, error) {
	p.requests = append(p.requests, req)
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return p.responses[i], nil
}

func (p *scriptedProvider) Healthy(context.Context) bool { return true }

func testRegistry() *Registry {
	r := &Registry{tools: map[string]Tool{}}
	r.add(Tool{
		Def: provider.ToolDef{Name: "echo_tool"},
		Run: func(_ context.Context, args json.RawMessage) (string, []store.Opportunity, error) {
			return string(args), nil, nil
		},
	})
	r.add(Tool{
		Def: provider.ToolDef{Name: ToolTriggerDiscovery},
		Run: func(context.Context, json.RawMessage) (string, []store.Opportunity, error) {
			return "", nil, nil
		},
	})
	return r
}

func toolCallResp(name, args string) provider.Response {
	return provider.Response{ToolCalls: []provider.ToolCall{{ID: "call-1", Name: name, Arguments: json.RawMessage(args)}}}
}

func TestLoopStopsAtIterationCeiling(t *testing.T) {
	prov := &scriptedProvider{responses: []provider.Response{toolCallResp("echo_tool", `{}`)}}
	loop := NewLoop(prov, testRegistry())

	_, err := loop.Run(context.Background(), nil, "hi")
	if err != ErrTooManyToolCalls {
		t.Fatalf("err = %v", err)
	}
	if prov.calls != MaxToolIterations {
		t.Fatalf("provider called %d times, want %d", prov.calls, MaxToolIterations)
	}
}

func TestLoopReturnsPlainAnswer(t *testing.T) {
	prov := &scriptedProvider{responses: []provider.Response{
		toolCallResp("echo_tool", `{"q":"x"}`),
		{Content: "here you go"},
	}}
	loop := NewLoop(prov, testRegistry())

	reply, err := loop.Run(context.Background(), nil, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reply.Message != "here you go" {
		t.Fatalf("message = %q", reply.Message)
	}
	if len(reply.Steps) != 1 || reply.Steps[0].Name != "echo_tool" {
		t.Fatalf("steps = %+v", reply.Steps)
	}

	// The tool result must have been fed back as a tool message.
	last := prov.requests[1].Messages
	found := false
	for _, m := range last {
		if m.Role == "tool" && m.ToolCallID == "call-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("tool result not in follow-up request")
	}
}

func TestLoopToleratesToolFailure(t *testing.T) {
	reg := &Registry{tools: map[string]Tool{}}
	reg.add(Tool{
		Def: provider.ToolDef{Name: "broken_tool"},
		Run: func(context.Context, json.RawMessage) (string, []store.Opportunity, error) {
			return "", nil, context.DeadlineExceeded
		},
	})
	prov := &scriptedProvider{responses: []provider.Response{
		toolCallResp("broken_tool", `{}`),
		{Content: "sorry, that lookup failed"},
	}}
	loop := NewLoop(prov, reg)

	reply, err := loop.Run(context.Background(), nil, "hi")
	if err != nil {
		t.Fatalf("tool failure leaked: %v", err)
	}
	if !reply.Steps[0].Failed {
		t.Fatal("step not marked failed")
	}
	var sawError bool
	for _, m := range prov.requests[1].Messages {
		if m.Role == "tool" && strings.Contains(m.Content, "error") {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("error payload not fed back to model")
	}
}

func TestLoopHandsOffDiscovery(t *testing.T) {
	prov := &scriptedProvider{responses: []provider.Response{
		toolCallResp(ToolTriggerDiscovery, `{"query":"marine biology internships"}`),
	}}
	loop := NewLoop(prov, testRegistry())

	reply, err := loop.Run(context.Background(), nil, "find marine biology internships")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reply.DiscoveryQuery != "marine biology internships" {
		t.Fatalf("discovery query = %q", reply.DiscoveryQuery)
	}
	if prov.calls != 1 {
		t.Fatalf("hand-off kept looping: %d calls", prov.calls)
	}
	if reply.Message == "" {
		t.Fatal("no user-facing message with hand-off")
	}
}

func TestLoopIncludesSystemPromptAndHistory(t *testing.T) {
	prov := &scriptedProvider{responses: []provider.Response{{Content: "ok"}}}
	loop := NewLoop(prov, testRegistry())

	history := []provider.Message{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "yes"}}
	if _, err := loop.Run(context.Background(), history, "now"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs := prov.requests[0].Messages
	if len(msgs) != 4 || msgs[0].Role != "system" || msgs[3].Content != "now" {
		t.Fatalf("messages = %+v", msgs)
	}
}
