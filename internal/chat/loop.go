package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/campusbridge/discovery/internal/store"
	"github.com/campusbridge/discovery/provider"
)

// MaxToolIterations bounds the tool-calling loop. Hitting the ceiling is an
// error, not a silent truncation.
const MaxToolIterations = 10

// ErrTooManyToolCalls is returned when the model keeps requesting tools past
// the iteration ceiling.
var ErrTooManyToolCalls = errors.New("too many tool call iterations")

const systemPrompt = `You are CampusBridge, a helpful assistant for students looking for opportunities: internships, scholarships, competitions, research programs and events.
Use the tools to ground answers in saved opportunities. When nothing relevant is saved, call ` + ToolTriggerDiscovery + ` to start a live search instead of guessing.
Keep answers concise and concrete. Never invent opportunities.`

// ToolStep records one executed tool call for transports that surface
// progress.
type ToolStep struct {
	Name   string
	Status string
	Failed bool
}

// Reply is the terminal result of one conversation turn.
type Reply struct {
	Message        string
	Opportunities  []store.Opportunity
	Steps          []ToolStep
	DiscoveryQuery string
	Model          string
	Usage          provider.Usage
}

// Loop runs bounded tool-calling conversations against a provider.
type Loop struct {
	registry *Registry
	prov     provider.Provider
	logger   *log.Logger

	// OnStep fires after each tool execution; streaming transports hook
	// it to emit status frames. May be nil.
	OnStep func(ToolStep)
}

// NewLoop builds a Loop over the given provider and tool registry.
func NewLoop(prov provider.Provider, reg *Registry) *Loop {
	return &Loop{
		registry: reg,
		prov:     prov,
		logger:   log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
}

// ProviderName names the backend this loop completes against.
func (l *Loop) ProviderName() string { return l.prov.Name() }

// Run executes one turn: it feeds history plus the user message to the model
// and resolves tool calls until the model answers in plain text, the
// discovery hand-off fires, or the iteration ceiling is hit.
func (l *Loop) Run(ctx context.Context, history []provider.Message, userMsg string) (*Reply, error) {
	msgs := make([]provider.Message, 0, len(history)+2)
	msgs = append(msgs, provider.Message{Role: "system", Content: systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, provider.Message{Role: "user", Content: userMsg})

	reply := &Reply{}

	for iter := 0; ; iter++ {
		if iter >= MaxToolIterations {
			return nil, ErrTooManyToolCalls
		}

		resp, err := l.prov.Complete(ctx, provider.Request{
			Messages: msgs,
			Tools:    l.registry.Defs(),
		})
		if err != nil {
			return nil, fmt.Errorf("completion: %w", err)
		}
		reply.Usage.PromptTokens += resp.Usage.PromptTokens
		reply.Usage.CompletionTokens += resp.Usage.CompletionTokens
		if resp.Model != "" {
			reply.Model = resp.Model
		}

		if len(resp.ToolCalls) == 0 {
			reply.Message = resp.Content
			return reply, nil
		}

		msgs = append(msgs, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			if call.Name == ToolTriggerDiscovery {
				var in struct {
					Query string `json:"query"`
				}
				_ = json.Unmarshal(call.Arguments, &in)
				reply.DiscoveryQuery = in.Query
				if resp.Content != "" {
					reply.Message = resp.Content
				} else {
					reply.Message = "Starting a live search for you now."
				}
				return reply, nil
			}

			step := ToolStep{Name: call.Name, Status: StatusPhrase(call.Name)}
			result := l.execute(ctx, call, reply)
			if result.failed {
				step.Failed = true
			}
			reply.Steps = append(reply.Steps, step)
			if l.OnStep != nil {
				l.OnStep(step)
			}
			msgs = append(msgs, provider.Message{
				Role:       "tool",
				Content:    result.payload,
				ToolCallID: call.ID,
			})
		}
	}
}

type toolResult struct {
	payload string
	failed  bool
}

// execute runs a single tool call. Failures are serialized back to the model
// so the conversation survives a broken tool.
func (l *Loop) execute(ctx context.Context, call provider.ToolCall, reply *Reply) toolResult {
	tool, ok := l.registry.Lookup(call.Name)
	if !ok {
		l.logger.Printf("unknown tool requested: %s", call.Name)
		return toolResult{payload: fmt.Sprintf(`{"error":"unknown tool %q"}`, call.Name), failed: true}
	}
	out, ops, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		l.logger.Printf("tool %s failed: %v", call.Name, err)
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return toolResult{payload: string(payload), failed: true}
	}
	if len(ops) > 0 {
		reply.Opportunities = mergeOpportunities(reply.Opportunities, ops)
	}
	return toolResult{payload: out}
}

func mergeOpportunities(have, extra []store.Opportunity) []store.Opportunity {
	seen := make(map[string]bool, len(have))
	for _, o := range have {
		seen[o.ID] = true
	}
	for _, o := range extra {
		if !seen[o.ID] {
			seen[o.ID] = true
			have = append(have, o)
		}
	}
	return have
}
