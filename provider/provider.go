// Package provider abstracts chat-completion backends that may return tool
// calls instead of a final answer.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campusbridge/discovery/config"
)

// Message is one conversation turn. Tool results reference the call they
// answer through ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a structured request from the model to execute a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDef describes a callable tool to the model.
type ToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is one completion call.
type Request struct {
	Messages    []Message
	Tools       []ToolDef
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Response is either a final answer (Content) or a set of tool calls.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Model     string
	Usage     Usage
}

// Provider is one completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
	Healthy(ctx context.Context) bool
}

// Factory builds a provider from its config. Implementations register here
// from their package init to avoid an import cycle.
type Factory func(name string, cfg config.LLMProviderConfig) (Provider, error)

var factories = map[string]Factory{}

// RegisterFactory installs a backend constructor for a provider type.
func RegisterFactory(typ string, f Factory) { factories[typ] = f }

// Registry holds the configured providers and routing.
type Registry struct {
	providers map[string]Provider
	routing   config.LLMRoutingConfig
}

// NewRegistry instantiates every configured provider.
func NewRegistry(cfg config.LLMConfig) (*Registry, error) {
	reg := &Registry{providers: map[string]Provider{}, routing: cfg.Routing}
	for name, pc := range cfg.Providers {
		typ := pc.Type
		if typ == "" {
			typ = "openai"
		}
		factory, ok := factories[typ]
		if !ok {
			return nil, fmt.Errorf("unknown provider type %q for %q", typ, name)
		}
		p, err := factory(name, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		reg.providers[name] = p
	}
	if len(reg.providers) == 0 {
		return nil, fmt.Errorf("no llm providers configured")
	}
	return reg, nil
}

// ForChat resolves the chat provider through the routing chain.
func (r *Registry) ForChat() (Provider, error) {
	for _, name := range []string{r.routing.Chat, r.routing.Fallback} {
		if p, ok := r.providers[name]; ok {
			return p, nil
		}
	}
	// Routing unset with a single provider: use it.
	if len(r.providers) == 1 {
		for _, p := range r.providers {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no provider routed for chat")
}

// HealthSummary reports per-provider reachability.
type HealthSummary struct {
	Healthy   bool            `json:"healthy"`
	Providers map[string]bool `json:"providers"`
}

// Health probes every provider.
func (r *Registry) Health(ctx context.Context) HealthSummary {
	sum := HealthSummary{Providers: map[string]bool{}}
	for name, p := range r.providers {
		ok := p.Healthy(ctx)
		sum.Providers[name] = ok
		if ok {
			sum.Healthy = true
		}
	}
	return sum
}
