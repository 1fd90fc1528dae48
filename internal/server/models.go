package server

import (
	"github.com/campusbridge/discovery/internal/store"
	"github.com/campusbridge/discovery/provider"
)

// HTTPError is the uniform error body produced by the error handler.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type BatchRequest struct {
	Sources []string `json:"sources"`
	Focus   []string `json:"focus,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`

	// Client-side confirmation flags; accepted for wire compatibility,
	// the confirmation dialogs themselves live in the client.
	ConfirmBookmark     bool `json:"confirmBookmark,omitempty"`
	ConfirmWebDiscovery bool `json:"confirmWebDiscovery,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID             string              `json:"id"`
	Content        string              `json:"content"`
	Model          string              `json:"model,omitempty"`
	Provider       string              `json:"provider,omitempty"`
	Usage          provider.Usage      `json:"usage"`
	Opportunities  []store.Opportunity `json:"opportunities,omitempty"`
	DiscoveryQuery string              `json:"discoveryQuery,omitempty"`
}

type OpportunitiesResponse struct {
	Opportunities []store.Opportunity `json:"opportunities"`
	Total         int                 `json:"total"`
}
