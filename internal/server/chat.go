package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/campusbridge/discovery/internal/chat"
	"github.com/campusbridge/discovery/internal/relay"
	"github.com/campusbridge/discovery/provider"
)

var chatTracer = otel.Tracer("server/chat")

// ChatHandler exposes the assistant conversation loop.
type ChatHandler struct {
	Loop     *chat.Loop
	Registry *provider.Registry
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("", h.converse)
	g.GET("", h.health)
}

func (h *ChatHandler) converse(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userMsg, history := splitConversation(req.Messages)
	if userMsg == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing user message")
	}

	ctx, span := chatTracer.Start(c.Request().Context(), "chat.converse")
	defer span.End()

	if req.Stream {
		w, err := relay.NewWriter(c.Response())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		_ = h.Loop.Stream(ctx, w, history, userMsg)
		return nil
	}

	reply, err := h.Loop.Run(ctx, history, userMsg)
	if err != nil {
		if err == chat.ErrTooManyToolCalls {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ChatResponse{
		ID:             uuid.NewString(),
		Content:        reply.Message,
		Model:          reply.Model,
		Provider:       h.Loop.ProviderName(),
		Usage:          reply.Usage,
		Opportunities:  reply.Opportunities,
		DiscoveryQuery: reply.DiscoveryQuery,
	})
}

// splitConversation separates the latest user message from the prior turns,
// dropping any roles the model should not see replayed.
func splitConversation(msgs []ChatMessage) (string, []provider.Message) {
	last := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			last = i
			break
		}
	}
	if last < 0 {
		return "", nil
	}
	history := make([]provider.Message, 0, last)
	for _, m := range msgs[:last] {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		history = append(history, provider.Message{Role: m.Role, Content: m.Content})
	}
	return msgs[last].Content, history
}

// health reports whether at least the routed chat provider answers.
func (h *ChatHandler) health(c echo.Context) error {
	summary := h.Registry.Health(c.Request().Context())
	if summary.Healthy {
		return c.JSON(http.StatusOK, summary)
	}
	return c.JSON(http.StatusServiceUnavailable, summary)
}
