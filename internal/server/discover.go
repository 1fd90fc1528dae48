package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/campusbridge/discovery/internal/chat"
	"github.com/campusbridge/discovery/internal/engine"
	"github.com/campusbridge/discovery/internal/protocol"
	"github.com/campusbridge/discovery/internal/relay"
	"github.com/campusbridge/discovery/internal/store"
)

var discoverTracer = otel.Tracer("server/discover")

// DiscoverHandler exposes live quick discovery as an SSE stream.
type DiscoverHandler struct {
	Engine  engine.Engine
	Relay   *relay.Relay
	Timeout time.Duration
}

func (h *DiscoverHandler) Register(g *echo.Group) {
	g.GET("/stream", h.stream)
}

func (h *DiscoverHandler) stream(c echo.Context) error {
	raw := c.QueryParam("query")
	if strings.TrimSpace(raw) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query parameter")
	}
	query, err := engine.SanitizeQuery(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	profileID := c.QueryParam("userProfileId")

	ctx, span := discoverTracer.Start(c.Request().Context(), "discover.stream")
	span.SetAttributes(attribute.String("discover.query", query))
	defer span.End()

	sess, err := h.Engine.Start(ctx, engine.Options{
		Mode:          engine.ModeQuick,
		Query:         query,
		UserProfileID: profileID,
		Timeout:       h.Timeout,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	w, err := relay.NewWriter(c.Response())
	if err != nil {
		sess.Cancel()
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.Relay.Run(ctx, sess, w)
	return nil
}

// opportunitySink persists extracted cards as they stream by and keeps the
// in-memory chat search index current.
type opportunitySink struct {
	store *store.Store
	index *chat.OpportunityIndex
}

func (s *opportunitySink) SaveOpportunity(ctx context.Context, ev protocol.DiscoveryEvent) error {
	op := store.Opportunity{
		ID:              ev.ID,
		Title:           ev.Title,
		Organization:    ev.Organization,
		Category:        ev.Category,
		OpportunityType: ev.OpportunityType,
		URL:             ev.URL,
		Summary:         ev.Summary,
		LocationType:    ev.LocationType,
		Confidence:      ev.Confidence,
	}
	if ev.Deadline != "" {
		if t, err := time.Parse(time.RFC3339, ev.Deadline); err == nil {
			op.Deadline = &t
		} else if t, err := time.Parse("2006-01-02", ev.Deadline); err == nil {
			op.Deadline = &t
		}
	}
	if _, err := s.store.UpsertOpportunity(ctx, op); err != nil {
		return err
	}
	if s.index != nil {
		_ = s.index.Add(op)
	}
	return nil
}
