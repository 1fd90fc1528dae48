package server

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/campusbridge/discovery/internal/batch"
	"github.com/campusbridge/discovery/internal/engine"
	"github.com/campusbridge/discovery/internal/protocol"
	"github.com/campusbridge/discovery/internal/relay"
)

var batchTracer = otel.Tracer("server/batch")

// BatchHandler exposes the operator-facing batch run and the unattended
// daily run.
type BatchHandler struct {
	Engine      engine.Engine
	Daily       *batch.DailyRunner
	DailySecret string
	Timeout     time.Duration
}

func (h *BatchHandler) Register(g *echo.Group) {
	g.POST("/batch", h.batch)
	g.POST("/daily", h.daily)
	g.GET("/daily", h.daily)
}

func (h *BatchHandler) batch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sources, err := batch.NormalizeSources(req.Sources)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, span := batchTracer.Start(c.Request().Context(), "discover.batch")
	span.SetAttributes(attribute.StringSlice("batch.sources", sources))
	defer span.End()

	sess, err := h.Engine.Start(ctx, engine.Options{
		Mode:       engine.ModeBatch,
		Sources:    sources,
		FocusAreas: req.Focus,
		Limit:      req.Limit,
		Timeout:    h.Timeout,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	w, err := relay.NewWriter(c.Response())
	if err != nil {
		sess.Cancel()
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.pump(sess, w)
	return nil
}

// pump streams batch output as classified phase events. Structured protocol
// events pass through untouched; free-text lines get classified, falling
// back to a plain log frame.
func (h *BatchHandler) pump(sess *engine.Session, w *relay.Writer) {
	defer sess.Cancel()
	defer w.Close()

	sess.OnTimeout = func() {
		_ = w.Send(protocol.ErrorEvent("batch run timed out before completing", relay.MaxErrorLen))
	}

	// Stderr must be drained or the engine's pipe copy stalls; the tail is
	// captured by the session for the failure frame.
	stderrDone := make(chan struct{})
	if sess.Stderr != nil {
		go func() {
			defer close(stderrDone)
			_, _ = io.Copy(io.Discard, sess.Stderr)
		}()
	} else {
		close(stderrDone)
	}

	scanner := bufio.NewScanner(sess.Stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ev, err := protocol.ParseLine([]byte(line)); err == nil {
			_ = w.Send(ev)
			continue
		}
		_ = w.Send(batch.Classify(line))
	}
	<-stderrDone

	code, err := sess.Wait()
	if err != nil && err != engine.ErrTimeout {
		_ = w.Send(protocol.ErrorEvent("Batch run failed: "+strings.Join(strings.Fields(sess.StderrTail()), " "), relay.MaxErrorLen))
	}
	_ = w.Send(protocol.DoneEvent(code))
}

// daily triggers the unattended run. It is meant for cron callers and fails
// closed: no configured secret means no access at all.
func (h *BatchHandler) daily(c echo.Context) error {
	if h.DailySecret == "" {
		return echo.NewHTTPError(http.StatusInternalServerError, "daily secret not configured")
	}
	auth := c.Request().Header.Get("Authorization")
	if auth != "Bearer "+h.DailySecret {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid daily secret")
	}

	ctx, span := batchTracer.Start(c.Request().Context(), "discover.daily")
	defer span.End()

	summary, err := h.Daily.Run(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, summary)
	}
	return c.JSON(http.StatusOK, summary)
}
