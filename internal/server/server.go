package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/campusbridge/discovery/config"
	"github.com/campusbridge/discovery/internal/batch"
	"github.com/campusbridge/discovery/internal/chat"
	"github.com/campusbridge/discovery/internal/engine"
	"github.com/campusbridge/discovery/internal/relay"
	"github.com/campusbridge/discovery/internal/runtime"
	"github.com/campusbridge/discovery/internal/store"
	"github.com/campusbridge/discovery/provider"
	_ "github.com/campusbridge/discovery/provider/openai"
)

// Run wires dependencies and serves the API until the listener fails.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging.
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	tracing, err := runtime.SetupTracing(ctx, cfg.Telemetry, "discovery")
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background())

	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Databases.Redis.Addr(),
		Password: cfg.Databases.Redis.Password,
		DB:       cfg.Databases.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
	}

	var eng engine.Engine
	switch cfg.Engine.Mode {
	case config.EngineModeRemote:
		eng = engine.NewRemote(cfg.Engine)
	case config.EngineModeLocal, "":
		eng = engine.NewLocal(cfg.Engine)
	default:
		return fmt.Errorf("unknown engine mode: %s", cfg.Engine.Mode)
	}

	index, err := chat.NewOpportunityIndex()
	if err != nil {
		return err
	}
	if err := warmIndex(ctx, st, index); err != nil {
		log.Printf("search index warm-up: %v", err)
	}

	sink := &opportunitySink{store: st, index: index}
	rel := relay.New(sink)

	registry, err := provider.NewRegistry(cfg.LLM)
	if err != nil {
		return err
	}
	chatProvider, err := registry.ForChat()
	if err != nil {
		return err
	}
	loop := chat.NewLoop(chatProvider, chat.NewRegistry(st, index))

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	(&AuthHandler{Store: st, Secret: secret}).Register(api.Group("/auth"))

	discover := api.Group("/discover")
	(&DiscoverHandler{Engine: eng, Relay: rel, Timeout: cfg.Engine.QuickTimeout}).Register(discover)

	queue := batch.NewRecheckQueue(rdb, cfg.Batch.RecheckKey)
	daily := batch.NewDailyRunner(eng, cfg.Batch.FocusRotation, cfg.Batch.DailyLimit, cfg.Engine.BatchTimeout, queue)
	(&BatchHandler{
		Engine:      eng,
		Daily:       daily,
		DailySecret: cfg.Batch.DailySecret,
		Timeout:     cfg.Engine.BatchTimeout,
	}).Register(discover)

	chatGroup := api.Group("/chat")
	chatGroup.Use(runtime.EchoAuthMiddleware(secret))
	(&ChatHandler{Loop: loop, Registry: registry}).Register(chatGroup)

	ops := api.Group("/opportunities")
	(&OpportunitiesHandler{Store: st}).Register(ops)

	if cfg.Batch.DailyCron != "" {
		sched, err := batch.NewScheduler(cfg.Batch.DailyCron, daily)
		if err != nil {
			return fmt.Errorf("daily cron: %w", err)
		}
		go sched.Run(ctx)
	}

	if addr == "" {
		addr = cfg.Server.Address
	}
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// warmIndex seeds the in-memory search index from recently stored cards so
// chat search works before the first live discovery.
func warmIndex(ctx context.Context, st *store.Store, index *chat.OpportunityIndex) error {
	ops, err := st.ListOpportunities(ctx, "", "", 100)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := index.Add(op); err != nil {
			return err
		}
	}
	return nil
}
