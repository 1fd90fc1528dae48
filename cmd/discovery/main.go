package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/campusbridge/discovery/config"
	"github.com/campusbridge/discovery/internal/batch"
	"github.com/campusbridge/discovery/internal/discovery"
	"github.com/campusbridge/discovery/internal/engine"
	"github.com/campusbridge/discovery/internal/protocol"
	srv "github.com/campusbridge/discovery/internal/server"
)

func main() {
	var cfgPath string
	root := &cobra.Command{Use: "discovery", Short: "CampusBridge discovery orchestrator"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")

	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgPath)
			if serveAddr == "" {
				serveAddr = os.Getenv("CAMPUSBRIDGE_HTTP_ADDR")
			}
			return srv.Run(cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address")

	var migDir, direction string
	var steps int
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgPath)
			dsn, err := cfg.Databases.Postgres.DSN()
			if err != nil {
				return err
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrateCmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrateCmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrateCmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	daily := &cobra.Command{
		Use:   "daily",
		Short: "Run the unattended daily batch once and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgPath)
			eng := engine.NewLocal(cfg.Engine)
			runner := batch.NewDailyRunner(eng, cfg.Batch.FocusRotation, cfg.Batch.DailyLimit, cfg.Engine.BatchTimeout, nil)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			summary, err := runner.Run(ctx)
			fmt.Printf("success=%v processed=%d successful=%d failed=%d exit=%d\n",
				summary.Success, summary.Stats.TotalProcessed, summary.Stats.Successful, summary.Stats.Failed, summary.ExitCode)
			return err
		},
	}

	var server, profile string
	watch := &cobra.Command{
		Use:   "watch [query]",
		Short: "Follow a live discovery stream and render reduced progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchStream(ctx, server, args[0], profile)
		},
	}
	watch.Flags().StringVar(&server, "server", "http://localhost:8080", "API base URL")
	watch.Flags().StringVar(&profile, "profile", "", "user profile id for personalization")

	root.AddCommand(serve, migrateCmd, daily, watch)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func watchStream(ctx context.Context, base, query, profile string) error {
	open := func(ctx context.Context, q, profileID string) (io.ReadCloser, error) {
		u, err := url.Parse(base + "/api/discover/stream")
		if err != nil {
			return nil, err
		}
		vals := url.Values{"query": {q}}
		if profileID != "" {
			vals.Set("userProfileId", profileID)
		}
		u.RawQuery = vals.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("stream request failed: %s: %s", resp.Status, body)
		}
		return resp.Body, nil
	}

	tracker := discovery.NewTracker(open, nil, 10*time.Minute)
	tracker.OnEvent = func(ev protocol.DiscoveryEvent, state discovery.DiscoveryState) {
		switch ev.Type {
		case protocol.EventLayerStart:
			fmt.Printf("[%3d%%] %s started\n", state.OverallProgress, ev.Layer)
		case protocol.EventLayerComplete:
			fmt.Printf("[%3d%%] %s complete\n", state.OverallProgress, ev.Layer)
		case protocol.EventOpportunityFound:
			fmt.Printf("[%3d%%] found: %s (%s)\n", state.OverallProgress, ev.Title, ev.Organization)
		case protocol.EventError:
			fmt.Printf("[%3d%%] error: %s\n", state.OverallProgress, ev.Message)
		}
	}

	if err := tracker.Start(ctx, query, profile); err != nil {
		return err
	}
	final := tracker.State()
	fmt.Printf("%s: %d opportunities", final.Status, len(final.Opportunities))
	if final.LastError != "" {
		fmt.Printf(" (last error: %s)", final.LastError)
	}
	fmt.Println()
	return nil
}
