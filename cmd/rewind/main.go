// Command rewind records the screen, indexes what it sees and serves the
// history over HTTP and MCP.
//
// Configuration comes from an optional YAML file named by REWIND_CONFIG,
// then environment variables (a .env file in the working directory is
// loaded first). See timeline.Config.ApplyEnv for the variables.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/rewind/dbopen"
	"github.com/hazyhaar/rewind/desktop"
	"github.com/hazyhaar/rewind/embedder"
	"github.com/hazyhaar/rewind/observability"
	"github.com/hazyhaar/rewind/ocr"
	"github.com/hazyhaar/rewind/shield"
	"github.com/hazyhaar/rewind/timeline"
	"github.com/hazyhaar/rewind/trace"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("rewind", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*timeline.Config, error) {
	cfg := &timeline.Config{}
	if path := env("REWIND_CONFIG", ""); path != "" {
		var err error
		if cfg, err = timeline.LoadConfigFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *timeline.Config, logger *slog.Logger) error {
	// Observability DB: plain "sqlite" driver so recording a slow query is
	// not itself traced. observability_db: off disables it.
	obsPath := cfg.ObservabilityDB
	if obsPath == "" {
		root := cfg.StorageRoot
		if root == "" {
			root = timeline.DefaultStorageRoot()
		}
		obsPath = filepath.Join(root, "observability.db")
	}
	var (
		metrics *observability.MetricsManager
		events  *observability.EventLogger
		obsDB   *sql.DB
	)
	if obsPath != "off" {
		var err error
		obsDB, err = dbopen.Open(obsPath, dbopen.WithMkdirAll())
		if err != nil {
			return fmt.Errorf("observability db: %w", err)
		}
		defer obsDB.Close()
		if err := observability.Init(obsDB); err != nil {
			return fmt.Errorf("observability init: %w", err)
		}
		metrics = observability.NewMetricsManager(obsDB, 100, 10*time.Second)
		defer metrics.Close()
		events = observability.NewEventLogger(obsDB)

		trace.SetRecorder(func(e trace.Entry) {
			metrics.RecordSimple(observability.MetricSlowQueryMs, float64(e.Duration.Milliseconds()), "ms")
		})
		defer trace.SetRecorder(nil)

		hbCtx, stopHB := context.WithCancel(ctx)
		hb := observability.NewHeartbeatWriter(obsDB, "rewind_capture", 30*time.Second)
		go hb.Run(hbCtx)
		defer func() {
			stopHB()
			<-hb.Done()
		}()
	}

	deps := timeline.Deps{
		Probes:   desktop.NewProbes(cfg.Desktop()),
		OCR:      ocr.New(cfg.OCR),
		Embedder: embedder.New(cfg.Embedder),
		Events:   events,
		Logger:   logger,
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	if cfg.TraceSQL {
		deps.DBOptions = append(deps.DBOptions, dbopen.WithTrace())
	}

	svc, err := timeline.New(cfg, deps)
	if err != nil {
		return err
	}
	svcCtx, stopSvc := context.WithCancel(ctx)
	defer func() {
		stopSvc()
		svc.Close()
	}()
	svc.Start(svcCtx)

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(64 << 20) {
		r.Use(mw)
	}
	svc.Routes(r)

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "rewind", Version: version}, nil)
	svc.RegisterMCP(mcpSrv)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
	r.Handle("/mcp", mcpHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("rewind starting", "addr", srv.Addr, "version", version, "storage", cfg.StorageRoot)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
