package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/icco/writing/app/api"
	"github.com/icco/writing/app/cfg"
	"github.com/icco/writing/app/feed"
	"github.com/icco/writing/app/observability"
	"github.com/icco/writing/app/origin"
	"github.com/icco/writing/app/render"
	"github.com/icco/writing/app/site"
	"github.com/icco/writing/app/telemetry"
	"go.opentelemetry.io/otel/propagation"
)

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration from environment variables and command-line flags
	appConfig, err := cfg.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}
	if appConfig == nil {
		// Help was shown
		return 0
	}

	logger := observability.NewLogger(os.Stdout, appConfig.LogLevel, appConfig.DevMode)
	slog.SetDefault(logger)

	slog.Info("Starting writing edge server", "version", appConfig.Version, "env", appConfig.Env, "origin", appConfig.GraphQLOrigin)

	ctx := context.Background()

	var propagator propagation.TextMapPropagator
	if appConfig.TelemetryEnabled {
		tel, err := telemetry.Setup(ctx, appConfig.GoogleProject)
		if err != nil {
			slog.Error("Failed to initialise telemetry", "project", appConfig.GoogleProject, "error", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				slog.Error("Telemetry shutdown error", "error", err)
			}
		}()
		propagator = telemetry.Propagator()
	}

	settings, err := site.Load(appConfig.SiteConfig, appConfig.PublicURL)
	if err != nil {
		slog.Error("Failed to load site configuration", "path", appConfig.SiteConfig, "error", err)
		return 1
	}

	renderer, err := render.NewUpstream(appConfig.RendererOrigin)
	if err != nil {
		slog.Error("Failed to create renderer", "error", err)
		return 1
	}
	if err := prepareRenderer(ctx, renderer, appConfig); err != nil {
		slog.Error("Failed to prepare renderer", "renderer", appConfig.RendererOrigin, "error", err)
		return 1
	}

	var source feed.PostSource = origin.NewClient(appConfig.GraphQLOrigin, origin.DefaultTimeout)
	if appConfig.FeedCacheTTL > 0 {
		slog.Info("Feed cache enabled", "ttl", appConfig.FeedCacheTTL)
		source = feed.NewCache(source, appConfig.FeedCacheTTL)
	}
	builder := feed.NewBuilder(source, settings.Feed, appConfig.PublicURL)

	// Initialize HTTP server
	handler := api.NewHandler(builder, renderer, settings, appConfig.StaticDir)
	server, err := api.NewServer(handler, api.ServerOptions{
		GraphQLOrigin:    appConfig.GraphQLOrigin,
		GoogleProject:    appConfig.GoogleProject,
		TelemetryEnabled: appConfig.TelemetryEnabled,
		TrustProxy:       appConfig.TrustProxy,
		DevMode:          appConfig.DevMode,
		Logger:           logger,
		Propagator:       propagator,
	})
	if err != nil {
		slog.Error("Failed to create HTTP server", "error", err)
		return 1
	}

	httpServer := &http.Server{
		Addr:              appConfig.ListenAddr(),
		Handler:           server,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	listener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		slog.Error("Failed to bind listen address", "addr", httpServer.Addr, "error", err)
		return 1
	}

	serverErrChan := make(chan error, 2)
	go func() {
		slog.Info("Ready", "url", fmt.Sprintf("http://%s", httpServer.Addr))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var metricsServer *http.Server
	if appConfig.MetricsPort != "" {
		metricsServer = api.NewMetricsServer(net.JoinHostPort(appConfig.Host, appConfig.MetricsPort))
		go func() {
			slog.Info("Serving metrics", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
		exitCode = 1
	}

	slog.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	slog.Info("Shutdown complete")
	return exitCode
}

// prepareRenderer waits for the rendering server. In dev mode a renderer that
// is still starting is not fatal.
func prepareRenderer(ctx context.Context, renderer *render.Upstream, appConfig *cfg.Cfg) error {
	prepareCtx, cancel := context.WithTimeout(ctx, appConfig.RendererPrepareTimeout)
	defer cancel()

	err := renderer.Prepare(prepareCtx)
	if err != nil && appConfig.DevMode {
		slog.Warn("Renderer not ready, continuing in dev mode", "renderer", appConfig.RendererOrigin, "error", err)
		return nil
	}
	return err
}
