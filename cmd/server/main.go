package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	"github.com/tendant/simple-asset/pkg/simpleasset/api"
	"github.com/tendant/simple-asset/pkg/simpleasset/config"
	"github.com/tendant/simple-asset/pkg/simpleasset/metrics"
	"github.com/tendant/simple-asset/pkg/simpleasset/sweeper"
)

func main() {
	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSink, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		slog.Error("Failed to register metrics", "err", err)
		os.Exit(1)
	}
	sink := simpleasset.MultiEventSink{simpleasset.NewLoggingEventSink(logger), metricsSink}

	svc, closeService, err := cfg.BuildService(ctx,
		simpleasset.WithEventSink(sink),
		simpleasset.WithLogger(logger),
	)
	if err != nil {
		slog.Error("Failed to create service", "err", err)
		os.Exit(1)
	}
	defer closeService()

	var sweeps *sweeper.Sweeper
	var sweepWG sync.WaitGroup
	if cfg.Sweep.Enabled {
		var closeSweeper func()
		sweeps, closeSweeper, err = cfg.BuildSweeper(ctx, svc,
			sweeper.WithEventSink(sink),
			sweeper.WithLogger(logger),
		)
		if err != nil {
			slog.Error("Failed to create sweeper", "err", err)
			os.Exit(1)
		}
		defer closeSweeper()

		sweepWG.Add(1)
		go func() {
			defer sweepWG.Done()
			if err := sweeps.Run(ctx); err != nil {
				slog.Error("Sweeper stopped", "err", err)
			}
		}()
	}

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	server.R.Handle("/metrics", promhttp.Handler())

	auth := jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
	assetHandler := api.NewAssetHandler(svc, auth, api.WithMaxThumbnailBytes(cfg.MaxThumbnailBytes))

	server.R.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.RequestID)
		r.Use(api.LoggingMiddleware(logger))
		r.Use(api.RecoveryMiddleware)
		r.Mount("/assets", assetHandler.Routes())

		if cfg.AdminAPIKeySHA256 == "" {
			slog.Warn("ADMIN_API_KEY_SHA256 not set; admin routes disabled")
			return
		}
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{"admin": cfg.AdminAPIKeySHA256},
		})
		if err != nil {
			slog.Error("Failed initialize API Key middleware", "err", err)
			return
		}
		var runner api.SweepRunner
		if sweeps != nil {
			runner = sweeps
		}
		r.Group(func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Mount("/admin", api.NewAdminHandler(svc, runner).Routes())
		})
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.R,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}

	// Run returns once the in-flight sweep has finished.
	sweepWG.Wait()
	slog.Info("Server exiting")
}

func newLogger(cfg *config.ServerConfig) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
