package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/eugener/zephyr/internal/app"
	"github.com/eugener/zephyr/internal/cache"
	"github.com/eugener/zephyr/internal/config"
	"github.com/eugener/zephyr/internal/provider"
	"github.com/eugener/zephyr/internal/provider/openweather"
	"github.com/eugener/zephyr/internal/ratelimit"
	"github.com/eugener/zephyr/internal/server"
	"github.com/eugener/zephyr/internal/storage/sqlite"
	"github.com/eugener/zephyr/internal/telemetry"
	"github.com/eugener/zephyr/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting zephyr", "version", version, "addr", cfg.Server.Addr)

	// Open database
	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(context.Background(), cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Upstream client with DNS-cached transport
	resolver := &dnscache.Resolver{}
	go refreshDNS(resolver)

	httpClient := &http.Client{
		Transport: provider.NewTransport(resolver),
		Timeout:   time.Duration(cfg.Provider.TimeoutMs) * time.Millisecond,
	}
	weatherClient := openweather.New(cfg.Provider.APIKey, cfg.Provider.BaseURL, httpClient)

	// Document cache and lookup service
	docCache, err := cache.New(cfg.Cache.MaxSize, cfg.Cache.TTL)
	if err != nil {
		return err
	}
	lookupSvc := app.NewLookupService(docCache, weatherClient)

	// Lookup history recorder
	var gauge worker.QueueGauge
	if metrics != nil {
		gauge = metrics.LookupQueueLen
	}
	recorder := worker.NewLookupRecorder(store, gauge)
	runner := worker.NewRunner(recorder)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- runner.Run(workerCtx)
	}()

	// Rate limiting
	var limiter *ratelimit.Registry
	if cfg.RateLimit.RPM > 0 {
		limiter = ratelimit.NewRegistry(cfg.RateLimit.RPM)
	}

	// Create HTTP server
	handler := server.New(server.Deps{
		Lookup:         lookupSvc,
		History:        store,
		ReadyCheck:     store.Ping,
		Recorder:       recorder,
		RateLimiter:    limiter,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Prober:         weatherClient,
		AdminKey:       cfg.Auth.AdminKey,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Version:        version,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("zephyr ready", "addr", cfg.Server.Addr)

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		stopWorkers()
		return err
	}

	// Shutdown: stop accepting requests, then let the recorder drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		stopWorkers()
		return err
	}

	stopWorkers()
	if err := <-workerDone; err != nil {
		slog.Warn("worker shutdown", "error", err)
	}

	slog.Info("zephyr stopped")
	return nil
}

// refreshDNS re-resolves cached entries periodically so long-lived
// connections do not pin stale records.
func refreshDNS(resolver *dnscache.Resolver) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for range t.C {
		resolver.Refresh(true)
	}
}
