package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/city-weather/internal/app"
	"github.com/kjstillabower/city-weather/internal/batch"
	"github.com/kjstillabower/city-weather/internal/config"
	httphandler "github.com/kjstillabower/city-weather/internal/http"
	"github.com/kjstillabower/city-weather/internal/observability"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := observability.SyncLogger(logger); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer deps.Close(logger)

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	checks := make(map[string]httphandler.HealthCheck, len(deps.Checks))
	for name, check := range deps.Checks {
		checks[name] = httphandler.HealthCheck(check)
	}
	handler := httphandler.NewHandler(deps.Service, httphandler.Options{
		DefaultCount: cfg.DefaultCityCount,
		Version:      version,
		Storage:      cfg.StorageBackend,
		Checks:       checks,
	}, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	runner := batch.NewRunner(deps.Service, logger)
	if cfg.SamplerInterval > 0 && deps.Service.Configured() {
		logger.Info("periodic sampler enabled", zap.Duration("interval", cfg.SamplerInterval), zap.Int("cities", cfg.DefaultCityCount))
		go func() {
			if err := runner.RunPeriodic(ctx, cfg.DefaultCityCount, cfg.SamplerInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic sampler stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version), zap.Bool("api_key_configured", cfg.APIKeyConfigured()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	runner.Wait()

	deps.Close(logger)
	logger.Info("shutdown complete")
}
