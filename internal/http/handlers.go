package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather/internal/cities"
	"github.com/kjstillabower/city-weather/internal/config"
	"github.com/kjstillabower/city-weather/internal/models"
	"github.com/kjstillabower/city-weather/internal/observability"
	"github.com/kjstillabower/city-weather/internal/service"
	"github.com/kjstillabower/city-weather/internal/stats"
	"github.com/kjstillabower/city-weather/internal/storage"
	"github.com/kjstillabower/city-weather/internal/validation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 16

// WeatherService is the subset of service.WeatherService the handlers use.
type WeatherService interface {
	Configured() bool
	CitiesAvailable() int
	HasStorage() bool
	FetchCity(ctx context.Context, city string) (models.WeatherRecord, error)
	FetchRandom(ctx context.Context, n int) (models.Batch, error)
	RecordStatus(ctx context.Context)
	History(ctx context.Context, limits storage.Limits) (models.History, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options configures a Handler.
type Options struct {
	DefaultCount int
	Version      string
	Storage      string
	// Checks are run by /health, keyed by dependency name (e.g. "cache", "storage").
	Checks map[string]HealthCheck
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc              WeatherService
	opts             Options
	logger           *zap.Logger
	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(svc WeatherService, opts Options, logger *zap.Logger) *Handler {
	if opts.DefaultCount <= 0 {
		opts.DefaultCount = 5
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Storage == "" {
		opts.Storage = "none"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, opts: opts, logger: logger}
}

// SetShuttingDown flips /health to 503. Call when SIGTERM/SIGINT is received.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

type randomRequest struct {
	Count *int `json:"count"`
}

type cityRequest struct {
	City string `json:"city"`
}

// PostRandomWeather handles POST /api/random-weather.
func (h *Handler) PostRandomWeather(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Configured() {
		writeError(w, http.StatusBadRequest, "API key not configured")
		return
	}

	var body randomRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	n := h.opts.DefaultCount
	if body.Count != nil {
		n = *body.Count
	}
	if n < 1 || n > config.MaxCityCount {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("count must be between 1 and %d", config.MaxCityCount))
		return
	}

	batch, err := h.svc.FetchRandom(r.Context(), n)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAPIKeyNotConfigured):
			writeError(w, http.StatusBadRequest, "API key not configured")
		case errors.Is(err, cities.ErrSampleSize):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("count must be between 1 and %d", h.svc.CitiesAvailable()))
		default:
			if !errors.Is(err, stats.ErrNoData) {
				observability.LoggerFrom(r.Context(), h.logger).Error("random batch failed", zap.Error(err))
			}
			writeError(w, http.StatusInternalServerError, "Failed to fetch weather data")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"weather_data": batch.Records,
		"statistics":   batch.Statistics,
		"failed":       nonNil(batch.Failed),
	})
}

// PostCityWeather handles POST /api/city-weather.
func (h *Handler) PostCityWeather(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Configured() {
		writeError(w, http.StatusBadRequest, "API key not configured")
		return
	}

	var body cityRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.svc.FetchCity(r.Context(), body.City)
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrCityEmpty):
			writeError(w, http.StatusBadRequest, "City name is required")
		case errors.Is(err, validation.ErrCityTooLong):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("City name must be at most %d characters", validation.MaxCityLength))
		case errors.Is(err, validation.ErrCityInvalidChars):
			writeError(w, http.StatusBadRequest, "City name contains invalid characters")
		case errors.Is(err, service.ErrAPIKeyNotConfigured):
			writeError(w, http.StatusBadRequest, "API key not configured")
		default:
			city, _ := validation.ValidateCity(body.City, 0)
			writeError(w, http.StatusNotFound, "Could not find weather data for "+city)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"weather_data": rec,
	})
}

// GetStatus handles GET /api/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.svc.RecordStatus(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "running",
		"api_key_configured": h.svc.Configured(),
		"cities_available":   h.svc.CitiesAvailable(),
		"version":            h.opts.Version,
		"storage":            h.opts.Storage,
	})
}

// GetHistory handles GET /api/history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if !h.svc.HasStorage() {
		writeError(w, http.StatusNotFound, "History storage not configured")
		return
	}
	hist, err := h.svc.History(r.Context(), storage.DefaultLimits)
	if err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Error("history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"recent_weather":    nonNil(hist.Weather),
		"recent_requests":   nonNil(hist.Requests),
		"recent_statistics": nonNil(hist.Statistics),
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	checks := map[string]string{}

	if h.svc.Configured() {
		checks["apiKey"] = "configured"
	} else {
		checks["apiKey"] = "missing"
	}
	for name, check := range h.opts.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			checks[name] = "unhealthy"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}
	if h.shuttingDown.Load() {
		status, code = "shutting-down", http.StatusServiceUnavailable
	}

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"service":   "city-weather",
		"version":   h.opts.Version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeBody decodes a JSON body into v. An empty body leaves v at its zero value.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}. The correlation id travels in the X-Correlation-ID header.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
