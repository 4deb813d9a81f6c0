package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/city-weather/internal/observability"
)

// NewRouter wires the JSON API, /health and /metrics. The /api routes get the
// rate limiter (nil disables it) and the per-request timeout. They are
// registered on the root router so a wrong method answers 405, not 404.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := func(fn http.HandlerFunc) http.Handler {
		var next http.Handler = fn
		if requestTimeout > 0 {
			next = TimeoutMiddleware(requestTimeout)(next)
		}
		return RateLimitMiddleware(limiter)(next)
	}
	router.Handle("/api/random-weather", api(h.PostRandomWeather)).Methods(http.MethodPost)
	router.Handle("/api/city-weather", api(h.PostCityWeather)).Methods(http.MethodPost)
	router.Handle("/api/status", api(h.GetStatus)).Methods(http.MethodGet)
	router.Handle("/api/history", api(h.GetHistory)).Methods(http.MethodGet)
	return router
}
