package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/city-weather/internal/cities"
	"github.com/kjstillabower/city-weather/internal/client"
	"github.com/kjstillabower/city-weather/internal/models"
	"github.com/kjstillabower/city-weather/internal/service"
	"github.com/kjstillabower/city-weather/internal/stats"
	"github.com/kjstillabower/city-weather/internal/storage"
	"github.com/kjstillabower/city-weather/internal/validation"
)

type fakeService struct {
	configured  bool
	hasStorage  bool
	city        models.WeatherRecord
	cityErr     error
	batch       models.Batch
	batchErr    error
	history     models.History
	historyErr  error
	gotCount    int
	gotCity     string
	statusCalls int
}

func (f *fakeService) Configured() bool     { return f.configured }
func (f *fakeService) CitiesAvailable() int { return 251 }
func (f *fakeService) HasStorage() bool     { return f.hasStorage }

func (f *fakeService) FetchCity(_ context.Context, city string) (models.WeatherRecord, error) {
	f.gotCity = city
	if f.cityErr != nil {
		return models.WeatherRecord{}, f.cityErr
	}
	if strings.TrimSpace(city) == "" {
		return models.WeatherRecord{}, validation.ErrCityEmpty
	}
	return f.city, nil
}

func (f *fakeService) FetchRandom(_ context.Context, n int) (models.Batch, error) {
	f.gotCount = n
	return f.batch, f.batchErr
}

func (f *fakeService) RecordStatus(context.Context) { f.statusCalls++ }

func (f *fakeService) History(context.Context, storage.Limits) (models.History, error) {
	return f.history, f.historyErr
}

func newTestRouter(svc WeatherService, opts Options) (*Handler, http.Handler) {
	h := NewHandler(svc, opts, zap.NewNop())
	return h, NewRouter(h, zap.NewNop(), nil, 5*time.Second)
}

func do(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v (status %d)", err, w.Code)
	}
	return w, got
}

func TestPostRandomWeather(t *testing.T) {
	okBatch := models.Batch{
		Records:    []models.WeatherRecord{{City: "CityA", Temperature: 20}, {City: "CityB", Temperature: 15}},
		Statistics: models.Statistics{ColdestCity: "CityB", ColdestTemperature: 15, AverageTemperature: 17.5, TotalCities: 2},
	}
	tests := []struct {
		name       string
		svc        *fakeService
		body       string
		wantStatus int
		wantError  string
		wantCount  int
	}{
		{name: "not configured", svc: &fakeService{}, body: `{}`, wantStatus: 400, wantError: "API key not configured"},
		{name: "default count", svc: &fakeService{configured: true, batch: okBatch}, body: `{}`, wantStatus: 200, wantCount: 5},
		{name: "empty body", svc: &fakeService{configured: true, batch: okBatch}, body: ``, wantStatus: 200, wantCount: 5},
		{name: "explicit count", svc: &fakeService{configured: true, batch: okBatch}, body: `{"count": 3}`, wantStatus: 200, wantCount: 3},
		{name: "count zero", svc: &fakeService{configured: true}, body: `{"count": 0}`, wantStatus: 400, wantError: "count must be between 1 and 10"},
		{name: "count too large", svc: &fakeService{configured: true}, body: `{"count": 11}`, wantStatus: 400, wantError: "count must be between 1 and 10"},
		{name: "malformed body", svc: &fakeService{configured: true}, body: `{"count":`, wantStatus: 400, wantError: "Invalid request body"},
		{name: "no data", svc: &fakeService{configured: true, batchErr: stats.ErrNoData}, body: `{}`, wantStatus: 500, wantError: "Failed to fetch weather data"},
		{name: "unexpected error", svc: &fakeService{configured: true, batchErr: errors.New("boom")}, body: `{}`, wantStatus: 500, wantError: "Failed to fetch weather data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, router := newTestRouter(tt.svc, Options{})
			w, got := do(t, router, http.MethodPost, "/api/random-weather", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", w.Code, tt.wantStatus, got)
			}
			if tt.wantError != "" {
				if got["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", got["error"], tt.wantError)
				}
				return
			}
			if got["success"] != true {
				t.Errorf("success = %v", got["success"])
			}
			if tt.svc.gotCount != tt.wantCount {
				t.Errorf("count = %d, want %d", tt.svc.gotCount, tt.wantCount)
			}
			if data, _ := got["weather_data"].([]interface{}); len(data) != 2 {
				t.Errorf("weather_data = %v", got["weather_data"])
			}
			st, _ := got["statistics"].(map[string]interface{})
			if st["coldest_city"] != "CityB" || st["total_cities"] != float64(2) {
				t.Errorf("statistics = %v", st)
			}
		})
	}
}

func TestPostCityWeather(t *testing.T) {
	tests := []struct {
		name       string
		svc        *fakeService
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "not configured", svc: &fakeService{}, body: `{"city":"London"}`, wantStatus: 400, wantError: "API key not configured"},
		{name: "empty city", svc: &fakeService{configured: true}, body: `{"city":""}`, wantStatus: 400, wantError: "City name is required"},
		{name: "missing city", svc: &fakeService{configured: true}, body: `{}`, wantStatus: 400, wantError: "City name is required"},
		{name: "too long", svc: &fakeService{configured: true, cityErr: validation.ErrCityTooLong}, body: `{"city":"x"}`, wantStatus: 400, wantError: "City name must be at most 100 characters"},
		{name: "invalid chars", svc: &fakeService{configured: true, cityErr: validation.ErrCityInvalidChars}, body: `{"city":"a/b"}`, wantStatus: 400, wantError: "City name contains invalid characters"},
		{name: "malformed", svc: &fakeService{configured: true}, body: `not json`, wantStatus: 400, wantError: "Invalid request body"},
		{name: "not found", svc: &fakeService{configured: true, cityErr: fmt.Errorf("fetch: %w", client.ErrLocationNotFound)}, body: `{"city":" Atlantis "}`, wantStatus: 404, wantError: "Could not find weather data for Atlantis"},
		{name: "success", svc: &fakeService{configured: true, city: models.WeatherRecord{City: "London", Temperature: 11}}, body: `{"city":"London"}`, wantStatus: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, router := newTestRouter(tt.svc, Options{})
			w, got := do(t, router, http.MethodPost, "/api/city-weather", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", w.Code, tt.wantStatus, got)
			}
			if tt.wantError != "" {
				if got["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", got["error"], tt.wantError)
				}
				return
			}
			rec, _ := got["weather_data"].(map[string]interface{})
			if got["success"] != true || rec["city"] != "London" {
				t.Errorf("body = %v", got)
			}
		})
	}
}

// TestPostCityWeather_EmptyCityNoUpstreamCall runs the real service and client
// against a counting upstream.
func TestPostCityWeather_EmptyCityNoUpstreamCall(t *testing.T) {
	var calls int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"name":"London","main":{"temp":10}}`))
	}))
	defer upstream.Close()

	wc, err := client.NewOpenWeatherClient("test-key", upstream.URL, "metric", time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	svc := service.NewWeatherService(wc, cities.New([]string{"London"}, rand.New(rand.NewSource(1))), "metric", service.Options{})
	_, router := newTestRouter(svc, Options{})

	for _, body := range []string{`{"city": ""}`, `{"city": "   "}`} {
		w, got := do(t, router, http.MethodPost, "/api/city-weather", body)
		if w.Code != http.StatusBadRequest || got["error"] != "City name is required" {
			t.Errorf("body %s: status=%d error=%v", body, w.Code, got["error"])
		}
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("upstream called %d times, want 0", n)
	}

	w, got := do(t, router, http.MethodPost, "/api/city-weather", `{"city": "London"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", w.Code, got)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream called %d times, want 1", n)
	}
}

func TestGetStatus(t *testing.T) {
	svc := &fakeService{configured: true}
	_, router := newTestRouter(svc, Options{Version: "1.2.3", Storage: "sqlite"})

	w, got := do(t, router, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got["status"] != "running" || got["api_key_configured"] != true || got["cities_available"] != float64(251) {
		t.Errorf("body = %v", got)
	}
	if got["version"] != "1.2.3" || got["storage"] != "sqlite" {
		t.Errorf("version/storage = %v/%v", got["version"], got["storage"])
	}
	if svc.statusCalls != 1 {
		t.Errorf("RecordStatus calls = %d, want 1", svc.statusCalls)
	}
}

func TestGetHistory(t *testing.T) {
	t.Run("no storage", func(t *testing.T) {
		_, router := newTestRouter(&fakeService{}, Options{})
		w, got := do(t, router, http.MethodGet, "/api/history", "")
		if w.Code != http.StatusNotFound || got["error"] != "History storage not configured" {
			t.Errorf("status=%d body=%v", w.Code, got)
		}
	})
	t.Run("rows", func(t *testing.T) {
		svc := &fakeService{hasStorage: true, history: models.History{
			Weather:  []models.WeatherRecord{{City: "Oslo"}},
			Requests: []models.RequestLog{{Type: "city", Success: true}},
		}}
		_, router := newTestRouter(svc, Options{})
		w, got := do(t, router, http.MethodGet, "/api/history", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if rows, _ := got["recent_weather"].([]interface{}); len(rows) != 1 {
			t.Errorf("recent_weather = %v", got["recent_weather"])
		}
		if rows, ok := got["recent_statistics"].([]interface{}); !ok || len(rows) != 0 {
			t.Errorf("recent_statistics = %v, want []", got["recent_statistics"])
		}
	})
	t.Run("query error", func(t *testing.T) {
		_, router := newTestRouter(&fakeService{hasStorage: true, historyErr: errors.New("db gone")}, Options{})
		w, _ := do(t, router, http.MethodGet, "/api/history", "")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestGetHealth(t *testing.T) {
	failing := errors.New("unreachable")
	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		shutdown   bool
		wantStatus int
		wantState  string
	}{
		{name: "healthy", wantStatus: 200, wantState: "healthy"},
		{name: "healthy with checks", checks: map[string]HealthCheck{"cache": func(context.Context) error { return nil }}, wantStatus: 200, wantState: "healthy"},
		{name: "storage down", checks: map[string]HealthCheck{"storage": func(context.Context) error { return failing }}, wantStatus: 503, wantState: "degraded"},
		{name: "shutting down", shutdown: true, wantStatus: 503, wantState: "shutting-down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, router := newTestRouter(&fakeService{configured: true}, Options{Checks: tt.checks})
			h.SetShuttingDown(tt.shutdown)

			w, got := do(t, router, http.MethodGet, "/health", "")
			if w.Code != tt.wantStatus || got["status"] != tt.wantState {
				t.Errorf("status=%d state=%v, want %d %s", w.Code, got["status"], tt.wantStatus, tt.wantState)
			}
			checks, _ := got["checks"].(map[string]interface{})
			if checks["apiKey"] != "configured" {
				t.Errorf("checks = %v", checks)
			}
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	_, router := newTestRouter(&fakeService{configured: true}, Options{})
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/random-weather"},
		{http.MethodGet, "/api/city-weather"},
		{http.MethodPost, "/api/status"},
		{http.MethodDelete, "/api/history"},
		{http.MethodPost, "/health"},
	}
	for _, tt := range tests {
		w, got := do(t, router, tt.method, tt.path, "")
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d, want 405", tt.method, tt.path, w.Code)
		}
		if got["error"] != "Method not allowed" {
			t.Errorf("%s %s: error = %v", tt.method, tt.path, got["error"])
		}
	}
}

func TestRouter_NotFound(t *testing.T) {
	_, router := newTestRouter(&fakeService{configured: true}, Options{})
	w, got := do(t, router, http.MethodGet, "/api/nothing-here", "")
	if w.Code != http.StatusNotFound || got["error"] != "Not found" {
		t.Errorf("status=%d body=%v, want 404 Not found", w.Code, got)
	}
}

func TestRouter_RateLimitsAPIOnly(t *testing.T) {
	h := NewHandler(&fakeService{configured: true}, Options{}, zap.NewNop())
	router := NewRouter(h, zap.NewNop(), rate.NewLimiter(rate.Limit(0.001), 1), time.Second)

	first, _ := do(t, router, http.MethodGet, "/api/status", "")
	second, _ := do(t, router, http.MethodGet, "/api/status", "")
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Errorf("status codes = %d, %d, want 200, 429", first.Code, second.Code)
	}
	if health, _ := do(t, router, http.MethodGet, "/health", ""); health.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200 regardless of the API limiter", health.Code)
	}
}
