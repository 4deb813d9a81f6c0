package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http, service, and cache packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/api/city-weather", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/api/city-weather").Observe(0.01)
	WeatherAPICallsTotal.WithLabelValues("success").Inc()
	WeatherAPICallsTotal.WithLabelValues("error").Inc()
	WeatherAPIDuration.WithLabelValues("success").Observe(0.1)
	WeatherAPIErrorsTotal.WithLabelValues("timeout").Inc()
	CacheHitsTotal.WithLabelValues("weather").Inc()
	CacheMissesTotal.WithLabelValues("weather").Inc()
	StorageErrorsTotal.WithLabelValues("save_weather").Inc()
	PublishErrorsTotal.Inc()
}

func TestSetTrackedCities_and_RecordWeatherQuery(t *testing.T) {
	SetTrackedCities([]string{"London", "paris"})
	defer SetTrackedCities(nil)

	RecordWeatherQuery(" LONDON ")
	if body := scrape(t); !strings.Contains(body, `weatherQueriesByCityTotal{city="london"}`) {
		t.Error("tracked city london not exported")
	}

	if got := MetricCityLabel("Atlantis"); got != "other" {
		t.Errorf("MetricCityLabel(untracked) = %q, want other", got)
	}
}

func TestRecordBatch(t *testing.T) {
	RecordBatch(5, 0, 0, 0)
	RecordBatch(5, 4, -3.5, 12.25)

	body := scrape(t)
	for _, want := range []string{
		`weatherBatchesTotal{outcome="empty"}`,
		`weatherBatchesTotal{outcome="partial"}`,
		"weatherLastColdestTemperature -3.5",
		"weatherLastAverageTemperature 12.25",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", w.Code)
	}
	return w.Body.String()
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/api/status", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
