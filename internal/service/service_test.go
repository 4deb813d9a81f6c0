package service

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/city-weather/internal/cache"
	"github.com/kjstillabower/city-weather/internal/cities"
	"github.com/kjstillabower/city-weather/internal/client"
	"github.com/kjstillabower/city-weather/internal/models"
	"github.com/kjstillabower/city-weather/internal/stats"
	"github.com/kjstillabower/city-weather/internal/storage"
	"github.com/kjstillabower/city-weather/internal/validation"
)

type mockWeatherClient struct {
	mu    sync.Mutex
	temps map[string]float64
	errs  map[string]error
	calls []string
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.WeatherRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, city)
	// The upstream matches names case-insensitively and returns its own spelling.
	for name, err := range m.errs {
		if strings.EqualFold(name, city) {
			return models.WeatherRecord{}, err
		}
	}
	for name, t := range m.temps {
		if strings.EqualFold(name, city) {
			return models.WeatherRecord{City: name, Temperature: t, Units: "metric", FetchedAt: time.Now().UTC()}, nil
		}
	}
	return models.WeatherRecord{}, client.ErrLocationNotFound
}

type mockStore struct {
	mu       sync.Mutex
	weather  []models.WeatherRecord
	requests []models.RequestLog
	stats    []models.Statistics
	err      error
}

func (m *mockStore) SaveWeather(_ context.Context, rec models.WeatherRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.weather = append(m.weather, rec)
	return nil
}

func (m *mockStore) SaveRequest(_ context.Context, e models.RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.requests = append(m.requests, e)
	return nil
}

func (m *mockStore) SaveStatistics(_ context.Context, s models.Statistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.stats = append(m.stats, s)
	return nil
}

func (m *mockStore) History(context.Context, storage.Limits) (models.History, error) {
	return models.History{Weather: m.weather, Requests: m.requests, Statistics: m.stats}, nil
}

func (m *mockStore) Ping(context.Context) error { return nil }
func (m *mockStore) Close() error               { return nil }

type mockPublisher struct {
	published []models.WeatherRecord
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, rec models.WeatherRecord) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, rec)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func testCatalog(names ...string) *cities.Catalog {
	return cities.New(names, rand.New(rand.NewSource(7)))
}

func TestFetchCity_NotConfigured(t *testing.T) {
	s := NewWeatherService(nil, testCatalog("A"), "metric", Options{})
	if s.Configured() {
		t.Fatal("Configured() = true with nil client")
	}
	if _, err := s.FetchCity(context.Background(), "London"); !errors.Is(err, ErrAPIKeyNotConfigured) {
		t.Errorf("FetchCity() error = %v, want ErrAPIKeyNotConfigured", err)
	}
	if _, err := s.FetchRandom(context.Background(), 1); !errors.Is(err, ErrAPIKeyNotConfigured) {
		t.Errorf("FetchRandom() error = %v, want ErrAPIKeyNotConfigured", err)
	}
}

func TestFetchCity_EmptyNameMakesNoCall(t *testing.T) {
	wc := &mockWeatherClient{}
	s := NewWeatherService(wc, testCatalog("A"), "metric", Options{})

	for _, in := range []string{"", "   "} {
		if _, err := s.FetchCity(context.Background(), in); !errors.Is(err, validation.ErrCityEmpty) {
			t.Errorf("FetchCity(%q) error = %v, want ErrCityEmpty", in, err)
		}
	}
	if len(wc.calls) != 0 {
		t.Errorf("upstream called %d times, want 0", len(wc.calls))
	}
}

func TestFetchCity_SuccessPersistsAndPublishes(t *testing.T) {
	wc := &mockWeatherClient{temps: map[string]float64{"Paris": 18}}
	store := &mockStore{}
	pub := &mockPublisher{}
	s := NewWeatherService(wc, testCatalog("Paris"), "metric", Options{Store: store, Publisher: pub})

	rec, err := s.FetchCity(context.Background(), "  Paris ")
	if err != nil {
		t.Fatalf("FetchCity() error = %v", err)
	}
	if rec.City != "Paris" || rec.Temperature != 18 {
		t.Errorf("record = %+v", rec)
	}
	if len(wc.calls) != 1 || wc.calls[0] != "Paris" {
		t.Errorf("calls = %v, want single trimmed call", wc.calls)
	}
	if len(store.weather) != 1 || len(pub.published) != 1 {
		t.Errorf("persisted %d, published %d, want 1/1", len(store.weather), len(pub.published))
	}
	if len(store.requests) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(store.requests))
	}
	if got := store.requests[0]; got.Type != models.RequestTypeCity || !got.Success || got.CityName != "Paris" {
		t.Errorf("audit row = %+v", got)
	}
}

func TestFetchCity_FailureAuditedAndLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	wc := &mockWeatherClient{}
	store := &mockStore{}
	pub := &mockPublisher{}
	s := NewWeatherService(wc, testCatalog("A"), "metric", Options{Store: store, Publisher: pub, Logger: zap.New(core)})

	_, err := s.FetchCity(context.Background(), "Atlantis")
	if !errors.Is(err, client.ErrLocationNotFound) {
		t.Fatalf("FetchCity() error = %v, want ErrLocationNotFound", err)
	}
	if len(store.weather) != 0 || len(pub.published) != 0 {
		t.Error("failed lookup should not be persisted or published")
	}
	if len(store.requests) != 1 || store.requests[0].Success || store.requests[0].ErrorMessage == "" {
		t.Errorf("audit rows = %+v", store.requests)
	}

	entries := logs.FilterMessage("weather fetch failed").All()
	if len(entries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["category"]; got != "location_not_found" {
		t.Errorf("category = %v, want location_not_found", got)
	}
}

func TestFetchCity_StorageAndPublishErrorsDoNotFail(t *testing.T) {
	wc := &mockWeatherClient{temps: map[string]float64{"Rome": 25}}
	s := NewWeatherService(wc, testCatalog("Rome"), "metric", Options{
		Store:     &mockStore{err: errors.New("disk full")},
		Publisher: &mockPublisher{err: errors.New("broker down")},
	})
	if _, err := s.FetchCity(context.Background(), "Rome"); err != nil {
		t.Errorf("FetchCity() error = %v, want nil despite side-effect failures", err)
	}
}

func TestFetchCity_CacheAside(t *testing.T) {
	wc := &mockWeatherClient{temps: map[string]float64{"Oslo": -1}}
	store := &mockStore{}
	s := NewWeatherService(wc, testCatalog("Oslo"), "metric", Options{Cache: cache.NewInMemoryCache(), CacheTTL: time.Minute, Store: store})

	for _, name := range []string{"Oslo", "oslo", "OSLO"} {
		rec, err := s.FetchCity(context.Background(), name)
		if err != nil {
			t.Fatalf("FetchCity(%q) error = %v", name, err)
		}
		if rec.City != "Oslo" {
			t.Errorf("FetchCity(%q).City = %q, want Oslo", name, rec.City)
		}
	}
	if len(wc.calls) != 1 {
		t.Errorf("upstream calls = %d, want 1 with cache", len(wc.calls))
	}
	if len(store.weather) != 1 {
		t.Errorf("persisted = %d, want only the fresh fetch", len(store.weather))
	}
	if len(store.requests) != 3 {
		t.Errorf("audit rows = %d, want one per lookup", len(store.requests))
	}
}

func TestFetchRandom_ReferenceExample(t *testing.T) {
	wc := &mockWeatherClient{temps: map[string]float64{"CityA": 20, "CityB": 15, "CityC": 25}}
	store := &mockStore{}
	s := NewWeatherService(wc, testCatalog("CityA", "CityB", "CityC"), "metric", Options{Store: store})

	batch, err := s.FetchRandom(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchRandom() error = %v", err)
	}
	if len(batch.Records) != 3 || len(batch.Failed) != 0 {
		t.Fatalf("records/failed = %d/%d", len(batch.Records), len(batch.Failed))
	}
	st := batch.Statistics
	if st.ColdestCity != "CityB" || st.ColdestTemperature != 15 || math.Abs(st.AverageTemperature-20) > 1e-9 || st.TotalCities != 3 {
		t.Errorf("statistics = %+v", st)
	}
	if len(wc.calls) != 3 {
		t.Errorf("upstream calls = %d, want 3", len(wc.calls))
	}
	seen := map[string]bool{}
	for _, c := range wc.calls {
		if seen[c] {
			t.Errorf("city %q fetched twice", c)
		}
		seen[c] = true
	}
	if len(store.stats) != 1 {
		t.Errorf("statistics snapshots = %d, want 1", len(store.stats))
	}
	for _, r := range store.requests {
		if r.Type != models.RequestTypeRandom {
			t.Errorf("audit type = %q, want random", r.Type)
		}
	}
}

func TestFetchRandom_SkipsFailures(t *testing.T) {
	wc := &mockWeatherClient{
		temps: map[string]float64{"A": 10, "C": 30},
		errs:  map[string]error{"B": errors.New("parse response: unexpected EOF")},
	}
	s := NewWeatherService(wc, testCatalog("A", "B", "C"), "metric", Options{})

	batch, err := s.FetchRandom(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchRandom() error = %v", err)
	}
	if len(batch.Records) != 2 || len(batch.Failed) != 1 || batch.Failed[0] != "B" {
		t.Errorf("records=%d failed=%v", len(batch.Records), batch.Failed)
	}
	if batch.Statistics.TotalCities != 2 || batch.Statistics.AverageTemperature != 20 {
		t.Errorf("statistics = %+v", batch.Statistics)
	}

	// Outcomes follow the sampled order, which is the upstream call order.
	if len(batch.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(batch.Outcomes))
	}
	for i, o := range batch.Outcomes {
		if o.City != wc.calls[i] {
			t.Errorf("Outcomes[%d].City = %q, want %q", i, o.City, wc.calls[i])
		}
		if (o.City == "B") != (o.Err != nil) {
			t.Errorf("Outcomes[%d] = %s err=%v", i, o.City, o.Err)
		}
	}
}

func TestFetchRandom_AllFail(t *testing.T) {
	store := &mockStore{}
	s := NewWeatherService(&mockWeatherClient{}, testCatalog("A", "B"), "metric", Options{Store: store})

	batch, err := s.FetchRandom(context.Background(), 2)
	if !errors.Is(err, stats.ErrNoData) {
		t.Fatalf("FetchRandom() error = %v, want ErrNoData", err)
	}
	if len(batch.Failed) != 2 {
		t.Errorf("failed = %v, want both cities", batch.Failed)
	}
	if len(store.stats) != 0 {
		t.Error("no statistics snapshot should be stored for an empty batch")
	}
}

func TestFetchRandom_InvalidCount(t *testing.T) {
	s := NewWeatherService(&mockWeatherClient{}, testCatalog("A", "B"), "metric", Options{})
	for _, n := range []int{0, -1, 3} {
		if _, err := s.FetchRandom(context.Background(), n); !errors.Is(err, cities.ErrSampleSize) {
			t.Errorf("FetchRandom(%d) error = %v, want ErrSampleSize", n, err)
		}
	}
}

func TestFetchRandom_CanceledContext(t *testing.T) {
	wc := &mockWeatherClient{temps: map[string]float64{"A": 1, "B": 2}}
	s := NewWeatherService(wc, testCatalog("A", "B"), "metric", Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := s.FetchRandom(ctx, 2)
	if !errors.Is(err, stats.ErrNoData) {
		t.Fatalf("FetchRandom() error = %v, want ErrNoData", err)
	}
	if len(wc.calls) != 0 || len(batch.Failed) != 2 {
		t.Errorf("calls=%d failed=%v", len(wc.calls), batch.Failed)
	}
	for _, o := range batch.Outcomes {
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("outcome %s err = %v, want context.Canceled", o.City, o.Err)
		}
	}
}

func TestRecordStatusAndHistory(t *testing.T) {
	s := NewWeatherService(nil, testCatalog("A"), "metric", Options{})
	if _, err := s.History(context.Background(), storage.DefaultLimits); !errors.Is(err, storage.ErrNotConfigured) {
		t.Errorf("History() without store error = %v", err)
	}
	s.RecordStatus(context.Background())

	store := &mockStore{}
	s = NewWeatherService(nil, testCatalog("A"), "metric", Options{Store: store})
	s.RecordStatus(context.Background())
	h, err := s.History(context.Background(), storage.DefaultLimits)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(h.Requests) != 1 || h.Requests[0].Type != models.RequestTypeStatus {
		t.Errorf("requests = %+v", h.Requests)
	}
	if !s.HasStorage() || s.CitiesAvailable() != 1 || s.Units() != "metric" {
		t.Error("accessors mismatch")
	}
}
