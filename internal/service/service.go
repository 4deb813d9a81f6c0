package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather/internal/cache"
	"github.com/kjstillabower/city-weather/internal/cities"
	"github.com/kjstillabower/city-weather/internal/client"
	"github.com/kjstillabower/city-weather/internal/events"
	"github.com/kjstillabower/city-weather/internal/models"
	"github.com/kjstillabower/city-weather/internal/observability"
	"github.com/kjstillabower/city-weather/internal/stats"
	"github.com/kjstillabower/city-weather/internal/storage"
	"github.com/kjstillabower/city-weather/internal/validation"
)

// ErrAPIKeyNotConfigured is returned by every lookup when no API key is available.
var ErrAPIKeyNotConfigured = errors.New("API key not configured")

// Options carries the optional collaborators of a WeatherService.
type Options struct {
	// Cache is consulted before the upstream when set. CacheType labels cache metrics.
	Cache     cache.Cache
	CacheTTL  time.Duration
	CacheType string

	// Store receives fetched records, audit rows and statistics snapshots.
	Store storage.Store

	// Publisher receives one event per freshly fetched record.
	Publisher events.Publisher

	Logger *zap.Logger
}

// WeatherService runs city lookups and random batches and records what it did.
// History writes and event publishing are best-effort: their failures are
// logged and counted but never fail a lookup.
type WeatherService struct {
	client    client.WeatherClient
	catalog   *cities.Catalog
	units     string
	cache     cache.Cache
	ttl       time.Duration
	cacheType string
	store     storage.Store
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewWeatherService creates a WeatherService. wc may be nil when no API key is
// configured; lookups then fail with ErrAPIKeyNotConfigured.
func NewWeatherService(wc client.WeatherClient, catalog *cities.Catalog, units string, opts Options) *WeatherService {
	if catalog == nil {
		catalog = cities.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheType == "" {
		opts.CacheType = "weather"
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &WeatherService{
		client:    wc,
		catalog:   catalog,
		units:     units,
		cache:     opts.Cache,
		ttl:       opts.CacheTTL,
		cacheType: opts.CacheType,
		store:     opts.Store,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Configured reports whether an API key (and so a client) is available.
func (s *WeatherService) Configured() bool {
	return s.client != nil
}

// CitiesAvailable returns the size of the city catalog.
func (s *WeatherService) CitiesAvailable() int {
	return s.catalog.Len()
}

// Units returns the unit system records are fetched in.
func (s *WeatherService) Units() string {
	return s.units
}

// HasStorage reports whether a history store is attached.
func (s *WeatherService) HasStorage() bool {
	return s.store != nil
}

// FetchCity looks up one city. A missing key is reported first; blank or
// malformed names then fail with a validation error before any network call.
func (s *WeatherService) FetchCity(ctx context.Context, city string) (models.WeatherRecord, error) {
	if !s.Configured() {
		return models.WeatherRecord{}, ErrAPIKeyNotConfigured
	}
	name, err := validation.ValidateCity(city, 0)
	if err != nil {
		return models.WeatherRecord{}, err
	}
	return s.fetchOne(ctx, name, models.RequestTypeCity)
}

// FetchRandom samples n distinct cities and fetches each in turn. Cities that
// fail are listed in Batch.Failed and skipped. When no city succeeds the batch
// is returned with stats.ErrNoData.
func (s *WeatherService) FetchRandom(ctx context.Context, n int) (models.Batch, error) {
	if !s.Configured() {
		return models.Batch{}, ErrAPIKeyNotConfigured
	}
	names, err := s.catalog.Sample(n)
	if err != nil {
		return models.Batch{}, fmt.Errorf("sample %d cities: %w", n, err)
	}

	logger := observability.LoggerFrom(ctx, s.logger)
	batch := models.Batch{
		Records:  make([]models.WeatherRecord, 0, len(names)),
		Outcomes: make([]models.Outcome, 0, len(names)),
	}
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			for _, rest := range names[i:] {
				batch.Failed = append(batch.Failed, rest)
				batch.Outcomes = append(batch.Outcomes, models.Outcome{City: rest, Err: err})
			}
			break
		}
		rec, err := s.fetchOne(ctx, name, models.RequestTypeRandom)
		batch.Outcomes = append(batch.Outcomes, models.Outcome{City: name, Record: rec, Err: err})
		if err != nil {
			batch.Failed = append(batch.Failed, name)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	summary, err := stats.Summarize(batch.Records)
	if err != nil {
		observability.RecordBatch(len(names), 0, 0, 0)
		logger.Warn("random batch returned no data", zap.Int("requested", len(names)))
		return batch, err
	}
	batch.Statistics = summary
	observability.RecordBatch(len(names), len(batch.Records), summary.ColdestTemperature, summary.AverageTemperature)

	if s.store != nil {
		if err := s.store.SaveStatistics(ctx, summary); err != nil {
			s.storageFailed(ctx, "save_statistics", err)
		}
	}
	logger.Info("random batch complete",
		zap.Int("requested", len(names)),
		zap.Int("succeeded", len(batch.Records)),
		zap.String("coldest_city", summary.ColdestCity),
		zap.Float64("average_temperature", summary.AverageTemperature),
	)
	return batch, nil
}

// RecordStatus writes a status-check audit row.
func (s *WeatherService) RecordStatus(ctx context.Context) {
	s.audit(ctx, models.RequestLog{Type: models.RequestTypeStatus, Success: true, Timestamp: s.now().UTC()})
}

// History returns the recent trail from the attached store.
func (s *WeatherService) History(ctx context.Context, limits storage.Limits) (models.History, error) {
	if s.store == nil {
		return models.History{}, storage.ErrNotConfigured
	}
	return s.store.History(ctx, limits)
}

// fetchOne resolves one already-validated name through the cache and the
// upstream, then audits, persists and publishes the result.
func (s *WeatherService) fetchOne(ctx context.Context, name, requestType string) (models.WeatherRecord, error) {
	logger := observability.LoggerFrom(ctx, s.logger)
	start := s.now()
	observability.RecordWeatherQuery(name)

	rec, cached, err := s.lookup(ctx, name)
	elapsed := s.now().Sub(start).Seconds()

	entry := models.RequestLog{
		Type:         requestType,
		CityName:     name,
		Success:      err == nil,
		ResponseTime: elapsed,
		Timestamp:    s.now().UTC(),
	}
	if err != nil {
		category := client.CategorizeError(err)
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(category)).Inc()
		logger.Warn("weather fetch failed",
			zap.String("city", name),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		entry.ErrorMessage = err.Error()
		s.audit(ctx, entry)
		return models.WeatherRecord{}, fmt.Errorf("fetch weather for %s: %w", name, err)
	}
	s.audit(ctx, entry)

	logger.Debug("weather served", zap.String("city", name), zap.Bool("cached", cached), zap.Float64("duration_seconds", elapsed))
	if cached {
		return rec, nil
	}

	if s.store != nil {
		if err := s.store.SaveWeather(ctx, rec); err != nil {
			s.storageFailed(ctx, "save_weather", err)
		}
	}
	if err := s.publisher.Publish(ctx, rec); err != nil {
		observability.PublishErrorsTotal.Inc()
		logger.Warn("publish weather event failed", zap.String("city", name), zap.Error(err))
	}
	return rec, nil
}

// lookup is cache-aside over the client. Cache errors are logged and treated as misses.
func (s *WeatherService) lookup(ctx context.Context, name string) (models.WeatherRecord, bool, error) {
	if s.cache == nil {
		rec, err := s.client.GetCurrentWeather(ctx, name)
		return rec, false, err
	}

	logger := observability.LoggerFrom(ctx, s.logger)
	key := cache.Key(name, s.units)
	cached, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.Warn("cache get failed", zap.String("city", name), zap.Error(err))
	case ok:
		observability.CacheHitsTotal.WithLabelValues(s.cacheType).Inc()
		return cached, true, nil
	}
	observability.CacheMissesTotal.WithLabelValues(s.cacheType).Inc()

	rec, err := s.client.GetCurrentWeather(ctx, name)
	if err != nil {
		return models.WeatherRecord{}, false, err
	}
	if err := s.cache.Set(ctx, key, rec, s.ttl); err != nil {
		logger.Warn("cache set failed", zap.String("city", name), zap.Error(err))
	}
	return rec, false, nil
}

func (s *WeatherService) audit(ctx context.Context, entry models.RequestLog) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveRequest(ctx, entry); err != nil {
		s.storageFailed(ctx, "save_request", err)
	}
}

func (s *WeatherService) storageFailed(ctx context.Context, op string, err error) {
	observability.StorageErrorsTotal.WithLabelValues(op).Inc()
	observability.LoggerFrom(ctx, s.logger).Warn("history write failed", zap.String("operation", op), zap.Error(err))
}
