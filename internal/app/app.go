// Package app wires configuration into a ready WeatherService and its
// backends. The cmd binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather/internal/cache"
	"github.com/kjstillabower/city-weather/internal/cities"
	"github.com/kjstillabower/city-weather/internal/client"
	"github.com/kjstillabower/city-weather/internal/config"
	"github.com/kjstillabower/city-weather/internal/events"
	"github.com/kjstillabower/city-weather/internal/service"
	"github.com/kjstillabower/city-weather/internal/storage"
)

// Check is a named dependency check used by /health.
type Check func(ctx context.Context) error

// Deps holds the constructed service and everything that must be closed with it.
type Deps struct {
	Service *service.WeatherService
	Checks  map[string]Check

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

type pingCloser interface {
	Ping(ctx context.Context) error
	Close() error
}

// Build connects the configured cache, storage and event backends and returns
// the service over them. A missing API key is not an error: the service is
// built without a client and reports ErrAPIKeyNotConfigured per lookup.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Deps, error) {
	d := &Deps{Checks: map[string]Check{}}

	var wc client.WeatherClient
	if cfg.APIKeyConfigured() {
		c, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherUnits, cfg.WeatherAPITimeout)
		if err != nil {
			return nil, fmt.Errorf("weather client: %w", err)
		}
		wc = c
	} else {
		logger.Warn("WEATHER_API_KEY not set; lookups will fail until one is configured")
	}

	c, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	if pc, ok := c.(pingCloser); ok {
		d.Checks["cache"] = pc.Ping
		d.closers = append(d.closers, namedCloser{"cache", pc.Close})
	}
	logger.Info("cache backend: "+cfg.CacheBackend, zap.Duration("ttl", cfg.CacheTTL))

	store, err := storage.Open(ctx, cfg.StorageBackend, cfg.SQLitePath, cfg.DatabaseURL)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		store = nil
	case err != nil:
		d.Close(logger)
		return nil, fmt.Errorf("storage: %w", err)
	default:
		d.Checks["storage"] = store.Ping
		d.closers = append(d.closers, namedCloser{"storage", store.Close})
	}
	logger.Info("storage backend: " + cfg.StorageBackend)

	pub := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	d.closers = append(d.closers, namedCloser{"publisher", pub.Close})
	if len(cfg.KafkaBrokers) > 0 {
		logger.Info("publishing weather events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	d.Service = service.NewWeatherService(wc, cities.Default(), cfg.WeatherUnits, service.Options{
		Cache:     c,
		CacheTTL:  cfg.CacheTTL,
		CacheType: cfg.CacheBackend,
		Store:     store,
		Publisher: pub,
		Logger:    logger,
	})
	return d, nil
}

// newCache returns nil for the "none" backend.
func newCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case "in_memory":
		return cache.NewInMemoryCache(), nil
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		return mc, nil
	case "redis":
		return cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, nil
	}
}

// Close releases backends in reverse order of construction. Errors are logged.
func (d *Deps) Close(logger *zap.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].close(); err != nil {
			logger.Error(d.closers[i].name+" close", zap.Error(err))
		}
	}
	d.closers = nil
}
