//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/city-weather/internal/cache"
	"github.com/kjstillabower/city-weather/internal/cities"
	"github.com/kjstillabower/city-weather/internal/client"
	"github.com/kjstillabower/city-weather/internal/service"
	"github.com/kjstillabower/city-weather/internal/storage"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "", "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	cfg := IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        os.Getenv("WEATHER_API_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = client.DefaultAPIURL
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	return cfg
}

// SetupIntegrationService creates a service over the real API with a SQLite
// store in a temp dir. Unreachable cache servers fall back to no cache.
// Everything is closed via t.Cleanup.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, storage.Store) {
	t.Helper()
	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, "metric", 10*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "integration.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var cacheSvc cache.Cache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err != nil {
			t.Logf("Memcached not available (%v), running without cache", err)
			break
		}
		t.Cleanup(func() { _ = mc.Close() })
		cacheSvc = mc
	case "redis":
		rc := cache.NewRedisCache(cfg.RedisAddr, "", 0)
		t.Cleanup(func() { _ = rc.Close() })
		cacheSvc = rc
	case "in_memory":
		cacheSvc = cache.NewInMemoryCache()
	}

	svc := service.NewWeatherService(weatherClient, cities.Default(), "metric", service.Options{
		Cache:     cacheSvc,
		CacheTTL:  time.Minute,
		CacheType: cfg.CacheBackend,
		Store:     store,
		Logger:    zaptest.NewLogger(t),
	})
	return svc, store
}
