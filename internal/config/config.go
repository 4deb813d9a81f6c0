package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxCityCount caps how many cities one random batch may request.
const MaxCityCount = 10

// Config holds application configuration loaded from YAML, .env and the environment.
type Config struct {
	Env string

	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	WeatherUnits      string

	DefaultCityCount int
	TrackedCities    []string

	RequestTimeout time.Duration

	CacheBackend          string // "none", "in_memory", "memcached" or "redis"
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int

	StorageBackend string // "none", "sqlite" or "postgres"
	SQLitePath     string
	DatabaseURL    string

	KafkaBrokers []string
	KafkaTopic   string

	TelegramToken string

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration
	SamplerInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		Units   string `yaml:"units"`
	} `yaml:"weather_api"`

	Cities struct {
		DefaultCount int      `yaml:"default_count"`
		Tracked      []string `yaml:"tracked"`
	} `yaml:"cities"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Storage struct {
		Backend    string `yaml:"backend"`
		SQLitePath string `yaml:"sqlite_path"`
		URL        string `yaml:"url"`
	} `yaml:"storage"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`

	RateLimit struct {
		RPS   int `yaml:"rps"`
		Burst int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Sampler struct {
		Interval string `yaml:"interval"`
	} `yaml:"sampler"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	TelegramToken string `yaml:"telegram_token"`
	DatabaseURL   string `yaml:"database_url"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), .env and
// config/secrets.yaml, relative to the working directory. A missing dev file
// means defaults; a missing file for an explicitly named environment is an error.
// A missing API key is not an error; callers report it per request.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load rooted at dir.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	explicit := env != ""
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
		// defaults
	case os.IsNotExist(err):
		return nil, fmt.Errorf("config file not found: %s", configPath)
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{Env: env}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("WEATHER_API_KEY")), strings.TrimSpace(sec.WeatherAPIKey))
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.WeatherUnits = normalizeUnits(fc.WeatherAPI.Units)

	cfg.DefaultCityCount = fc.Cities.DefaultCount
	if cfg.DefaultCityCount == 0 {
		cfg.DefaultCityCount = 5
	}
	cfg.TrackedCities = fc.Cities.Tracked

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 60*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "none")))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = firstNonEmpty(strings.TrimSpace(os.Getenv("REDIS_ADDR")), fc.Cache.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = fc.Cache.Redis.Password
	cfg.RedisDB = fc.Cache.Redis.DB

	cfg.StorageBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("STORAGE_BACKEND"), fc.Storage.Backend, "none")))
	cfg.SQLitePath = firstNonEmpty(fc.Storage.SQLitePath, "weather.db")
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), sec.DatabaseURL, fc.Storage.URL)

	cfg.KafkaBrokers = fc.Kafka.Brokers
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	cfg.KafkaTopic = firstNonEmpty(fc.Kafka.Topic, "weather.records")

	cfg.TelegramToken = firstNonEmpty(strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")), sec.TelegramToken, fc.Telegram.Token)

	cfg.RateLimitRPS = fc.RateLimit.RPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	cfg.RateLimitBurst = fc.RateLimit.Burst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.SamplerInterval = parseDurationOrZero(fc.Sampler.Interval, 0)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// APIKeyConfigured reports whether a weather API key is present.
func (c *Config) APIKeyConfigured() bool {
	return c != nil && c.WeatherAPIKey != ""
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// normalizeUnits lowercases the unit system and maps "kelvin" to the upstream's "standard".
func normalizeUnits(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return "metric"
	case "kelvin":
		return "standard"
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised to exceed
// WeatherAPITimeout so a single lookup can always finish.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if cfg.DefaultCityCount < 1 || cfg.DefaultCityCount > MaxCityCount {
		return fmt.Errorf("cities.default_count must be between 1 and %d, got %d", MaxCityCount, cfg.DefaultCityCount)
	}
	switch cfg.WeatherUnits {
	case "metric", "imperial", "standard":
	default:
		return fmt.Errorf("weather_api.units must be metric, imperial or standard, got %q", cfg.WeatherUnits)
	}
	switch cfg.CacheBackend {
	case "none", "in_memory", "memcached", "redis":
	default:
		return fmt.Errorf("cache.backend must be none, in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	switch cfg.StorageBackend {
	case "none", "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("storage.backend postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("storage.backend must be none, sqlite or postgres, got %q", cfg.StorageBackend)
	}
	if cfg.SamplerInterval < 0 {
		return fmt.Errorf("sampler.interval must not be negative")
	}
	return nil
}
