package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/city-weather/internal/models"
)

// RedisCache implements Cache using Redis string keys with native expiry.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache for addr. The connection is lazy; call Ping to verify it.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.Get.
func (c *RedisCache) Get(ctx context.Context, key string) (models.WeatherRecord, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.WeatherRecord{}, false, nil
	}
	if err != nil {
		return models.WeatherRecord{}, false, fmt.Errorf("redis get: %w", err)
	}
	var rec models.WeatherRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.WeatherRecord{}, false, fmt.Errorf("redis decode: %w", err)
	}
	return rec, true, nil
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, value models.WeatherRecord, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
