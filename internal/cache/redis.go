package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache keeps advisory hold markers and the trip catalogue cache. Nothing
// stored here is authoritative.
type RedisCache struct {
	client   redis.Cmdable
	tripsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, tripsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:   redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		tripsTTL: tripsTTL,
	}
}

// SetWithTTL stores a marker that disappears on its own after ttl.
func (c *RedisCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) GetTrips(ctx context.Context) ([]domain.Trip, error) {
	data, err := c.client.Get(ctx, tripsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var trips []domain.Trip
	if err := json.Unmarshal(data, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

func (c *RedisCache) SetTrips(ctx context.Context, trips []domain.Trip) error {
	payload, err := json.Marshal(trips)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tripsKey(), payload, c.tripsTTL).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func tripsKey() string {
	return "cache:trips"
}
