package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisCache is a hot cache in front of the filesystem store used by the tile
// server. Entries expire after TTL; the filesystem stays the source of truth.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}, nil
}

var _ TileStore = (*RedisCache)(nil)

func (c *RedisCache) keyFor(k tile.Coordinate) string {
	return fmt.Sprintf("tile:%s:%d:%d:%d", k.Provider, k.Zoom, k.X, k.Y)
}

func (c *RedisCache) Exists(k tile.Coordinate) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	defer observe("exists", time.Now())

	n, err := c.client.Exists(ctx, c.keyFor(k)).Result()
	if err != nil {
		metrics.RedisErrors.WithLabelValues("exists").Inc()
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) Get(k tile.Coordinate) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	defer observe("get", time.Now())

	data, err := c.client.Get(ctx, c.keyFor(k)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		metrics.RedisErrors.WithLabelValues("get").Inc()
		return nil, false, fmt.Errorf("redis get error: %w", err)
	}

	return data, true, nil
}

func (c *RedisCache) Set(k tile.Coordinate, v []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	defer observe("set", time.Now())

	if err := c.client.Set(ctx, c.keyFor(k), v, c.ttl).Err(); err != nil {
		metrics.RedisErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func observe(op string, start time.Time) {
	metrics.RedisOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
