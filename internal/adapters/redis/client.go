package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"comparoo/internal/adapters/config"
	"comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

const scanBatch = 200

// Client wraps Redis client and serves as the comparison cache
type Client struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrapf(err, "redis ping %s", cfg.Addr())
	}

	return NewFromClient(rdb), nil
}

// NewFromClient wraps an existing go-redis client
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{
		rdb: rdb,
		log: logger.Get().With("component", "redis_cache"),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetJSON loads key into dest. Missing keys, backend failures and
// undecodable payloads are all reported as misses.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnw("cache_get_failed", "key", key, "error", err)
		}
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.log.Warnw("cache_decode_failed", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// SetJSON stores value with ttl
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode cache value %s", key)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "cache set %s", key)
	}
	return nil
}

// Keys lists keys matching a glob pattern using SCAN
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", pattern)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Delete removes keys and returns how many existed
func (c *Client) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errors.Wrap(err, "cache delete")
	}
	return int(n), nil
}

var _ comparison.AdminCache = (*Client)(nil)
