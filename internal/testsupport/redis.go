package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"comparoo/internal/adapters/config"
)

// CacheKeyPatterns are the key families the comparison cache writes
var CacheKeyPatterns = []string{"comparison:*", "metrics:*", "product:*"}

// NewRedisClient connects to the integration Redis and clears the cache key
// families before and after the test. Other keys in the database are left alone.
func NewRedisClient(t *testing.T, cfg config.RedisConfig) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis at %s unreachable: %v", cfg.Addr(), err)
	}
	require.NoError(t, ClearCacheKeys(ctx, client), "clear cache keys before test")

	t.Cleanup(func() {
		_ = ClearCacheKeys(context.Background(), client)
		_ = client.Close()
	})

	return client
}

// ClearCacheKeys deletes every key in CacheKeyPatterns
func ClearCacheKeys(ctx context.Context, client *redis.Client) error {
	for _, pattern := range CacheKeyPatterns {
		var keys []string
		iter := client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) == 0 {
			continue
		}
		if err := client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}
