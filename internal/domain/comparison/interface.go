package comparison

import (
	"context"
	"time"
)

// Cache stores JSON-serializable values by key.
// Implementations treat backend failures as misses on read.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// KeyStore exposes key inventory for cache administration
type KeyStore interface {
	Keys(ctx context.Context, pattern string) ([]string, error)
	Delete(ctx context.Context, keys ...string) (int, error)
}

// AdminCache is a cache that also supports administration
type AdminCache interface {
	Cache
	KeyStore
}

// ProgressFunc receives progress events; its errors are logged and ignored
type ProgressFunc func(ctx context.Context, event ProgressEvent) error
