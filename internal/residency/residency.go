// Package residency keeps compiled resources resident for fast access. An
// asset that is "cached" has its compiled blob held here, in process memory or
// in Redis so several service instances can share it.
package residency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache defines the interface for all residency backends
type Cache interface {
	// Get retrieves a compiled blob
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a compiled blob. A zero ttl uses the configured default; a
	// negative ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete evicts a blob
	Delete(ctx context.Context, key string) error

	// Clear evicts every blob under the configured prefix
	Clear(ctx context.Context) error

	// Exists checks whether a blob is resident
	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Config holds common configuration for residency backends
type Config struct {
	// DefaultTTL is how long a resident blob lives; zero means forever
	DefaultTTL time.Duration
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultConfig returns the default residency configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 0,
		Prefix:     "assetforge:",
	}
}

// ErrCacheMiss is returned when a key is not resident
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Open creates the named backend
func Open(backend string, redisConfig RedisConfig, config Config) (Cache, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryCacheWithConfig(config), nil
	case BackendRedis:
		redisConfig.Config = config
		return NewRedisCacheWithConfig(redisConfig)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// effectiveTTL resolves the default and never-expire conventions. A result of
// zero means no expiry.
func effectiveTTL(ttl, def time.Duration) time.Duration {
	if ttl == 0 {
		ttl = def
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}
