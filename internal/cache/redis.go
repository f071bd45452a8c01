package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"emberscan/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// ErrCacheDisabled is returned by operations when Redis is not configured.
var ErrCacheDisabled = errors.New("cache disabled")

// Layer2 is the optional second cache tier behind the in-memory store.
// Only immutable domains (blocks, transactions, receipts) are written
// through, so a process restart against the same chain does not cold-start.
type Layer2 interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Flush(ctx context.Context) error
	Close() error
}

// RedisCache implements Layer2 on Redis. A disabled or unreachable Redis
// degrades gracefully: every operation reports ErrCacheDisabled and the
// caller falls back to the node.
type RedisCache struct {
	client    *redis.Client
	logger    *logger.Logger
	namespace string
	enabled   bool
}

// NewRedisCache connects to Redis, or returns a disabled no-op cache.
func NewRedisCache(uri, namespace string, enabled bool, log *logger.Logger) (*RedisCache, error) {
	if !enabled {
		log.Info("Redis layer-2 cache disabled, in-memory only")
		return &RedisCache{enabled: false, logger: log}, nil
	}

	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Redis layer-2 cache connected")

	if namespace == "" {
		namespace = "emberscan"
	}
	return &RedisCache{
		client:    client,
		logger:    log,
		namespace: namespace,
		enabled:   true,
	}, nil
}

func (r *RedisCache) key(k string) string {
	return r.namespace + ":" + k
}

// Get returns the cached bytes for key. A missing key is redis.Nil wrapped
// as ErrCacheDisabled-distinct miss; callers treat any error as a miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !r.enabled {
		return nil, ErrCacheDisabled
	}

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("key %s: %w", key, redis.Nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from Redis: %w", key, err)
	}
	return val, nil
}

// Set stores value under key. A zero ttl stores without expiration.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !r.enabled {
		return ErrCacheDisabled
	}

	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s to Redis: %w", key, err)
	}
	return nil
}

// Flush removes every key in the namespace. Called on a detected chain
// reset, when persisted "immutable" data is void.
func (r *RedisCache) Flush(ctx context.Context) error {
	if !r.enabled {
		return ErrCacheDisabled
	}

	iter := r.client.Scan(ctx, 0, r.namespace+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to flush Redis namespace: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan Redis namespace: %w", err)
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to flush Redis namespace: %w", err)
		}
	}

	r.logger.Info("Flushed Redis layer-2 cache namespace %s", r.namespace)
	return nil
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	if !r.enabled || r.client == nil {
		return nil
	}
	return r.client.Close()
}
