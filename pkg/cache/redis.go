package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces every matrixcache entry so a shared Redis
// instance can host other tenants.
const redisKeyPrefix = "matrixcache:audio:"

// RedisStore is the alternate BlobStore backend, for deployments where
// several edge instances share one durable store. Expiry rides on Redis
// key TTLs, so EvictExpired has nothing to do.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ BlobStore = (*RedisStore)(nil)

// NewRedisStore connects to addr and verifies the connection. A ttl of zero
// falls back to StoreTTL.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	if ttl <= 0 {
		ttl = StoreTTL
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to reach redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Get returns the payload stored under key.
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := rs.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Put stores payload under key with the store TTL. Empty payloads are
// skipped silently. The level rides along as a secondary index entry so
// stats can be broken down later without scanning payloads.
func (rs *RedisStore) Put(ctx context.Context, key string, payload []byte, level Level) error {
	if len(payload) == 0 {
		return nil
	}
	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+key, payload, rs.ttl)
	if level != "" && level != LevelAll {
		pipe.Set(ctx, redisKeyPrefix+"level:"+key, string(level), rs.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// EvictExpired is a no-op: Redis expires keys natively.
func (rs *RedisStore) EvictExpired(ctx context.Context) (int, error) {
	return 0, ctx.Err()
}

// Clear deletes every matrixcache key.
func (rs *RedisStore) Clear(ctx context.Context) error {
	keys, err := rs.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := rs.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Stats counts entries and sums payload sizes under the namespace.
func (rs *RedisStore) Stats(ctx context.Context) (StoreStats, error) {
	keys, err := rs.scanKeys(ctx)
	if err != nil {
		return StoreStats{}, err
	}
	var s StoreStats
	for _, key := range keys {
		if strings.HasPrefix(key, redisKeyPrefix+"level:") {
			continue
		}
		n, err := rs.client.StrLen(ctx, key).Result()
		if err != nil {
			continue
		}
		s.FileCount++
		s.TotalSizeBytes += n
	}
	return s, nil
}

// Close releases the client connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func (rs *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := rs.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
