package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

var ErrCacheMiss = errors.New(errors.ErrCodeNotFound, "cache miss")

// nullSentinel caches the absence of a value so repeated lookups for a
// missing key do not hammer the database.
const (
	nullSentinel = "__null__"
	nullCacheTTL = 30 * time.Second
	scanBatch    = 200
)

// Cache is a JSON value cache with request coalescing on the load path.
type Cache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
	group      singleflight.Group
}

// LoaderFunc fetches the value on a cache miss. Returning (nil, nil) caches
// the null sentinel for a short period.
type LoaderFunc func(ctx context.Context) (interface{}, error)

func NewCache(client *Client, cfg config.RedisConfig, log logging.Logger) *Cache {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "chemscreen:"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	ttl := cfg.DefaultTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{
		client:     client,
		logger:     log.Named("cache"),
		prefix:     prefix,
		defaultTTL: ttl,
	}
}

func (c *Cache) key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

// Get unmarshals the cached value into dest. Returns ErrCacheMiss when the
// key is absent or holds the null sentinel.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache get failed").WithDetailf("key=%s", key)
	}
	if raw == nullSentinel {
		return ErrCacheMiss
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "cache value decode failed").WithDetailf("key=%s", key)
	}
	return nil
}

// Set stores value as JSON. A zero ttl uses the configured default, and the
// effective TTL is jittered to spread expiry of keys written together.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "cache value encode failed").WithDetailf("key=%s", key)
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(key), data, jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache set failed").WithDetailf("key=%s", key)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache delete failed")
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "cache exists failed").WithDetailf("key=%s", key)
	}
	return n > 0, nil
}

// GetOrLoad reads through the cache, coalescing concurrent loads of the same
// key into one loader call. A loader returning (nil, nil) marks the key
// absent with the null sentinel.
func (c *Cache) GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader LoaderFunc) error {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err == nil {
		if raw == nullSentinel {
			return ErrCacheMiss
		}
		if err := json.Unmarshal([]byte(raw), dest); err == nil {
			return nil
		}
		c.logger.Warn("cached value undecodable, reloading", logging.String("key", key))
	} else if err != redis.Nil {
		c.logger.Warn("cache read failed, falling through to loader",
			logging.String("key", key), logging.Err(err))
	}

	data, err, _ := c.group.Do(c.key(key), func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if value == nil {
			c.client.Set(ctx, c.key(key), nullSentinel, nullCacheTTL)
			return nil, ErrCacheMiss
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "cache value encode failed").WithDetailf("key=%s", key)
		}
		effective := ttl
		if effective == 0 {
			effective = c.defaultTTL
		}
		if setErr := c.client.Set(ctx, c.key(key), encoded, jitterTTL(effective)).Err(); setErr != nil {
			c.logger.Warn("cache fill failed", logging.String("key", key), logging.Err(setErr))
		}
		return encoded, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data.([]byte), dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "cache value decode failed").WithDetailf("key=%s", key)
	}
	return nil
}

// DeleteByPrefix removes all keys under the given logical prefix using SCAN
// so the server is never blocked by a KEYS call.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	pattern := c.key(prefix) + "*"
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "cache scan failed").WithDetailf("pattern=%s", pattern)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "cache delete failed")
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// jitterTTL spreads expiry by up to 10% either way.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	jitter := int64(float64(ttl) * 0.1)
	if jitter == 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(2*jitter)-jitter)
}
