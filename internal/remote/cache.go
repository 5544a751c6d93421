package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultTTL = 10 * time.Minute

// CacheConfig configures a Cache.
type CacheConfig struct {
	Client     *redis.Client
	TTL        time.Duration
	Prefix     string
	Logger     zerolog.Logger
	Registerer prometheus.Registerer
}

// Cache is a Redis read-through cache for slow-changing lookups. Concurrent
// misses for one key share a single remote call. Redis failures degrade to
// uncached lookups.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	prefix   string
	logger   zerolog.Logger
	group    singleflight.Group
	requests *prometheus.CounterVec
}

// NewCache constructs a Cache.
func NewCache(cfg CacheConfig) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "invoicing:"
	}
	c := &Cache{
		client: cfg.Client,
		ttl:    ttl,
		prefix: prefix,
		logger: cfg.Logger.With().Str("component", "remote.cache").Logger(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicing_cache_requests_total",
			Help: "Lookup cache requests by result.",
		}, []string{"result"}),
	}
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(c.requests)
	}
	return c
}

// Invalidate drops cached keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return c.client.Del(ctx, full...).Err()
}

// cached returns the value stored under key, loading and storing it on a miss.
// A nil cache always loads.
func cached[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	var out T
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	switch {
	case err == nil:
		if jerr := json.Unmarshal(raw, &out); jerr == nil {
			c.requests.WithLabelValues("hit").Inc()
			return out, nil
		}
		c.logger.Warn().Str("key", key).Msg("cache entry undecodable")
	case !errors.Is(err, redis.Nil):
		c.requests.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("cache get")
	}
	c.requests.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if b, merr := json.Marshal(v); merr == nil {
			if serr := c.client.Set(ctx, c.prefix+key, b, c.ttl).Err(); serr != nil {
				c.logger.Warn().Err(serr).Str("key", key).Msg("cache set")
			}
		}
		return v, nil
	})
	if err != nil {
		return out, err
	}
	return v.(T), nil
}
