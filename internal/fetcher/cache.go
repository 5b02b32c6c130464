package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOptions configures the shared Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// CachedPriceOracle serves recent quotes from Redis and asks the wrapped oracle for the rest.
// Redis failures degrade to uncached lookups.
type CachedPriceOracle struct {
	next   PriceOracle
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedPriceOracle wraps next with a Redis cache; keys are "<prefix>price:<id>".
func NewCachedPriceOracle(next PriceOracle, rdb redis.Cmdable, prefix string, ttl time.Duration, logger zerolog.Logger) *CachedPriceOracle {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedPriceOracle{
		next:   next,
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "price_cache").Logger(),
	}
}

func (c *CachedPriceOracle) key(id string) string {
	return c.prefix + "price:" + id
}

// GetPrice implements PriceOracle.
func (c *CachedPriceOracle) GetPrice(ctx context.Context, ids []string) (map[string]Quote, error) {
	ids = uniqueIDs(ids)
	out := make(map[string]Quote, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	missing := ids
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("price cache read failed")
	} else {
		missing = missing[:0:0]
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var q Quote
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			out[ids[i]] = q
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.next.GetPrice(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for id, q := range fresh {
		out[id] = q
		raw, err := json.Marshal(q)
		if err != nil {
			continue
		}
		pipe.Set(ctx, c.key(id), raw, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Int("quotes", len(fresh)).Msg("price cache write failed")
	}
	return out, nil
}

// Limiter throttles calls sharing a key across requests and processes.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// NopLimiter never waits.
type NopLimiter struct{}

func (NopLimiter) Wait(ctx context.Context, _ string) error { return ctx.Err() }

// RedisLimiter is a fixed-window limiter: at most limit calls per window per key.
type RedisLimiter struct {
	rdb    redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter constructs a limiter; a non-positive limit disables it.
func NewRedisLimiter(rdb redis.Cmdable, prefix string, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: int64(limit), window: window, now: time.Now}
}

// Wait blocks until the current window has room for one more call.
func (l *RedisLimiter) Wait(ctx context.Context, key string) error {
	if l.limit <= 0 {
		return ctx.Err()
	}
	for {
		now := l.now()
		slot := now.UnixNano() / int64(l.window)
		windowKey := fmt.Sprintf("%sratelimit:%s:%d", l.prefix, key, slot)

		pipe := l.rdb.TxPipeline()
		incr := pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, 2*l.window)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis: rate limit %s: %w", key, err)
		}
		if incr.Val() <= l.limit {
			return nil
		}

		next := time.Unix(0, (slot+1)*int64(l.window))
		if err := sleep(ctx, next.Sub(now)); err != nil {
			return err
		}
	}
}

var (
	_ Limiter = NopLimiter{}
	_ Limiter = (*RedisLimiter)(nil)
)
