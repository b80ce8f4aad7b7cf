package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request under key fits its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit limits verb requests per capability key, or per client IP when
// the body names no key. Limiter errors fail open.
func RateLimit(limiter Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		var req struct {
			Key string `json:"key"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.Key)
		if subject == "" {
			subject = c.IP()
		}
		ok, err := limiter.Allow(c.UserContext(), subject)
		if err != nil {
			return c.Next()
		}
		if !ok {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

// RedisLimiter counts requests in fixed one-minute windows shared by all replicas.
type RedisLimiter struct {
	client    *redis.Client
	perMinute int
}

// NewRedisLimiter returns a limiter allowing perMinute requests per key.
func NewRedisLimiter(client *redis.Client, perMinute int) *RedisLimiter {
	return &RedisLimiter{client: client, perMinute: perMinute}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	rk := "rl:bank:" + key
	cnt, err := l.client.Incr(ctx, rk).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		l.client.Expire(ctx, rk, time.Minute)
	}
	return cnt <= int64(l.perMinute), nil
}

// LocalLimiter keeps a token bucket per key in process. Idle buckets are
// evicted after ten minutes.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   *cache.Cache
	perMinute int
}

// NewLocalLimiter returns a limiter allowing perMinute requests per key with
// bursts up to perMinute.
func NewLocalLimiter(perMinute int) *LocalLimiter {
	return &LocalLimiter{
		buckets:   cache.New(10*time.Minute, 10*time.Minute),
		perMinute: perMinute,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lim *rate.Limiter
	if v, ok := l.buckets.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.perMinute)
	}
	// Refresh the eviction deadline on every use.
	l.buckets.SetDefault(key, lim)
	return lim.Allow(), nil
}
