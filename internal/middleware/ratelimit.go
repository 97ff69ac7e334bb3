package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter increments a windowed counter and reports the new value.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a fixed-window counter: INCR plus EXPIRE, sent as one
// MULTI/EXEC. Keys embed the window start, so a later window never shares a
// counter with an earlier one.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis: %w", err)
	}
	return incr.Val(), nil
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	Limit  int           // requests allowed per window
	Window time.Duration // window length
	Prefix string        // redis key prefix
}

// RateLimit rejects a client IP's requests beyond cfg.Limit per window with
// 429. When the counter fails (Redis down) the request is let through: a
// broken limiter must not lock everyone out of login.
//
// Mount it after chimiddleware.RealIP so RemoteAddr is the client address.
func RateLimit(counter Counter, cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			window := now.Truncate(cfg.Window)
			key := fmt.Sprintf("%s:%s:%d", cfg.Prefix, clientIP(r), window.Unix())

			n, err := counter.Incr(r.Context(), key, cfg.Window)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(cfg.Limit) - n
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if n > int64(cfg.Limit) {
				retry := int(window.Add(cfg.Window).Sub(now).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "too many requests, try again later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP stores a bare IP without a port.
		return r.RemoteAddr
	}
	return host
}
