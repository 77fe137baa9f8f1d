package api

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	httprateredis "github.com/go-chi/httprate-redis"
	"github.com/redis/go-redis/v9"
)

// RouteOption customises SetupRoutes.
type RouteOption func(*routeOptions)

type routeOptions struct {
	redis *redis.Client
}

// WithRedisRateLimit shares generation rate limit counters across server
// instances through Redis. When Redis is unreachable the limiter falls back
// to a local counter.
func WithRedisRateLimit(client *redis.Client) RouteOption {
	return func(o *routeOptions) { o.redis = client }
}

// generateLimiter limits AI generation requests per owner per minute.
func generateLimiter(limit int, o routeOptions) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = 10
	}
	opts := []httprate.Option{
		httprate.WithKeyFuncs(ownerKey),
		httprate.WithLimitHandler(tooManyRequests),
	}
	if o.redis != nil {
		opts = append(opts, httprateredis.WithRedisLimitCounter(&httprateredis.Config{
			Client:    o.redis,
			PrefixKey: "autolink:ratelimit",
		}))
	}
	return httprate.Limit(limit, time.Minute, opts...)
}

func tooManyRequests(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusTooManyRequests, "generation rate limit exceeded")
}
