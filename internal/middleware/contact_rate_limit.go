package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/purchase_confirm/internal/tokens"
)

const contactRateLimitPrefix = "rl:contact:"

// ContactRateLimit limits attach-contact calls per token using Redis if available.
// It must be mounted on a route with a :token parameter.
func ContactRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		token := c.Params("token")
		if token == "" {
			return c.Next()
		}
		key := contactRateLimitPrefix + tokens.Fingerprint(token)
		var incr *redis.IntCmd
		_, err := cache.TxPipelined(c.UserContext(), func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(c.UserContext(), key)
			pipe.ExpireNX(c.UserContext(), key, time.Minute)
			return nil
		})
		if err != nil {
			logger.Warn("contact rate limit unavailable", slog.Any("error", err))
			return c.Next() // fail-open on cache errors
		}
		if incr.Val() > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many contact attempts, try again later")
		}
		return c.Next()
	}
}
