package middleware

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/example/pps/internal/ratelimit"
)

// RateLimit admits a request only if its caller's bucket has a token. The
// caller is the X-API-Key when present, otherwise the client address. When
// the bucket store is unreachable the request is let through if failOpen is
// set and answered with 503 otherwise.
func RateLimit(limiter *ratelimit.Limiter, failOpen bool, logger *slog.Logger) fiber.Handler {
	policy := limiter.Policy()
	retryAfter := strconv.Itoa(int(math.Ceil(policy.Window.Seconds() / float64(policy.Capacity))))

	return func(c *fiber.Ctx) error {
		identity := ratelimit.Identity(c.Get(APIKeyHeader), c.IP())

		allowed, err := limiter.Allow(c.UserContext(), identity)
		if err != nil {
			logger.Warn("rate limit store unavailable",
				slog.String("correlation_id", CorrelationID(c)),
				slog.Bool("fail_open", failOpen),
				slog.Any("err", err),
			)
			if failOpen {
				return c.Next()
			}
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "Service Unavailable",
				"message": "Rate limiter unavailable. Try again later.",
			})
		}

		if !allowed {
			logger.Info("rate limit exceeded",
				slog.String("correlation_id", CorrelationID(c)),
				slog.String("path", c.Path()),
			)
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Too Many Requests",
				"message": "Rate limit exceeded. Try again later.",
			})
		}

		return c.Next()
	}
}
