package serverutils

import (
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
)

// RateLimitMiddleware admits at most the limiter's budget per tenant. It must run after
// JwtMiddleware. A limiter outage lets the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		key := TenantFrom(ctx).String()
		ok, err := limiter.Allow(ctx.UserContext(), key)
		if err != nil {
			log.Warn("RateLimit", "limiter unavailable, request admitted", map[string]interface{}{
				"tenant": key,
				"error":  err.Error(),
			})
			return ctx.Next()
		}
		if !ok {
			return apperror.RateLimited("rate limit exceeded for %s, retry later", key)
		}
		return ctx.Next()
	}
}
