package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/example/pps/internal/gateway"
	"github.com/example/pps/internal/signature"
)

// WebhookSignature rejects a webhook unless the provider's signature header
// matches the raw body. It runs before anything parses the body.
func WebhookSignature(provider gateway.Provider, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := provider.VerifySignature(c.Body(), c.Get(provider.SignatureHeader()))
		if err == nil {
			return c.Next()
		}

		logger.Warn("webhook signature rejected",
			slog.String("correlation_id", CorrelationID(c)),
			slog.String("gateway", string(provider.Kind())),
			slog.String("reason", err.Error()),
		)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "Unauthorized",
			"message": rejectionMessage(err),
		})
	}
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, signature.ErrEmptyBody):
		return "Empty webhook body"
	case errors.Is(err, signature.ErrMissingSignature):
		return "Missing webhook signature"
	default:
		return "Invalid webhook signature"
	}
}
