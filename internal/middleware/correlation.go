package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/example/pps/internal/services"
)

const (
	// CorrelationHeader is read from requests and echoed on every response.
	CorrelationHeader = "X-Correlation-ID"

	correlationContextKey = "correlationId"
)

// Correlation is the first pipeline stage: it adopts the caller's
// correlation id or mints one.
func Correlation() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     CorrelationHeader,
		Generator:  uuid.NewString,
		ContextKey: correlationContextKey,
	})
}

// CorrelationID returns the id assigned by Correlation.
func CorrelationID(c *fiber.Ctx) string {
	id, _ := c.Locals(correlationContextKey).(string)
	return id
}

// Scope builds the explicit request scope handed to services.
func Scope(c *fiber.Ctx, logger *slog.Logger) services.Scope {
	return services.NewScope(logger, CorrelationID(c), c.IP())
}
