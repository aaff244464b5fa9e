package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/example/pps/internal/middleware"
	"github.com/example/pps/internal/services"
)

// ErrorHandler renders service and fiber errors. Anything else is logged and
// answered with a bare 500 carrying only the correlation id.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var svcErr *services.Error
		if errors.As(err, &svcErr) && svcErr.Kind != services.KindInternal {
			body := fiber.Map{"error": svcErr.Message}
			if len(svcErr.Fields) > 0 {
				body["fields"] = svcErr.Fields
			}
			return c.Status(statusFor(svcErr.Kind)).JSON(body)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}

		correlationID := middleware.CorrelationID(c)
		logger.Error("request failed",
			slog.String("correlation_id", correlationID),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Any("err", err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":         "internal error",
			"correlationId": correlationID,
		})
	}
}

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindGateway:
		return fiber.StatusBadGateway
	case services.KindRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}
