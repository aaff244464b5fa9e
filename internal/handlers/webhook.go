package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/example/pps/internal/middleware"
	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/services"
)

// WebhookHandler receives gateway callbacks whose signature has already
// been checked.
type WebhookHandler struct {
	service *services.WebhookService
	logger  *slog.Logger
}

func NewWebhookHandler(service *services.WebhookService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// Receive returns the handler for one gateway's webhook route.
func (h *WebhookHandler) Receive(kind models.Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := h.service.Ingest(c.UserContext(), middleware.Scope(c, h.logger), kind, c.Body())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"status": string(res.Outcome)})
	}
}
