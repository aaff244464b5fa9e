package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/example/pps/internal/models"
)

const (
	merchantContextKey = "currentMerchant"

	// APIKeyHeader carries the merchant credential.
	APIKeyHeader = "X-API-Key"
)

// MerchantAuthenticator resolves an API key to a merchant.
type MerchantAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*models.Merchant, error)
}

// MerchantAuth requires a valid X-API-Key and loads the merchant into context.
func MerchantAuth(auth MerchantAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		merchant, err := auth.Authenticate(c.UserContext(), c.Get(APIKeyHeader))
		if err != nil {
			return err
		}

		c.Locals(merchantContextKey, merchant)
		return c.Next()
	}
}

// CurrentMerchant extracts the authenticated merchant from context.
func CurrentMerchant(c *fiber.Ctx) (*models.Merchant, bool) {
	merchant, ok := c.Locals(merchantContextKey).(*models.Merchant)
	return merchant, ok && merchant != nil
}
