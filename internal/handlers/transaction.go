package handlers

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"

	"github.com/example/pps/internal/middleware"
	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/repository"
	"github.com/example/pps/internal/services"
	"github.com/example/pps/internal/utils"
)

// IdempotencyKeyHeader is required on every initiation.
const IdempotencyKeyHeader = "Idempotency-Key"

const schemaInitiate = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["amount", "currency", "merchantRef", "customerEmail", "paymentMethod", "paymentGateway"],
  "properties": {
    "amount":         {"type": "number", "exclusiveMinimum": 0},
    "currency":       {"type": "string", "minLength": 3, "maxLength": 3},
    "merchantRef":    {"type": "string", "minLength": 1, "maxLength": 128},
    "customerEmail":  {"type": "string", "format": "email"},
    "paymentMethod":  {"type": "string", "minLength": 1},
    "paymentGateway": {"type": "string", "minLength": 1},
    "merchantApiKey": {"type": "string"}
  }
}`

var initiateSchema = mustSchema(schemaInitiate)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(err)
	}
	return schema
}

// validateJSONSchema reports every violated field, keyed by property name.
func validateJSONSchema(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return services.ValidationError(map[string]string{"body": "must be a JSON object"})
	}
	if result.Valid() {
		return nil
	}

	fields := make(map[string]string)
	for _, e := range result.Errors() {
		field := e.Field()
		if e.Type() == "required" {
			if property, ok := e.Details()["property"].(string); ok {
				field = property
			}
		}
		if _, seen := fields[field]; !seen {
			fields[field] = e.Description()
		}
	}
	return services.ValidationError(fields)
}

// TransactionHandler serves the merchant transaction endpoints.
type TransactionHandler struct {
	service *services.TransactionService
	logger  *slog.Logger
}

func NewTransactionHandler(service *services.TransactionService, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{service: service, logger: logger}
}

type initiateRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	MerchantRef    string          `json:"merchantRef"`
	CustomerEmail  string          `json:"customerEmail"`
	PaymentMethod  string          `json:"paymentMethod"`
	PaymentGateway string          `json:"paymentGateway"`
	MerchantAPIKey string          `json:"merchantApiKey"`
}

// Initiate opens a payment with the requested gateway.
func (h *TransactionHandler) Initiate(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Get(IdempotencyKeyHeader))
	if key == "" {
		return services.ErrMissingIdempotencyKey
	}

	body := c.Body()
	if err := validateJSONSchema(initiateSchema, body); err != nil {
		return err
	}

	var req initiateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return services.ValidationError(map[string]string{"body": "must be a JSON object"})
	}

	apiKey := req.MerchantAPIKey
	if apiKey == "" {
		apiKey = c.Get(middleware.APIKeyHeader)
	}

	resp, err := h.service.Initiate(c.UserContext(), middleware.Scope(c, h.logger), services.InitiateRequest{
		MerchantAPIKey: apiKey,
		MerchantRef:    req.MerchantRef,
		Amount:         req.Amount,
		Currency:       req.Currency,
		CustomerEmail:  req.CustomerEmail,
		PaymentMethod:  req.PaymentMethod,
		PaymentGateway: req.PaymentGateway,
	}, key)
	if err != nil {
		return err
	}

	if resp.Replayed {
		c.Set("Idempotent-Replayed", "true")
	}
	return c.JSON(resp)
}

// GetTransaction returns one of the calling merchant's transactions.
func (h *TransactionHandler) GetTransaction(c *fiber.Ctx) error {
	merchant, ok := middleware.CurrentMerchant(c)
	if !ok {
		return services.ErrInvalidMerchantKey
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid transaction id")
	}

	txn, err := h.service.Get(c.UserContext(), merchant.ID, id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txn,
	})
}

// ListTransactions pages through the calling merchant's transactions.
func (h *TransactionHandler) ListTransactions(c *fiber.Ctx) error {
	merchant, ok := middleware.CurrentMerchant(c)
	if !ok {
		return services.ErrInvalidMerchantKey
	}

	page := utils.PageFromQuery(c)
	filter := repository.TransactionFilter{
		Status: models.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Limit:  page.Size,
		Offset: page.Offset(),
	}

	txns, total, err := h.service.List(c.UserContext(), merchant.ID, filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       txns,
		"pagination": page.Meta(total),
	})
}
