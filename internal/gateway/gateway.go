// Package gateway adapts external payment gateways behind one interface.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/pps/internal/models"
)

var (
	ErrUnknownGateway   = errors.New("unknown payment gateway")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// PaymentRequest is what a gateway needs to open a checkout.
type PaymentRequest struct {
	TransactionID uuid.UUID
	MerchantRef   string
	Amount        decimal.Decimal
	Currency      models.Currency
	CustomerEmail string
	PaymentMethod models.PaymentMethod
}

// PaymentResult is the gateway's acknowledgement of a checkout.
type PaymentResult struct {
	GatewayRef       string
	AuthorizationURL string
}

// Notice is a parsed webhook. Reference is the reference we handed the
// gateway at initiation (the transaction id, or a merchant reference for
// checkouts opened elsewhere); GatewayRef is the gateway's own id. At least
// one is set.
type Notice struct {
	Reference  string
	GatewayRef string
	RawStatus  string
	Status     models.Status
}

// Provider is one payment gateway.
type Provider interface {
	Kind() models.Gateway
	InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	// SignatureHeader names the request header carrying the webhook signature.
	SignatureHeader() string
	VerifySignature(rawBody []byte, signature string) error
	ParseWebhook(rawBody []byte) (Notice, error)
}

// Registry dispatches on the gateway enum.
type Registry struct {
	providers map[models.Gateway]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.Gateway]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Kind()] = p
	}
	return r
}

func (r *Registry) Get(kind models.Gateway) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, kind)
	}
	return p, nil
}

// mapStatus translates a gateway status word. Anything not listed stays
// PENDING.
func mapStatus(raw, completed, failed string) models.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case completed:
		return models.StatusCompleted
	case failed:
		return models.StatusFailed
	default:
		return models.StatusPending
	}
}
