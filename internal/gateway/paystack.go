package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/signature"
)

// Paystack talks to the Paystack REST API.
type Paystack struct {
	secret  string
	baseURL string
	client  *http.Client
}

func NewPaystack(secret, baseURL string, timeout time.Duration) *Paystack {
	return &Paystack{
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *Paystack) Kind() models.Gateway { return models.GatewayPaystack }

func (p *Paystack) SignatureHeader() string { return "x-paystack-signature" }

type paystackInitRequest struct {
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Email     string            `json:"email"`
	Reference string            `json:"reference"`
	Channels  []string          `json:"channels,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

var hundred = decimal.NewFromInt(100)

// InitiatePayment calls POST /transaction/initialize. Amounts are sent in
// minor units. The Paystack reference is our transaction id; merchant
// references are only unique per merchant.
func (p *Paystack) InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	payload, err := json.Marshal(paystackInitRequest{
		Amount:    req.Amount.Mul(hundred).Round(0).IntPart(),
		Currency:  string(req.Currency),
		Email:     req.CustomerEmail,
		Reference: req.TransactionID.String(),
		Channels:  paystackChannels(req.PaymentMethod),
		Metadata:  map[string]string{"merchant_ref": req.MerchantRef},
	})
	if err != nil {
		return PaymentResult{}, fmt.Errorf("paystack request encode: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return PaymentResult{}, fmt.Errorf("paystack request build: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.secret)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("paystack initialize: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PaymentResult{}, fmt.Errorf("paystack response read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PaymentResult{}, fmt.Errorf("paystack initialize failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var out paystackInitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return PaymentResult{}, fmt.Errorf("paystack response unmarshal: %w", err)
	}
	if !out.Status {
		return PaymentResult{}, fmt.Errorf("paystack initialize rejected: %s", out.Message)
	}
	if out.Data == nil || out.Data.AuthorizationURL == "" {
		return PaymentResult{}, fmt.Errorf("paystack response missing authorization_url")
	}

	ref := out.Data.AccessCode
	if ref == "" {
		ref = out.Data.Reference
	}
	if ref == "" {
		ref = req.TransactionID.String()
	}

	return PaymentResult{GatewayRef: ref, AuthorizationURL: out.Data.AuthorizationURL}, nil
}

func paystackChannels(method models.PaymentMethod) []string {
	switch method {
	case models.PaymentMethodCard:
		return []string{"card"}
	case models.PaymentMethodBankTransfer:
		return []string{"bank_transfer"}
	default:
		return nil
	}
}

func (p *Paystack) VerifySignature(rawBody []byte, sig string) error {
	return signature.Check(signature.Paystack, rawBody, sig, p.secret)
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// ParseWebhook reads data.reference, the reference sent at initialisation.
func (p *Paystack) ParseWebhook(rawBody []byte) (Notice, error) {
	var hook paystackWebhook
	if err := json.Unmarshal(rawBody, &hook); err != nil {
		return Notice{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if hook.Data.Reference == "" {
		return Notice{}, fmt.Errorf("%w: data.reference is empty", ErrMalformedPayload)
	}

	return Notice{
		Reference: hook.Data.Reference,
		RawStatus: hook.Data.Status,
		Status:    mapStatus(hook.Data.Status, "success", "failed"),
	}, nil
}
