package models

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Status is the transaction lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Currency is the ISO code of a supported settlement currency.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Gateway identifies a payment provider.
type Gateway string

const (
	GatewayPaystack    Gateway = "PAYSTACK"
	GatewayFlutterwave Gateway = "FLUTTERWAVE"
)

var (
	currencies     = []Currency{CurrencyNGN, CurrencyUSD, CurrencyEUR}
	paymentMethods = []PaymentMethod{PaymentMethodCard, PaymentMethodBankTransfer}
	gateways       = []Gateway{GatewayPaystack, GatewayFlutterwave}
)

// ParseCurrency matches value case-insensitively. ok is false when the
// fallback (NGN) was used.
func ParseCurrency(value string) (Currency, bool) {
	return parseEnum(value, currencies, CurrencyNGN)
}

// ParsePaymentMethod falls back to CARD.
func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	return parseEnum(value, paymentMethods, PaymentMethodCard)
}

// ParseGateway falls back to PAYSTACK.
func ParseGateway(value string) (Gateway, bool) {
	return parseEnum(value, gateways, GatewayPaystack)
}

func parseEnum[E ~string](value string, known []E, fallback E) (E, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range known {
		if string(candidate) == normalized {
			return candidate, true
		}
	}
	return fallback, false
}

// Transaction is one payment attempt initiated by a merchant.
type Transaction struct {
	BaseModel
	MerchantID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_transactions_merchant_ref" json:"merchantId"`
	MerchantRef      string          `gorm:"column:merchant_ref;not null;uniqueIndex:idx_transactions_merchant_ref" json:"merchantRef"`
	IdempotencyKey   string          `gorm:"column:idempotency_key;not null;uniqueIndex" json:"-"`
	PgTransactionRef *string         `gorm:"column:pg_transaction_ref;index" json:"pgTransactionRef"`
	Amount           decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Currency         Currency        `gorm:"type:varchar(8);not null" json:"currency"`
	CustomerEmail    string          `gorm:"column:customer_email;not null" json:"customerEmail"`
	PaymentMethod    PaymentMethod   `gorm:"column:payment_method;type:varchar(32);not null" json:"paymentMethod"`
	PaymentGateway   Gateway         `gorm:"column:payment_gateway;type:varchar(32);not null;index" json:"paymentGateway"`
	Status           Status          `gorm:"type:varchar(16);not null;index" json:"status"`
	Metadata         datatypes.JSON  `json:"metadata,omitempty"`
}

// TransactionMetadata is the structured form of Transaction.Metadata.
type TransactionMetadata struct {
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
}

// AuthorizationURL extracts the cached gateway checkout URL, if any.
func (t *Transaction) AuthorizationURL() string {
	if len(t.Metadata) == 0 {
		return ""
	}
	var meta TransactionMetadata
	if err := json.Unmarshal(t.Metadata, &meta); err != nil {
		return ""
	}
	return meta.AuthorizationURL
}

// Reserved reports whether the gateway has not yet assigned a reference.
func (t *Transaction) Reserved() bool {
	return t.PgTransactionRef == nil || *t.PgTransactionRef == ""
}
