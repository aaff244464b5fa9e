package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the deduplication record of a gateway callback. At most one
// exists per (transaction, gateway).
type WebhookEvent struct {
	BaseModel
	TransactionID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_webhook_events_txn_gateway" json:"transactionId"`
	PaymentGateway Gateway   `gorm:"column:payment_gateway;type:varchar(32);not null;uniqueIndex:idx_webhook_events_txn_gateway" json:"paymentGateway"`
	Payload        string    `gorm:"type:text;not null" json:"payload"`
	ReceivedAt     time.Time `gorm:"not null" json:"receivedAt"`
}
