package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/pps/internal/models"
)

type WebhookRepo struct {
	db *gorm.DB
}

func NewWebhookRepo(db *gorm.DB) *WebhookRepo {
	return &WebhookRepo{db: db}
}

// WebhookApplication is a verified gateway callback ready to be recorded.
type WebhookApplication struct {
	TransactionID uuid.UUID
	Gateway       models.Gateway
	Status        models.Status
	Payload       string
	ReceivedAt    time.Time
}

// WebhookResult describes what Apply did.
type WebhookResult struct {
	Transaction  models.Transaction
	Duplicate    bool
	Transitioned bool
}

// Apply records the dedup event and the status transition in one database
// transaction, so both become visible together. A second delivery for the
// same (transaction, gateway) is reported as Duplicate and changes nothing.
// Only a PENDING transaction transitions.
func (r *WebhookRepo) Apply(ctx context.Context, app WebhookApplication) (*WebhookResult, error) {
	result := &WebhookResult{}
	now := app.ReceivedAt.UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := forUpdate(tx).Where("id = ?", app.TransactionID).First(&txn).Error; err != nil {
			return err
		}

		var seen int64
		if err := tx.Model(&models.WebhookEvent{}).
			Where("transaction_id = ? AND payment_gateway = ?", app.TransactionID, app.Gateway).
			Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			result.Duplicate = true
			result.Transaction = txn
			return nil
		}

		if txn.Status == models.StatusPending && app.Status.Terminal() {
			res := tx.Model(&models.Transaction{}).
				Where("id = ? AND status = ?", txn.ID, models.StatusPending).
				Updates(map[string]any{"status": app.Status, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				result.Transitioned = true
				txn.Status = app.Status
				txn.UpdatedAt = now
			}
		}

		event := models.WebhookEvent{
			TransactionID:  app.TransactionID,
			PaymentGateway: app.Gateway,
			Payload:        app.Payload,
			ReceivedAt:     now,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		result.Transaction = txn
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// lost the race against a concurrent delivery; its write is the one that counts
		var txn models.Transaction
		if err := r.db.WithContext(ctx).Where("id = ?", app.TransactionID).First(&txn).Error; err != nil {
			return nil, translate(err)
		}
		return &WebhookResult{Transaction: txn, Duplicate: true}, nil
	default:
		return nil, fmt.Errorf("apply webhook: %w", translate(err))
	}
}

// Count returns how many events exist for a transaction.
func (r *WebhookRepo) Count(ctx context.Context, transactionID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("transaction_id = ?", transactionID).Count(&n).Error
	return n, err
}
