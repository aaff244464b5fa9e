package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/pps/internal/models"
)

type TransactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(db *gorm.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

func (r *TransactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *TransactionRepo) FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	return r.first(ctx, "idempotency_key = ?", key)
}

// FindForMerchant scopes an id lookup to the owning merchant.
func (r *TransactionRepo) FindForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Transaction, error) {
	return r.first(ctx, "id = ? AND merchant_id = ?", id, merchantID)
}

// FindByMerchantRef resolves a reference the merchant supplied. Merchant
// references are only unique per merchant, so a reference shared by two
// merchants on the same gateway is ErrAmbiguous rather than a guess.
func (r *TransactionRepo) FindByMerchantRef(ctx context.Context, gateway models.Gateway, ref string) (*models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("merchant_ref = ? AND payment_gateway = ?", ref, gateway).
		Limit(2).
		Find(&txns).Error
	switch {
	case err != nil:
		return nil, translate(err)
	case len(txns) == 0:
		return nil, ErrNotFound
	case len(txns) > 1:
		return nil, ErrAmbiguous
	}
	return &txns[0], nil
}

// FindByGatewayRef resolves the reference assigned by the gateway.
func (r *TransactionRepo) FindByGatewayRef(ctx context.Context, gateway models.Gateway, ref string) (*models.Transaction, error) {
	return r.first(ctx, "pg_transaction_ref = ? AND payment_gateway = ?", ref, gateway)
}

func (r *TransactionRepo) first(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where(query, args...).First(&txn).Error; err != nil {
		return nil, translate(err)
	}
	return &txn, nil
}

// Reserve inserts a PENDING transaction without a gateway reference. The
// unique idempotency key makes concurrent reservations for one key elect a
// single winner; losers get ErrDuplicate.
func (r *TransactionRepo) Reserve(ctx context.Context, txn *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("reserve transaction: %w", translate(err))
	}
	return nil
}

// ClaimStale takes over a reservation whose owner stopped refreshing it
// before staleBefore. Only one caller can win the compare-and-set.
func (r *TransactionRepo) ClaimStale(ctx context.Context, id uuid.UUID, staleBefore, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ? AND (pg_transaction_ref IS NULL OR pg_transaction_ref = '') AND updated_at < ?",
			id, models.StatusPending, staleBefore.UTC()).
		Update("updated_at", now.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AttachGatewayResult stores the gateway reference and checkout metadata on a
// reservation.
func (r *TransactionRepo) AttachGatewayResult(ctx context.Context, id uuid.UUID, gatewayRef string, metadata datatypes.JSON, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"pg_transaction_ref": gatewayRef,
			"metadata":           metadata,
			"updated_at":         now.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("attach gateway result: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseReservation deletes a reservation the gateway never acknowledged so
// the idempotency key can be retried.
func (r *TransactionRepo) ReleaseReservation(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND (pg_transaction_ref IS NULL OR pg_transaction_ref = '')", id, models.StatusPending).
		Delete(&models.Transaction{}).Error
}

// TransactionFilter narrows List results.
type TransactionFilter struct {
	Status models.Status
	Limit  int
	Offset int
}

func (r *TransactionRepo) List(ctx context.Context, merchantID uuid.UUID, f TransactionFilter) ([]models.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("merchant_id = ?", merchantID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}

	var txns []models.Transaction
	if err := query.
		Order("created_at desc").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&txns).Error; err != nil {
		return nil, 0, err
	}

	return txns, total, nil
}
