package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/example/pps/internal/gateway"
	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/repository"
)

// InitiateRequest is a merchant's request to open a payment.
type InitiateRequest struct {
	MerchantAPIKey string
	MerchantRef    string
	Amount         decimal.Decimal
	Currency       string
	CustomerEmail  string
	PaymentMethod  string
	PaymentGateway string
}

// InitiateResponse is returned for both fresh and replayed initiations.
type InitiateResponse struct {
	TransactionID    uuid.UUID       `json:"transactionId"`
	Status           models.Status   `json:"status"`
	AuthorizationURL string          `json:"authorizationUrl"`
	Amount           decimal.Decimal `json:"amount"`
	Replayed         bool            `json:"-"`
}

// TransactionService orchestrates payment initiation.
type TransactionService struct {
	merchants      *repository.MerchantRepo
	transactions   *repository.TransactionRepo
	gateways       *gateway.Registry
	gatewayTimeout time.Duration
	lease          time.Duration
	now            func() time.Time
}

func NewTransactionService(
	merchants *repository.MerchantRepo,
	transactions *repository.TransactionRepo,
	gateways *gateway.Registry,
	gatewayTimeout, lease time.Duration,
) *TransactionService {
	return &TransactionService{
		merchants:      merchants,
		transactions:   transactions,
		gateways:       gateways,
		gatewayTimeout: gatewayTimeout,
		lease:          lease,
		now:            time.Now,
	}
}

// Authenticate resolves a merchant from its API key.
func (s *TransactionService) Authenticate(ctx context.Context, apiKey string) (*models.Merchant, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrInvalidMerchantKey
	}
	merchant, err := s.merchants.FindByAPIKey(ctx, apiKey)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidMerchantKey
	}
	if err != nil {
		return nil, fmt.Errorf("find merchant: %w", err)
	}
	return merchant, nil
}

// Initiate opens a payment at most once per idempotency key. A repeated key
// returns the stored transaction without calling the gateway again.
func (s *TransactionService) Initiate(ctx context.Context, scope Scope, req InitiateRequest, idempotencyKey string) (*InitiateResponse, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return nil, ErrMissingIdempotencyKey
	}

	merchant, err := s.Authenticate(ctx, req.MerchantAPIKey)
	if err != nil {
		return nil, err
	}

	existing, err := s.transactions.FindByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		return s.replay(ctx, scope, merchant, existing)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("find by idempotency key: %w", err)
	}

	txn := s.newTransaction(scope, merchant, req, key)
	if err := s.transactions.Reserve(ctx, txn); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		// Either a concurrent request with the same key won the insert, or
		// the merchant reference is taken.
		existing, ferr := s.transactions.FindByIdempotencyKey(ctx, key)
		switch {
		case ferr == nil:
			return s.replay(ctx, scope, merchant, existing)
		case errors.Is(ferr, repository.ErrNotFound):
			return nil, ErrDuplicateMerchantRef
		default:
			return nil, fmt.Errorf("find by idempotency key: %w", ferr)
		}
	}

	scope.Log().Info("transaction reserved",
		slog.String("transaction_id", txn.ID.String()),
		slog.String("merchant_id", merchant.ID.String()),
		slog.String("gateway", string(txn.PaymentGateway)),
	)

	return s.dispatch(ctx, scope, txn)
}

func (s *TransactionService) newTransaction(scope Scope, merchant *models.Merchant, req InitiateRequest, key string) *models.Transaction {
	currency, ok := models.ParseCurrency(req.Currency)
	if !ok {
		scope.Log().Warn("unknown currency, defaulting", slog.String("value", req.Currency), slog.String("default", string(currency)))
	}
	method, ok := models.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		scope.Log().Warn("unknown payment method, defaulting", slog.String("value", req.PaymentMethod), slog.String("default", string(method)))
	}
	gw, ok := models.ParseGateway(req.PaymentGateway)
	if !ok {
		scope.Log().Warn("unknown payment gateway, defaulting", slog.String("value", req.PaymentGateway), slog.String("default", string(gw)))
	}

	return &models.Transaction{
		MerchantID:     merchant.ID,
		MerchantRef:    strings.TrimSpace(req.MerchantRef),
		IdempotencyKey: key,
		Amount:         req.Amount.Round(2),
		Currency:       currency,
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		PaymentMethod:  method,
		PaymentGateway: gw,
		Status:         models.StatusPending,
	}
}

// replay answers a request whose idempotency key is already stored.
func (s *TransactionService) replay(ctx context.Context, scope Scope, merchant *models.Merchant, txn *models.Transaction) (*InitiateResponse, error) {
	if txn.MerchantID != merchant.ID {
		return nil, ErrIdempotencyKeyReused
	}
	if txn.Status == models.StatusFailed {
		return nil, ErrIdempotencyKeyFailed
	}

	if txn.Status == models.StatusPending && txn.Reserved() {
		now := s.now()
		if now.Sub(txn.UpdatedAt) < s.lease {
			scope.Log().Info("initiation in flight", slog.String("transaction_id", txn.ID.String()))
			return responseFor(txn, true), nil
		}

		claimed, err := s.transactions.ClaimStale(ctx, txn.ID, now.Add(-s.lease), now)
		if err != nil {
			return nil, fmt.Errorf("claim stale reservation: %w", err)
		}
		if claimed {
			scope.Log().Warn("retrying abandoned reservation", slog.String("transaction_id", txn.ID.String()))
			return s.dispatch(ctx, scope, txn)
		}

		current, err := s.transactions.FindByID(ctx, txn.ID)
		if errors.Is(err, repository.ErrNotFound) {
			// released by a failed gateway call in the meantime
			return nil, ErrGatewayFailure
		}
		if err != nil {
			return nil, err
		}
		txn = current
	}

	scope.Log().Info("idempotent replay", slog.String("transaction_id", txn.ID.String()))
	return responseFor(txn, true), nil
}

// dispatch calls the gateway for a reserved transaction. No database
// transaction is held across the call.
func (s *TransactionService) dispatch(ctx context.Context, scope Scope, txn *models.Transaction) (*InitiateResponse, error) {
	provider, err := s.gateways.Get(txn.PaymentGateway)
	if err != nil {
		s.release(ctx, scope, txn)
		return nil, ErrGatewayFailure.Wrap(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	result, err := provider.InitiatePayment(callCtx, gateway.PaymentRequest{
		TransactionID: txn.ID,
		MerchantRef:   txn.MerchantRef,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		CustomerEmail: txn.CustomerEmail,
		PaymentMethod: txn.PaymentMethod,
	})
	cancel()
	if err != nil {
		scope.Log().Warn("gateway initiation failed",
			slog.String("transaction_id", txn.ID.String()),
			slog.String("gateway", string(txn.PaymentGateway)),
			slog.Any("err", err),
		)
		s.release(ctx, scope, txn)
		return nil, ErrGatewayFailure.Wrap(err)
	}

	metadata, err := json.Marshal(models.TransactionMetadata{AuthorizationURL: result.AuthorizationURL})
	if err != nil {
		return nil, err
	}

	// the gateway has accepted the payment; record it even if the caller left
	persistCtx := context.WithoutCancel(ctx)
	if err := s.transactions.AttachGatewayResult(persistCtx, txn.ID, result.GatewayRef, datatypes.JSON(metadata), s.now()); err != nil {
		return nil, err
	}

	ref := result.GatewayRef
	txn.PgTransactionRef = &ref
	txn.Metadata = datatypes.JSON(metadata)

	scope.Log().Info("transaction initiated",
		slog.String("transaction_id", txn.ID.String()),
		slog.String("gateway_ref", ref),
	)

	return responseFor(txn, false), nil
}

func (s *TransactionService) release(ctx context.Context, scope Scope, txn *models.Transaction) {
	if err := s.transactions.ReleaseReservation(context.WithoutCancel(ctx), txn.ID); err != nil {
		scope.Log().Error("release reservation failed", slog.String("transaction_id", txn.ID.String()), slog.Any("err", err))
	}
}

func responseFor(txn *models.Transaction, replayed bool) *InitiateResponse {
	return &InitiateResponse{
		TransactionID:    txn.ID,
		Status:           txn.Status,
		AuthorizationURL: txn.AuthorizationURL(),
		Amount:           txn.Amount,
		Replayed:         replayed,
	}
}

// Get returns one of the merchant's transactions.
func (s *TransactionService) Get(ctx context.Context, merchantID, id uuid.UUID) (*models.Transaction, error) {
	txn, err := s.transactions.FindForMerchant(ctx, merchantID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	return txn, err
}

// List pages through the merchant's transactions, newest first.
func (s *TransactionService) List(ctx context.Context, merchantID uuid.UUID, filter repository.TransactionFilter) ([]models.Transaction, int64, error) {
	if filter.Status != "" {
		switch filter.Status {
		case models.StatusPending, models.StatusCompleted, models.StatusFailed:
		default:
			return nil, 0, ValidationError(map[string]string{"status": "must be one of PENDING, COMPLETED, FAILED"})
		}
	}
	return s.transactions.List(ctx, merchantID, filter)
}
