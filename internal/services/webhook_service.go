package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/pps/internal/gateway"
	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/repository"
)

// IngestOutcome is what happened to an accepted webhook.
type IngestOutcome string

const (
	OutcomeProcessed IngestOutcome = "processed"
	OutcomeDuplicate IngestOutcome = "duplicate"
	OutcomeIgnored   IngestOutcome = "ignored"
)

type IngestResult struct {
	Outcome       IngestOutcome
	TransactionID uuid.UUID
	Status        models.Status
}

// WebhookService applies verified gateway callbacks. It is the only writer
// of transaction status.
type WebhookService struct {
	transactions *repository.TransactionRepo
	webhooks     *repository.WebhookRepo
	gateways     *gateway.Registry
	publisher    Publisher
	now          func() time.Time
}

func NewWebhookService(
	transactions *repository.TransactionRepo,
	webhooks *repository.WebhookRepo,
	gateways *gateway.Registry,
	publisher Publisher,
) *WebhookService {
	return &WebhookService{
		transactions: transactions,
		webhooks:     webhooks,
		gateways:     gateways,
		publisher:    publisher,
		now:          time.Now,
	}
}

// Ingest records one webhook delivery. The body must already be
// authenticated.
func (s *WebhookService) Ingest(ctx context.Context, scope Scope, kind models.Gateway, rawBody []byte) (*IngestResult, error) {
	provider, err := s.gateways.Get(kind)
	if err != nil {
		return nil, ErrMalformedWebhook.Wrap(err)
	}

	notice, err := provider.ParseWebhook(rawBody)
	if err != nil {
		return nil, ErrMalformedWebhook.Wrap(err)
	}

	txn, err := s.resolve(ctx, kind, notice)
	if err != nil {
		return nil, err
	}

	log := scope.Log().With(
		slog.String("transaction_id", txn.ID.String()),
		slog.String("gateway", string(kind)),
		slog.String("gateway_status", notice.RawStatus),
	)

	// A non-final notice must not take the dedup slot of the final one.
	if !notice.Status.Terminal() {
		log.Info("webhook acknowledged without status change")
		return &IngestResult{Outcome: OutcomeIgnored, TransactionID: txn.ID, Status: txn.Status}, nil
	}

	res, err := s.webhooks.Apply(ctx, repository.WebhookApplication{
		TransactionID: txn.ID,
		Gateway:       kind,
		Status:        notice.Status,
		Payload:       string(rawBody),
		ReceivedAt:    s.now(),
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	if res.Duplicate {
		log.Info("duplicate webhook ignored")
		return &IngestResult{Outcome: OutcomeDuplicate, TransactionID: txn.ID, Status: res.Transaction.Status}, nil
	}

	if res.Transitioned {
		log.Info("transaction status updated", slog.String("status", string(res.Transaction.Status)))
		note := Notification{Key: res.Transaction.MerchantID.String(), Transaction: res.Transaction}
		if err := s.publisher.Publish(note); err != nil {
			log.Error("merchant notification not queued", slog.Any("err", err))
		}
	}

	return &IngestResult{Outcome: OutcomeProcessed, TransactionID: txn.ID, Status: res.Transaction.Status}, nil
}

// resolve finds the transaction a notice refers to: the gateway's own
// reference first, then our transaction id, then the merchant reference.
func (s *WebhookService) resolve(ctx context.Context, kind models.Gateway, notice gateway.Notice) (*models.Transaction, error) {
	if notice.GatewayRef != "" {
		txn, err := s.transactions.FindByGatewayRef(ctx, kind, notice.GatewayRef)
		if err == nil {
			return txn, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find by gateway ref: %w", err)
		}
	}

	if notice.Reference == "" {
		return nil, ErrTransactionNotFound
	}

	if id, err := uuid.Parse(notice.Reference); err == nil {
		txn, err := s.transactions.FindByID(ctx, id)
		if err == nil && txn.PaymentGateway == kind {
			return txn, nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find by id: %w", err)
		}
	}

	txn, err := s.transactions.FindByMerchantRef(ctx, kind, notice.Reference)
	switch {
	case err == nil:
		return txn, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrTransactionNotFound
	case errors.Is(err, repository.ErrAmbiguous):
		return nil, ErrAmbiguousReference
	default:
		return nil, fmt.Errorf("find by merchant ref: %w", err)
	}
}
