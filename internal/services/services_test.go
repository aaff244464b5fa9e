package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/pps/internal/gateway"
	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/repository"
	"github.com/example/pps/internal/testutil"
)

const apiKey = "mk_test_1"

// countingProvider wraps a real adapter for webhook parsing and signatures
// but stubs out checkout creation.
type countingProvider struct {
	gateway.Provider

	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (p *countingProvider) InitiatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResult, error) {
	p.mu.Lock()
	p.calls++
	err, delay := p.err, p.delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return gateway.PaymentResult{}, ctx.Err()
		}
	}
	if err != nil {
		return gateway.PaymentResult{}, err
	}
	ref := "gw-" + req.MerchantRef
	return gateway.PaymentResult{GatewayRef: ref, AuthorizationURL: "https://pay.test/" + ref}, nil
}

func (p *countingProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *countingProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type recordingPublisher struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (p *recordingPublisher) Publish(n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.notes = append(p.notes, n)
	return nil
}

func (p *recordingPublisher) Published() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.notes...)
}

type fixture struct {
	db           *gorm.DB
	merchant     *models.Merchant
	transactions *repository.TransactionRepo
	webhooks     *repository.WebhookRepo
	paystack     *countingProvider
	flutterwave  *countingProvider
	publisher    *recordingPublisher
	txnService   *TransactionService
	hookService  *WebhookService
	scope        Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	f := &fixture{
		db:           db,
		merchant:     testutil.CreateMerchant(t, db, apiKey, ""),
		transactions: repository.NewTransactionRepo(db),
		webhooks:     repository.NewWebhookRepo(db),
		paystack:     &countingProvider{Provider: gateway.NewPaystack("ps_secret", "http://paystack.invalid", time.Second)},
		flutterwave:  &countingProvider{Provider: gateway.NewFlutterwave("flw_secret", "http://flutterwave.invalid")},
		publisher:    &recordingPublisher{},
		scope:        NewScope(slog.New(slog.NewTextHandler(io.Discard, nil)), "corr-test", "127.0.0.1"),
	}

	registry := gateway.NewRegistry(f.paystack, f.flutterwave)
	f.txnService = NewTransactionService(repository.NewMerchantRepo(db), f.transactions, registry, time.Second, 30*time.Second)
	f.hookService = NewWebhookService(f.transactions, f.webhooks, registry, f.publisher)
	return f
}

func (f *fixture) request(ref string) InitiateRequest {
	return InitiateRequest{
		MerchantAPIKey: apiKey,
		MerchantRef:    ref,
		Amount:         decimal.NewFromInt(500),
		Currency:       "NGN",
		CustomerEmail:  "ada@example.com",
		PaymentMethod:  "CARD",
		PaymentGateway: "PAYSTACK",
	}
}

func (f *fixture) initiate(t *testing.T, req InitiateRequest, key string) *InitiateResponse {
	t.Helper()
	resp, err := f.txnService.Initiate(context.Background(), f.scope, req, key)
	require.NoError(t, err)
	return resp
}

func (f *fixture) reload(t *testing.T, resp *InitiateResponse) *models.Transaction {
	t.Helper()
	txn, err := f.transactions.FindByID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	return txn
}

func isKind(err error, kind ErrorKind) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Kind == kind
}
