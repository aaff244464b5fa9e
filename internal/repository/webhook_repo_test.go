package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/pps/internal/models"
	"github.com/example/pps/internal/repository"
	"github.com/example/pps/internal/testutil"
)

func TestApplyTransitionsOnce(t *testing.T) {
	db := testutil.NewDB(t)
	merchant := testutil.CreateMerchant(t, db, "key-1", "")
	txns := repository.NewTransactionRepo(db)
	hooks := repository.NewWebhookRepo(db)
	ctx := context.Background()

	txn := newTxn(merchant.ID, "k1", "ref1")
	require.NoError(t, txns.Reserve(ctx, txn))

	app := repository.WebhookApplication{
		TransactionID: txn.ID,
		Gateway:       models.GatewayPaystack,
		Status:        models.StatusCompleted,
		Payload:       `{"event":"charge.success"}`,
		ReceivedAt:    time.Now(),
	}

	first, err := hooks.Apply(ctx, app)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.True(t, first.Transitioned)
	assert.Equal(t, models.StatusCompleted, first.Transaction.Status)

	app.Status = models.StatusFailed
	second, err := hooks.Apply(ctx, app)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Transitioned)
	assert.Equal(t, models.StatusCompleted, second.Transaction.Status)

	n, err := hooks.Count(ctx, txn.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestApplyDoesNotReopenTerminalTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	merchant := testutil.CreateMerchant(t, db, "key-1", "")
	txns := repository.NewTransactionRepo(db)
	hooks := repository.NewWebhookRepo(db)
	ctx := context.Background()

	txn := newTxn(merchant.ID, "k1", "ref1")
	txn.Status = models.StatusFailed
	require.NoError(t, txns.Reserve(ctx, txn))

	res, err := hooks.Apply(ctx, repository.WebhookApplication{
		TransactionID: txn.ID,
		Gateway:       models.GatewayPaystack,
		Status:        models.StatusCompleted,
		Payload:       "{}",
		ReceivedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Equal(t, models.StatusFailed, res.Transaction.Status)
}

// On SQLite the test database has a single connection, so these deliveries
// run one at a time and are deduplicated by the count check.
// TestApplyLosesInsertRace covers the unique index path.
func TestApplyConcurrentDeliveries(t *testing.T) {
	db := testutil.NewDB(t)
	merchant := testutil.CreateMerchant(t, db, "key-1", "")
	txns := repository.NewTransactionRepo(db)
	hooks := repository.NewWebhookRepo(db)
	ctx := context.Background()

	txn := newTxn(merchant.ID, "k1", "ref1")
	require.NoError(t, txns.Reserve(ctx, txn))

	const deliveries = 8
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		transitions int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := hooks.Apply(ctx, repository.WebhookApplication{
				TransactionID: txn.ID,
				Gateway:       models.GatewayPaystack,
				Status:        models.StatusCompleted,
				Payload:       "{}",
				ReceivedAt:    time.Now(),
			})
			if !assert.NoError(t, err) {
				return
			}
			if res.Transitioned {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, transitions)
	n, err := hooks.Count(ctx, txn.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

// TestApplyLosesInsertRace makes a competing delivery's event row appear
// between Apply's dedup check and its insert, as happens when two
// deliveries run concurrently on Postgres.
func TestApplyLosesInsertRace(t *testing.T) {
	db := testutil.NewDB(t)
	merchant := testutil.CreateMerchant(t, db, "key-1", "")
	txns := repository.NewTransactionRepo(db)
	hooks := repository.NewWebhookRepo(db)
	ctx := context.Background()

	txn := newTxn(merchant.ID, "k1", "ref1")
	require.NoError(t, txns.Reserve(ctx, txn))

	var raced atomic.Bool
	err := db.Callback().Create().Before("gorm:create").Register("test:competing_delivery", func(tx *gorm.DB) {
		if tx.Statement.Table != "webhook_events" || !raced.CompareAndSwap(false, true) {
			return
		}
		competing := &models.WebhookEvent{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			TransactionID:  txn.ID,
			PaymentGateway: models.GatewayPaystack,
			Payload:        "{}",
			ReceivedAt:     time.Now(),
		}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(competing).Error; err != nil {
			tx.AddError(err)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Callback().Create().Remove("test:competing_delivery") })

	res, err := hooks.Apply(ctx, repository.WebhookApplication{
		TransactionID: txn.ID,
		Gateway:       models.GatewayPaystack,
		Status:        models.StatusCompleted,
		Payload:       "{}",
		ReceivedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, raced.Load())
	assert.True(t, res.Duplicate)
	assert.False(t, res.Transitioned)

	// the losing delivery's status change was rolled back with its insert
	stored, err := txns.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, models.StatusPending, res.Transaction.Status)
}
