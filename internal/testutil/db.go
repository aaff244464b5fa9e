// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/example/pps/internal/database"
	"github.com/example/pps/internal/models"
)

var dbCounter atomic.Int64

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:pps_test_%d?mode=memory&cache=shared&_busy_timeout=5000", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), database.Config())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the shared in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// CreateMerchant inserts a merchant with the given API key.
func CreateMerchant(t *testing.T, db *gorm.DB, apiKey, webhookURL string) *models.Merchant {
	t.Helper()

	merchant := &models.Merchant{
		BaseModel:  models.BaseModel{ID: uuid.New()},
		APIKey:     apiKey,
		Name:       "Merchant " + apiKey,
		WebhookURL: webhookURL,
	}
	require.NoError(t, db.Create(merchant).Error)
	return merchant
}
