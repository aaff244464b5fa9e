package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/pps/internal/models"
)

// SQLStore keeps buckets in the rate_limit_buckets table. Each Take is one
// database transaction holding a row lock on the bucket.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Take(ctx context.Context, key string, policy Policy, now time.Time) (bool, error) {
	var allowed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.RateLimitBucket{
			Key:        key,
			Tokens:     float64(policy.Capacity),
			RefilledAt: now,
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		query := tx
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var row models.RateLimitBucket
		if err := query.Where("bucket_key = ?", key).First(&row).Error; err != nil {
			return err
		}

		next, ok := policy.Take(Bucket{Tokens: row.Tokens, RefilledAt: row.RefilledAt}, now)
		allowed = ok

		return tx.Model(&models.RateLimitBucket{}).
			Where("bucket_key = ?", key).
			Updates(map[string]any{
				"tokens":      next.Tokens,
				"refilled_at": next.RefilledAt,
				"updated_at":  now,
			}).Error
	})
	if err != nil {
		return false, fmt.Errorf("take token for %s: %w", key, err)
	}

	return allowed, nil
}

// Purge deletes buckets untouched since idleBefore. An idle bucket has
// refilled completely, so dropping it loses nothing.
func (s *SQLStore) Purge(ctx context.Context, idleBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("updated_at < ?", idleBefore.UTC()).Delete(&models.RateLimitBucket{})
	return res.RowsAffected, res.Error
}

// RunJanitor purges idle buckets every interval until ctx is done.
func (s *SQLStore) RunJanitor(ctx context.Context, interval, idleTTL time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx, time.Now().Add(-idleTTL))
			if err != nil {
				logger.Warn("rate limit janitor failed", slog.Any("err", err))
				continue
			}
			if n > 0 {
				logger.Debug("purged idle rate limit buckets", slog.Int64("count", n))
			}
		}
	}
}
