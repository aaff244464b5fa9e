package models

import "time"

// RateLimitBucket is the shared token bucket state for one admission identity.
type RateLimitBucket struct {
	Key        string    `gorm:"column:bucket_key;primaryKey;size:128"`
	Tokens     float64   `gorm:"not null"`
	RefilledAt time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null;index"`
}
