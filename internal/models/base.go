package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Timestamps carries the audit columns shared by every table.
type Timestamps struct {
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// Stamp records a write at now. CreatedAt is only set once.
func (t *Timestamps) Stamp(now time.Time) {
	now = now.UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

// BaseModel provides the identity and audit columns for entity tables.
type BaseModel struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamps
}

// BeforeCreate ensures UUIDs are generated and timestamps stamped for new records.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.Stamp(tx.NowFunc())
	}
	return nil
}
