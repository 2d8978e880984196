package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel carries the audit timestamps every portal table has
type BaseModel struct {
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// Timestamp returns the current time as stored: UTC at microsecond precision,
// which is what postgres keeps, so a value survives a round trip unchanged.
func Timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// BeforeCreate stamps both timestamps unless the caller set CreatedAt
func (b *BaseModel) BeforeCreate(*gorm.DB) error {
	now := Timestamp()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}
	return nil
}

// BeforeUpdate refreshes UpdatedAt on full-struct saves
func (b *BaseModel) BeforeUpdate(*gorm.DB) error {
	b.UpdatedAt = Timestamp()
	return nil
}
