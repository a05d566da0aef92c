package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TestimonyStatus is the moderation state of a testimony.
type TestimonyStatus string

// Testimony statuses. VALIDATED and REJECTED are terminal.
const (
	StatusPending   TestimonyStatus = "PENDING"
	StatusValidated TestimonyStatus = "VALIDATED"
	StatusRejected  TestimonyStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s TestimonyStatus) Valid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusRejected:
		return true
	}
	return false
}

// Testimony is a user-submitted sighting tied to one creature.
// DeletedAt is a plain column rather than gorm.DeletedAt so that every query states its own filter.
type Testimony struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	CreatureID  string          `gorm:"not null;size:36;index:idx_testimony_author_creature,priority:2;index" json:"creatureId"`
	AuthorID    string          `gorm:"not null;size:64;index:idx_testimony_author_creature,priority:1" json:"authorId"`
	Description string          `gorm:"not null;type:text" json:"description"`
	Status      TestimonyStatus `gorm:"not null;size:20;default:PENDING;index" json:"status"`
	ValidatedBy *string         `gorm:"size:64" json:"validatedBy,omitempty"`
	ValidatedAt *time.Time      `json:"validatedAt,omitempty"`
	DeletedAt   *time.Time      `gorm:"index" json:"deletedAt,omitempty"`
	DeletedBy   *string         `gorm:"size:64" json:"deletedBy,omitempty"`
	CreatedAt   time.Time       `gorm:"index:idx_testimony_author_creature,priority:3" json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TableName specifies the table name for Testimony model.
func (Testimony) TableName() string {
	return "testimonies"
}

// IsDeleted reports whether the testimony is soft-deleted.
func (t *Testimony) IsDeleted() bool {
	return t.DeletedAt != nil
}

// BeforeCreate assigns an id and the initial status.
func (t *Testimony) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	return nil
}
