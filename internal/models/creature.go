package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseLegendScore is the score of a creature with no validated testimony.
const BaseLegendScore = 1.0

// Creature is a cataloged mythological entity.
type Creature struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	AuthorID    string    `gorm:"not null;size:64;index" json:"authorId"`
	Name        string    `gorm:"not null;size:100" json:"name"`
	NameKey     string    `gorm:"not null;size:100;uniqueIndex" json:"-"` // lower-cased name
	Origin      string    `gorm:"size:200" json:"origin,omitempty"`
	LegendScore float64   `gorm:"not null;default:1;index" json:"legendScore"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Creature model.
func (Creature) TableName() string {
	return "creatures"
}

// NameKeyOf returns the case-insensitive uniqueness key for a creature name.
func NameKeyOf(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// BeforeCreate assigns an id and derives NameKey from Name.
func (c *Creature) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.NameKey = NameKeyOf(c.Name)
	if c.LegendScore < BaseLegendScore {
		c.LegendScore = BaseLegendScore
	}
	return nil
}
