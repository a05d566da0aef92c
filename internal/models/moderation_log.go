package models

import (
	"time"

	"gorm.io/datatypes"
)

// ModerationAction is the kind of moderation decision recorded in the audit log.
type ModerationAction string

// Moderation actions.
const (
	ActionValidate ModerationAction = "VALIDATE"
	ActionReject   ModerationAction = "REJECT"
	ActionDelete   ModerationAction = "DELETE"
	ActionRestore  ModerationAction = "RESTORE"
)

// Valid reports whether a is a known action.
func (a ModerationAction) Valid() bool {
	switch a {
	case ActionValidate, ActionReject, ActionDelete, ActionRestore:
		return true
	}
	return false
}

// TargetTestimony is the only target type produced today.
const TargetTestimony = "TESTIMONY"

// ModerationLog is an append-only audit record of one moderation decision.
type ModerationLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	UserID     string            `gorm:"not null;size:64;index" json:"userId"`
	Action     ModerationAction  `gorm:"not null;size:20;index" json:"action"`
	TargetID   string            `gorm:"not null;size:64;index" json:"targetId"`
	TargetType string            `gorm:"not null;size:30;default:TESTIMONY" json:"targetType"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	Timestamp  time.Time         `gorm:"not null;index" json:"timestamp"`
}

// TableName specifies the table name for ModerationLog model.
func (ModerationLog) TableName() string {
	return "moderation_logs"
}

// ActionCount is one row of the per-action statistics.
type ActionCount struct {
	Action ModerationAction `json:"action"`
	Count  int64            `json:"count"`
}
