package models

import (
	"strconv"
	"time"
)

// Role is the authorization level of a user.
type Role string

// Roles, from least to most privileged.
const (
	RoleUser   Role = "USER"
	RoleExpert Role = "EXPERT"
	RoleAdmin  Role = "ADMIN"
)

// PromotionThreshold is the reputation at which a USER becomes an EXPERT.
const PromotionThreshold = 10

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleExpert, RoleAdmin:
		return true
	}
	return false
}

// CanModerate reports whether r may validate, reject or delete testimonies.
func (r Role) CanModerate() bool {
	return r == RoleExpert || r == RoleAdmin
}

// User represents an account owned by the identity service.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Email      string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Username   string    `gorm:"uniqueIndex;not null;size:100" json:"username"`
	Password   string    `gorm:"not null;size:255" json:"-"`
	Role       Role      `gorm:"not null;size:20;default:USER;index" json:"role"`
	Reputation int       `gorm:"not null;default:0" json:"reputation"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// PublicID is the identifier other services store for this user.
func (u *User) PublicID() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}
