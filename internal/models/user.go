package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// PermissionLevel grades what a user may do beyond their own surveys.
type PermissionLevel string

const (
	PermissionUser  PermissionLevel = "user"
	PermissionAdmin PermissionLevel = "admin"
	PermissionSuper PermissionLevel = "super"
)

// Valid reports whether the level is one of the known grades.
func (p PermissionLevel) Valid() bool {
	switch p {
	case PermissionUser, PermissionAdmin, PermissionSuper:
		return true
	}
	return false
}

// User is a registered account that can author surveys, own groups and vote.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	PermissionLevel PermissionLevel `gorm:"type:varchar(16);not null" json:"permission_level"`
	IsActive        bool            `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`
}

// BeforeSave normalises the email so directory lookups can match exactly.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	if u.PermissionLevel == "" {
		u.PermissionLevel = PermissionUser
	}
	return nil
}

// IsPrivileged reports whether the user may manage and inspect any survey.
func (u *User) IsPrivileged() bool {
	if u == nil {
		return false
	}
	return u.PermissionLevel == PermissionAdmin || u.PermissionLevel == PermissionSuper
}

// IsSuper reports whether the user holds the highest permission level.
func (u *User) IsSuper() bool {
	return u != nil && u.PermissionLevel == PermissionSuper
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Username
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
