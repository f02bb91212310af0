package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles
const (
	RoleUser       = "USER"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER-ADMIN"
)

type User struct {
	gorm.Model
	Name                string     `gorm:"default:''" json:"name"`
	Email               string     `gorm:"unique;not null" json:"email"`
	Mobile              string     `gorm:"default:''" json:"mobile"`
	Role                string     `gorm:"default:'USER'" json:"role"` // USER, ADMIN, SUPER-ADMIN
	Password            string     `gorm:"not null" json:"-"`
	ReferralCode        *string    `gorm:"type:varchar(16);uniqueIndex" json:"referralCode"`
	IsMobileVerified    bool       `gorm:"default:false" json:"isMobileVerified"`
	IsEmailVerified     bool       `gorm:"default:false" json:"isEmailVerified"`
	LastLogin           *time.Time `json:"lastLogin"`
	FailedLoginAttempts int        `gorm:"default:0" json:"-"`
	LastFailedLogin     *time.Time `json:"-"`
	IsBlocked           bool       `gorm:"default:false" json:"isBlocked"`
	BlockedUntil        *time.Time `json:"blockedUntil"`
	IsDeleted           bool       `gorm:"default:false" json:"-"`
}

// IsAdmin reports whether the user may act on the back-office routes.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}
