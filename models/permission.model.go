package models

import (
	"gorm.io/gorm"
)

// Permission strings checked by middleware.CheckPermissionMiddleware.
// Every user is seeded with them at signup; an admin revokes one by marking it deleted.
const (
	PermissionLogin    = "login"
	PermissionDeposit  = "deposit"
	PermissionWithdraw = "withdraw"
)

type Permission struct {
	gorm.Model
	UserID     uint   `gorm:"not null;index"`
	User       User   `gorm:"foreignKey:UserID"`
	Role       string `gorm:"type:varchar(20)"`
	Permission string `gorm:"type:varchar(255)"` // e.g., "withdraw"
	IsDeleted  bool   `gorm:"default:false"`
}
