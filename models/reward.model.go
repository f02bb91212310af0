package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RewardService is a deposit product that pays an extra reward computed
// from Formula, an arithmetic expression over `amount`.
type RewardService struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"type:varchar(120);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Formula     string          `gorm:"type:varchar(255);not null" json:"formula"` // e.g. "amount * 0.1"
	MinAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"minAmount"`
	MaxAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"maxAmount"` // 0 = no cap
	IsActive    bool            `gorm:"not null" json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (RewardService) TableName() string {
	return "reward_services"
}

// ReferralStatus is the payout state of a referral relationship
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "PENDING"
	ReferralStatusCompleted ReferralStatus = "COMPLETED"
)

// Referral links a referred user to the user who invited them. It pays out once.
type Referral struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ReferrerID     uint            `gorm:"not null;index" json:"referrerId"`
	ReferredID     uint            `gorm:"not null;uniqueIndex" json:"referredId"`
	Status         ReferralStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	ReferrerReward decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"referrerReward"`
	ReferredReward decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"referredReward"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (Referral) TableName() string {
	return "referrals"
}

// RewardType decides how a referral reward value is applied
type RewardType string

const (
	RewardTypeFlat       RewardType = "FLAT"
	RewardTypePercentage RewardType = "PERCENTAGE"
)

// ReferralSettings is admin-managed; the newest active row wins.
type ReferralSettings struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	IsActive            bool            `gorm:"not null" json:"isActive"`
	MinDepositAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"minDepositAmount"`
	ReferrerRewardType  RewardType      `gorm:"type:varchar(20);not null" json:"referrerRewardType"`
	ReferrerRewardValue decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"referrerRewardValue"`
	ReferredRewardType  RewardType      `gorm:"type:varchar(20);not null" json:"referredRewardType"`
	ReferredRewardValue decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"referredRewardValue"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func (ReferralSettings) TableName() string {
	return "referral_settings"
}
