package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus is the lifecycle of a gateway payment order
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// IsTerminal reports whether no webhook may move the payment any further.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

// Payment is an outbound payment intent created before the user is sent to a gateway.
type Payment struct {
	ID                    uint              `gorm:"primaryKey" json:"id"`
	UserID                uint              `gorm:"not null;index" json:"userId"`
	Amount                decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency              string            `gorm:"type:varchar(8);not null;default:'INR'" json:"currency"`
	Status                PaymentStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	Provider              string            `gorm:"type:varchar(32);not null;index" json:"provider"`
	ProviderOrderID       string            `gorm:"type:varchar(64);not null;uniqueIndex" json:"orderId"`
	ProviderTransactionID string            `gorm:"type:varchar(128)" json:"providerTransactionId,omitempty"`
	PaymentURL            string            `gorm:"type:text" json:"paymentUrl"`
	WebhookReceived       bool              `gorm:"not null;default:false" json:"webhookReceived"`
	RewardServiceID       *uint             `gorm:"index" json:"rewardServiceId,omitempty"`
	RewardsProcessed      bool              `gorm:"not null;default:false" json:"rewardsProcessed"`
	Metadata              datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt             time.Time         `gorm:"index" json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
	CompletedAt           *time.Time        `json:"completedAt,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}
