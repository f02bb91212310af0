package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the escrow lifecycle of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalStatusPending             WithdrawalStatus = "PENDING"
	WithdrawalStatusPendingVerification WithdrawalStatus = "PENDING_VERIFICATION"
	WithdrawalStatusApproved            WithdrawalStatus = "APPROVED"
	WithdrawalStatusRejected            WithdrawalStatus = "REJECTED"
	WithdrawalStatusProcessing          WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted           WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed              WithdrawalStatus = "FAILED"
)

// WithdrawalRequest is created together with the wallet debit and a PENDING ledger row.
type WithdrawalRequest struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	UserID             uint             `gorm:"not null;index" json:"userId"`
	WithdrawalMethodID uint             `gorm:"not null;index" json:"withdrawalMethodId"`
	Amount             decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency           string           `gorm:"type:varchar(8);not null;default:'INR'" json:"currency"`
	Status             WithdrawalStatus `gorm:"type:varchar(30);not null;index" json:"status"`
	TransactionID      *uint            `gorm:"index" json:"transactionId,omitempty"`
	RejectionReason    *string          `gorm:"type:text" json:"rejectionReason,omitempty"`
	AdminNotes         *string          `gorm:"type:text" json:"adminNotes,omitempty"`
	ProcessedBy        *uint            `json:"processedBy,omitempty"`
	CreatedAt          time.Time        `gorm:"index" json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
	ProcessedAt        *time.Time       `json:"processedAt,omitempty"`

	WithdrawalMethod *WithdrawalMethod `gorm:"foreignKey:WithdrawalMethodID;constraint:OnDelete:RESTRICT" json:"withdrawalMethod,omitempty"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

// WithdrawalMethodType is the payout rail
type WithdrawalMethodType string

const (
	WithdrawalMethodBank WithdrawalMethodType = "BANK"
	WithdrawalMethodUPI  WithdrawalMethodType = "UPI"
)

// WithdrawalMethod is a payout destination owned by a user.
type WithdrawalMethod struct {
	ID                uint                 `gorm:"primaryKey" json:"id"`
	UserID            uint                 `gorm:"not null;index" json:"userId"`
	Type              WithdrawalMethodType `gorm:"type:varchar(10);not null" json:"type"`
	AccountHolderName string               `gorm:"type:varchar(120)" json:"accountHolderName"`
	AccountNumber     string               `gorm:"type:varchar(34)" json:"accountNumber,omitempty"`
	IFSCCode          string               `gorm:"type:varchar(11)" json:"ifscCode,omitempty"`
	BankName          string               `gorm:"type:varchar(120)" json:"bankName,omitempty"`
	UPIID             string               `gorm:"column:upi_id;type:varchar(100)" json:"upiId,omitempty"`
	IsActive          bool                 `gorm:"not null" json:"isActive"`
	IsDefault         bool                 `gorm:"not null" json:"isDefault"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

func (WithdrawalMethod) TableName() string {
	return "withdrawal_methods"
}
