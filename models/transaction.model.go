package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionType defines the type of wallet transaction
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTradeBuy   TransactionType = "TRADE_BUY"
	TransactionTypeTradeSell  TransactionType = "TRADE_SELL"
	TransactionTypeReward     TransactionType = "REWARD"
	TransactionTypeRefund     TransactionType = "REFUND"
)

// TransactionStatus defines the status of a transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// ReferenceType names the table a Transaction.ReferenceID points into.
type ReferenceType string

const (
	ReferenceTypePayment    ReferenceType = "payment"
	ReferenceTypeWithdrawal ReferenceType = "withdrawal"
	ReferenceTypeReferral   ReferenceType = "referral"
)

// Transaction is one append-only ledger row. Every wallet balance change
// has exactly one row; rows only move PENDING -> COMPLETED or PENDING -> FAILED.
type Transaction struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      uint              `gorm:"not null;index" json:"userId"`
	WalletID    uint              `gorm:"not null;index" json:"walletId"`
	Amount      decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency    string            `gorm:"type:varchar(8);not null;default:'INR'" json:"currency"`
	Type        TransactionType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status      TransactionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Description string            `gorm:"type:text" json:"description"`

	// Balance snapshot for rows that moved money; null on audit-only rows.
	BalanceBefore decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"balanceBefore"`
	BalanceAfter  decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"balanceAfter"`

	ReferenceType ReferenceType     `gorm:"type:varchar(20);index:idx_wallet_transactions_reference" json:"referenceType,omitempty"`
	ReferenceID   *uint             `gorm:"index:idx_wallet_transactions_reference" json:"referenceId,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "wallet_transactions"
}

// IsCredit reports whether the type adds to the wallet.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeReward, TransactionTypeRefund, TransactionTypeTradeSell:
		return true
	}
	return false
}
