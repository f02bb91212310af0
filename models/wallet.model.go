package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the single spendable balance of a user.
// Balance is only ever written through services/ledger.
type Wallet struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"uniqueIndex;not null" json:"userId"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0;check:chk_wallets_balance_non_negative,balance >= 0" json:"balance"`
	Currency  string          `gorm:"type:varchar(8);not null;default:'INR'" json:"currency"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (Wallet) TableName() string {
	return "wallets"
}
