// Package ledger owns every write to wallets.balance and wallet_transactions.
//
// Balances change only through Store.Credit and Store.Debit, and callers outside
// this package reach those through Service, which appends the matching ledger row
// in the same database transaction.
package ledger

import (
	"errors"
	"fmt"

	"rewardsvault/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrTransactionNotPending = errors.New("transaction is not pending")
	ErrNotReversible         = errors.New("only pending debits can be reversed")
)

// Change is the outcome of one balance mutation.
type Change struct {
	Wallet models.Wallet
	Before decimal.Decimal
	After  decimal.Decimal
}

// Store is the wallet table.
type Store struct {
	currency string
}

func NewStore(currency string) *Store {
	return &Store{currency: currency}
}

// GetOrCreate returns the user's wallet, inserting an empty one if none exists.
// Concurrent first calls for the same user resolve to the same row.
func (s *Store) GetOrCreate(tx *gorm.DB, userID uint) (*models.Wallet, error) {
	w := models.Wallet{UserID: userID, Balance: decimal.Zero, Currency: s.currency}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&w).Error; err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	var wallet models.Wallet
	if err := tx.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	return &wallet, nil
}

// FindByUser reads the wallet without creating it.
func (s *Store) FindByUser(db *gorm.DB, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := db.Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Credit adds amount to the wallet. tx must be a transaction.
func (s *Store) Credit(tx *gorm.DB, walletID uint, amount decimal.Decimal) (*Change, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return s.apply(tx, walletID, amount)
}

// Debit removes amount from the wallet, failing with ErrInsufficientFunds
// rather than letting the balance go negative. tx must be a transaction.
func (s *Store) Debit(tx *gorm.DB, walletID uint, amount decimal.Decimal) (*Change, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return s.apply(tx, walletID, amount.Neg())
}

func (s *Store) apply(tx *gorm.DB, walletID uint, delta decimal.Decimal) (*Change, error) {
	// re-read under a row lock; never trust a balance fetched before the tx
	var wallet models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&wallet, walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet %d: %w", walletID, err)
	}

	before := wallet.Balance
	after := before.Add(delta)
	if after.IsNegative() {
		return nil, ErrInsufficientFunds
	}

	if err := tx.Model(&wallet).Update("balance", after).Error; err != nil {
		return nil, fmt.Errorf("update wallet %d: %w", walletID, err)
	}
	wallet.Balance = after

	return &Change{Wallet: wallet, Before: before, After: after}, nil
}
