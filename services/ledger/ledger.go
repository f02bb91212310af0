package ledger

import (
	"errors"
	"fmt"

	"rewardsvault/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger is the append-only wallet_transactions table.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Append inserts a new entry. Amount is always positive; Type carries the sign.
func (l *Ledger) Append(tx *gorm.DB, entry *models.Transaction) error {
	if !entry.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if entry.Status == "" {
		entry.Status = models.TransactionStatusCompleted
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("append %s entry: %w", entry.Type, err)
	}
	return nil
}

// Transition moves a PENDING entry to COMPLETED or FAILED.
func (l *Ledger) Transition(tx *gorm.DB, id uint, to models.TransactionStatus) error {
	if to == models.TransactionStatusPending {
		return fmt.Errorf("transition entry %d: target status must be terminal", id)
	}

	res := tx.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("transition entry %d: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.Transaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrTransactionNotPending
}

// DerivedBalance recomputes a wallet balance from its entries:
// completed credits minus withdrawals still held or paid out, minus completed trade buys.
func (l *Ledger) DerivedBalance(db *gorm.DB, walletID uint) (decimal.Decimal, error) {
	var rows []struct {
		Type   models.TransactionType
		Status models.TransactionStatus
		Amount decimal.Decimal
	}
	if err := db.Model(&models.Transaction{}).
		Select("type, status, amount").
		Where("wallet_id = ?", walletID).
		Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	for _, r := range rows {
		switch {
		case r.Type.IsCredit() && r.Status == models.TransactionStatusCompleted:
			sum = sum.Add(r.Amount)
		case r.Type == models.TransactionTypeWithdrawal && r.Status != models.TransactionStatusFailed:
			sum = sum.Sub(r.Amount)
		case r.Type == models.TransactionTypeTradeBuy && r.Status == models.TransactionStatusCompleted:
			sum = sum.Sub(r.Amount)
		}
	}
	return sum, nil
}

// Audit is the result of comparing a stored balance with its ledger.
type Audit struct {
	WalletID uint            `json:"walletId"`
	UserID   uint            `json:"userId"`
	Stored   decimal.Decimal `json:"stored"`
	Derived  decimal.Decimal `json:"derived"`
	Balanced bool            `json:"balanced"`
}

// Verify checks the stored balance of one wallet against DerivedBalance.
func (l *Ledger) Verify(db *gorm.DB, walletID uint) (*Audit, error) {
	var wallet models.Wallet
	err := db.First(&wallet, walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}

	derived, err := l.DerivedBalance(db, walletID)
	if err != nil {
		return nil, err
	}
	return &Audit{
		WalletID: wallet.ID,
		UserID:   wallet.UserID,
		Stored:   wallet.Balance,
		Derived:  derived,
		Balanced: wallet.Balance.Equal(derived),
	}, nil
}
