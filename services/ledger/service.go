package ledger

import (
	"context"
	"fmt"

	"rewardsvault/database"
	"rewardsvault/models"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Movement describes one balance change and the reason for it.
type Movement struct {
	UserID        uint
	Amount        decimal.Decimal
	Type          models.TransactionType
	Status        models.TransactionStatus // defaults to COMPLETED
	Description   string
	ReferenceType models.ReferenceType
	ReferenceID   *uint
	Metadata      datatypes.JSONMap
}

// Service pairs every wallet mutation with exactly one ledger entry.
type Service struct {
	uow      *database.UnitOfWork
	Store    *Store
	Ledger   *Ledger
	currency string
}

func NewService(uow *database.UnitOfWork, currency string) *Service {
	return &Service{
		uow:      uow,
		Store:    NewStore(currency),
		Ledger:   NewLedger(),
		currency: currency,
	}
}

// Apply moves money and appends the entry explaining it, inside tx.
// Credit types add to the balance; WITHDRAWAL and TRADE_BUY subtract.
func (s *Service) Apply(tx *gorm.DB, m Movement) (*models.Transaction, error) {
	if !m.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	wallet, err := s.Store.GetOrCreate(tx, m.UserID)
	if err != nil {
		return nil, err
	}

	var change *Change
	if m.Type.IsCredit() {
		change, err = s.Store.Credit(tx, wallet.ID, m.Amount)
	} else {
		change, err = s.Store.Debit(tx, wallet.ID, m.Amount)
	}
	if err != nil {
		return nil, err
	}

	entry := s.entry(wallet, m)
	entry.BalanceBefore = decimal.NewNullDecimal(change.Before)
	entry.BalanceAfter = decimal.NewNullDecimal(change.After)
	if err := s.Ledger.Append(tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Record appends an entry that explains no balance change, such as a failed deposit.
func (s *Service) Record(tx *gorm.DB, m Movement) (*models.Transaction, error) {
	wallet, err := s.Store.GetOrCreate(tx, m.UserID)
	if err != nil {
		return nil, err
	}
	entry := s.entry(wallet, m)
	if err := s.Ledger.Append(tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Reverse releases a PENDING debit: the amount goes back to the wallet and
// the entry becomes FAILED, which removes it from the derived balance.
func (s *Service) Reverse(tx *gorm.DB, transactionID uint) (*models.Transaction, error) {
	var entry models.Transaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&entry, transactionID).Error; err != nil {
		return nil, fmt.Errorf("load entry %d: %w", transactionID, err)
	}
	if entry.Status != models.TransactionStatusPending {
		return nil, ErrTransactionNotPending
	}
	if entry.Type.IsCredit() {
		return nil, ErrNotReversible
	}

	if _, err := s.Store.Credit(tx, entry.WalletID, entry.Amount); err != nil {
		return nil, err
	}
	if err := s.Ledger.Transition(tx, entry.ID, models.TransactionStatusFailed); err != nil {
		return nil, err
	}
	entry.Status = models.TransactionStatusFailed
	return &entry, nil
}

// Run executes fn in the service's unit of work.
func (s *Service) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.uow.Do(ctx, fn)
}

// Balance returns the user's wallet, creating an empty one on first access.
func (s *Service) Balance(ctx context.Context, userID uint) (*models.Wallet, error) {
	return s.Store.GetOrCreate(s.uow.DB().WithContext(ctx), userID)
}

// HistoryFilter narrows History. Zero values mean no filter.
type HistoryFilter struct {
	Type  models.TransactionType
	Page  int
	Limit int
}

// History lists the user's entries newest first.
func (s *Service) History(ctx context.Context, userID uint, f HistoryFilter) ([]models.Transaction, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}

	base := func() *gorm.DB {
		q := s.uow.DB().WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
		if f.Type != "" {
			q = q.Where("type = ?", f.Type)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.Transaction
	err := base().Order("created_at DESC, id DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&entries).Error
	return entries, total, err
}

// Audit verifies the stored balance of a user's wallet against the ledger.
func (s *Service) Audit(ctx context.Context, userID uint) (*Audit, error) {
	db := s.uow.DB().WithContext(ctx)
	wallet, err := s.Store.FindByUser(db, userID)
	if err != nil {
		return nil, err
	}
	return s.Ledger.Verify(db, wallet.ID)
}

func (s *Service) entry(wallet *models.Wallet, m Movement) *models.Transaction {
	status := m.Status
	if status == "" {
		status = models.TransactionStatusCompleted
	}
	currency := wallet.Currency
	if currency == "" {
		currency = s.currency
	}
	return &models.Transaction{
		UserID:        m.UserID,
		WalletID:      wallet.ID,
		Amount:        m.Amount,
		Currency:      currency,
		Type:          m.Type,
		Status:        status,
		Description:   m.Description,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Metadata:      m.Metadata,
	}
}
