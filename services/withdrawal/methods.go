package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"rewardsvault/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	upiPattern  = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)
)

// MethodInput is a new payout destination.
type MethodInput struct {
	Type              models.WithdrawalMethodType
	AccountHolderName string
	AccountNumber     string
	IFSCCode          string
	BankName          string
	UPIID             string
	IsDefault         bool
}

func (in *MethodInput) normalize() error {
	in.Type = models.WithdrawalMethodType(strings.ToUpper(string(in.Type)))
	in.AccountHolderName = strings.TrimSpace(in.AccountHolderName)
	in.AccountNumber = strings.TrimSpace(in.AccountNumber)
	in.IFSCCode = strings.ToUpper(strings.TrimSpace(in.IFSCCode))
	in.BankName = strings.TrimSpace(in.BankName)
	in.UPIID = strings.TrimSpace(in.UPIID)

	switch in.Type {
	case models.WithdrawalMethodBank:
		if in.AccountHolderName == "" || in.AccountNumber == "" || in.BankName == "" {
			return fmt.Errorf("%w: bank accounts need holder name, account number and bank name", ErrInvalidMethod)
		}
		if !ifscPattern.MatchString(in.IFSCCode) {
			return fmt.Errorf("%w: invalid IFSC code", ErrInvalidMethod)
		}
		in.UPIID = ""
	case models.WithdrawalMethodUPI:
		if !upiPattern.MatchString(in.UPIID) {
			return fmt.Errorf("%w: invalid UPI id", ErrInvalidMethod)
		}
		in.AccountNumber, in.IFSCCode, in.BankName = "", "", ""
	default:
		return fmt.Errorf("%w: type must be BANK or UPI", ErrInvalidMethod)
	}
	return nil
}

// AddMethod stores a payout destination and makes sure the user has a wallet.
func (m *Manager) AddMethod(ctx context.Context, userID uint, in MethodInput) (*models.WithdrawalMethod, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	method := models.WithdrawalMethod{
		UserID:            userID,
		Type:              in.Type,
		AccountHolderName: in.AccountHolderName,
		AccountNumber:     in.AccountNumber,
		IFSCCode:          in.IFSCCode,
		BankName:          in.BankName,
		UPIID:             in.UPIID,
		IsActive:          true,
		IsDefault:         in.IsDefault,
	}

	err := m.uow.Do(ctx, func(tx *gorm.DB) error {
		if _, err := m.ledger.Store.GetOrCreate(tx, userID); err != nil {
			return err
		}
		if in.IsDefault {
			if err := tx.Model(&models.WithdrawalMethod{}).
				Where("user_id = ? AND is_default = ?", userID, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&method).Error
	})
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// ListMethods returns the user's payout destinations, default first.
func (m *Manager) ListMethods(ctx context.Context, userID uint) ([]models.WithdrawalMethod, error) {
	var out []models.WithdrawalMethod
	err := m.uow.DB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, id ASC").
		Find(&out).Error
	return out, err
}

// DeactivateMethod keeps the row for history but blocks new withdrawals to it.
func (m *Manager) DeactivateMethod(ctx context.Context, userID, methodID uint) error {
	res := m.uow.DB().WithContext(ctx).Model(&models.WithdrawalMethod{}).
		Where("id = ? AND user_id = ?", methodID, userID).
		Updates(map[string]interface{}{"is_active": false, "is_default": false})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMethodNotFound
	}
	return nil
}

// DeleteMethod removes a method no request has ever used.
func (m *Manager) DeleteMethod(ctx context.Context, userID, methodID uint) error {
	return m.uow.Do(ctx, func(tx *gorm.DB) error {
		var method models.WithdrawalMethod
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", methodID, userID).First(&method).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMethodNotFound
		}
		if err != nil {
			return err
		}

		var used int64
		if err := tx.Model(&models.WithdrawalRequest{}).
			Where("withdrawal_method_id = ?", methodID).
			Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return ErrMethodInUse
		}
		return tx.Delete(&method).Error
	})
}

// activeMethod locks the user's method row for the rest of tx.
func (m *Manager) activeMethod(tx *gorm.DB, userID, methodID uint) (*models.WithdrawalMethod, error) {
	var method models.WithdrawalMethod
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ? AND user_id = ?", methodID, userID).First(&method).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMethodNotFound
	}
	if err != nil {
		return nil, err
	}
	if !method.IsActive {
		return nil, ErrMethodInactive
	}
	return &method, nil
}
