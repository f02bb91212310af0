// Package referral pays referral rewards the first time a referred user
// makes a qualifying deposit.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rewardsvault/database"
	"rewardsvault/logger"
	"rewardsvault/models"
	"rewardsvault/services/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrCodeNotFound    = errors.New("referral code not found")
	ErrAlreadyReferred = errors.New("user already has a referrer")
	ErrSelfReferral    = errors.New("users cannot refer themselves")
	ErrInvalidSettings = errors.New("invalid referral settings")
)

type Trigger struct {
	uow    *database.UnitOfWork
	ledger *ledger.Service
	now    func() time.Time
}

func NewTrigger(uow *database.UnitOfWork, l *ledger.Service) *Trigger {
	return &Trigger{uow: uow, ledger: l, now: time.Now}
}

// ComputeReward applies a FLAT value or a PERCENTAGE of the deposit, rounded to 2 places.
func ComputeReward(kind models.RewardType, value, deposit decimal.Decimal) decimal.Decimal {
	var r decimal.Decimal
	switch kind {
	case models.RewardTypePercentage:
		r = deposit.Mul(value).Div(decimal.NewFromInt(100))
	default:
		r = value
	}
	if r.IsNegative() {
		return decimal.Zero
	}
	return r.Round(2)
}

// OnDeposit pays the pending referral of userID if amount qualifies.
// It returns nil, nil whenever there is nothing to pay.
func (t *Trigger) OnDeposit(ctx context.Context, userID uint, amount decimal.Decimal) (*models.Referral, error) {
	db := t.uow.DB().WithContext(ctx)

	settings, err := t.ActiveSettings(ctx)
	if err != nil || settings == nil {
		return nil, err
	}

	var ref models.Referral
	err = db.Where("referred_id = ? AND status = ?", userID, models.ReferralStatusPending).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if amount.LessThan(settings.MinDepositAmount) {
		logger.Log.Debug("deposit below referral minimum",
			zap.Uint("user_id", userID),
			zap.String("amount", amount.StringFixed(2)),
			zap.String("minimum", settings.MinDepositAmount.StringFixed(2)))
		return nil, nil
	}

	referrerReward := ComputeReward(settings.ReferrerRewardType, settings.ReferrerRewardValue, amount)
	referredReward := ComputeReward(settings.ReferredRewardType, settings.ReferredRewardValue, amount)
	completedAt := t.now()

	paid := false
	err = t.uow.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Referral{}).
			Where("id = ? AND status = ?", ref.ID, models.ReferralStatusPending).
			Updates(map[string]interface{}{
				"status":          models.ReferralStatusCompleted,
				"referrer_reward": referrerReward,
				"referred_reward": referredReward,
				"completed_at":    completedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		paid = true

		refID := ref.ID
		meta := datatypes.JSONMap{"deposit_amount": amount.StringFixed(2)}
		if referrerReward.IsPositive() {
			if _, err := t.ledger.Apply(tx, ledger.Movement{
				UserID:        ref.ReferrerID,
				Amount:        referrerReward,
				Type:          models.TransactionTypeReward,
				Description:   "Referral reward",
				ReferenceType: models.ReferenceTypeReferral,
				ReferenceID:   &refID,
				Metadata:      meta,
			}); err != nil {
				return err
			}
		}
		if referredReward.IsPositive() {
			if _, err := t.ledger.Apply(tx, ledger.Movement{
				UserID:        ref.ReferredID,
				Amount:        referredReward,
				Type:          models.TransactionTypeReward,
				Description:   "Referral welcome reward",
				ReferenceType: models.ReferenceTypeReferral,
				ReferenceID:   &refID,
				Metadata:      meta,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pay referral %d: %w", ref.ID, err)
	}
	if !paid {
		return nil, nil
	}

	ref.Status = models.ReferralStatusCompleted
	ref.ReferrerReward = referrerReward
	ref.ReferredReward = referredReward
	ref.CompletedAt = &completedAt

	logger.Log.Info("referral paid",
		zap.Uint("referral_id", ref.ID),
		zap.Uint("referrer_id", ref.ReferrerID),
		zap.Uint("referred_id", ref.ReferredID),
		zap.String("referrer_reward", referrerReward.StringFixed(2)),
		zap.String("referred_reward", referredReward.StringFixed(2)))
	return &ref, nil
}

// NewCode returns an 8 character referral code.
func NewCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Apply links userID to the owner of code as a PENDING referral.
func (t *Trigger) Apply(ctx context.Context, userID uint, code string) (*models.Referral, error) {
	db := t.uow.DB().WithContext(ctx)

	var referrer models.User
	err := db.Where("referral_code = ? AND is_deleted = ?", strings.ToUpper(strings.TrimSpace(code)), false).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	if referrer.ID == userID {
		return nil, ErrSelfReferral
	}

	ref := models.Referral{
		ReferrerID: referrer.ID,
		ReferredID: userID,
		Status:     models.ReferralStatusPending,
	}
	if err := db.Create(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyReferred
		}
		return nil, err
	}
	return &ref, nil
}

// ListByReferrer returns the referrals a user has made.
func (t *Trigger) ListByReferrer(ctx context.Context, userID uint) ([]models.Referral, error) {
	var out []models.Referral
	err := t.uow.DB().WithContext(ctx).
		Where("referrer_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// ActiveSettings returns the newest active settings row, or nil when none is active.
func (t *Trigger) ActiveSettings(ctx context.Context) (*models.ReferralSettings, error) {
	var s models.ReferralSettings
	err := t.uow.DB().WithContext(ctx).
		Where("is_active = ?", true).
		Order("id DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings stores a new settings row; it becomes current if active.
func (t *Trigger) SaveSettings(ctx context.Context, s models.ReferralSettings) (*models.ReferralSettings, error) {
	for _, kind := range []models.RewardType{s.ReferrerRewardType, s.ReferredRewardType} {
		if kind != models.RewardTypeFlat && kind != models.RewardTypePercentage {
			return nil, fmt.Errorf("%w: reward type %q", ErrInvalidSettings, kind)
		}
	}
	if s.MinDepositAmount.IsNegative() || s.ReferrerRewardValue.IsNegative() || s.ReferredRewardValue.IsNegative() {
		return nil, fmt.Errorf("%w: values must not be negative", ErrInvalidSettings)
	}

	s.ID = 0
	if err := t.uow.DB().WithContext(ctx).Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
