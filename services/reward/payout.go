// Package reward pays deposits made under a reward service: the deposit
// itself plus a bonus computed from the service's formula.
package reward

import (
	"errors"
	"fmt"

	"rewardsvault/logger"
	"rewardsvault/models"
	"rewardsvault/services/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrAlreadyProcessed = errors.New("rewards already processed for payment")

// Payout is what a reward-service deposit credited.
type Payout struct {
	Deposit decimal.Decimal
	Reward  decimal.Decimal
}

// Total is deposit plus reward.
func (p Payout) Total() decimal.Decimal {
	return p.Deposit.Add(p.Reward)
}

type Payer struct {
	ledger *ledger.Service
}

func NewPayer(l *ledger.Service) *Payer {
	return &Payer{ledger: l}
}

// Pay credits a completed reward-service payment inside tx. The
// rewards_processed flag is flipped first so a second call is refused.
// A formula that cannot be evaluated pays the deposit with no reward.
func (p *Payer) Pay(tx *gorm.DB, payment *models.Payment) (*Payout, error) {
	res := tx.Model(&models.Payment{}).
		Where("id = ? AND rewards_processed = ?", payment.ID, false).
		Update("rewards_processed", true)
	if res.Error != nil {
		return nil, fmt.Errorf("latch rewards for payment %d: %w", payment.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyProcessed
	}
	payment.RewardsProcessed = true

	reward := p.computeReward(tx, payment)
	ref := payment.ID
	meta := datatypes.JSONMap{"order_id": payment.ProviderOrderID, "provider": payment.Provider}

	if _, err := p.ledger.Apply(tx, ledger.Movement{
		UserID:        payment.UserID,
		Amount:        payment.Amount,
		Type:          models.TransactionTypeDeposit,
		Description:   "Deposit via " + payment.Provider,
		ReferenceType: models.ReferenceTypePayment,
		ReferenceID:   &ref,
		Metadata:      meta,
	}); err != nil {
		return nil, err
	}

	if reward.IsPositive() {
		if _, err := p.ledger.Apply(tx, ledger.Movement{
			UserID:        payment.UserID,
			Amount:        reward,
			Type:          models.TransactionTypeReward,
			Description:   "Deposit reward",
			ReferenceType: models.ReferenceTypePayment,
			ReferenceID:   &ref,
			Metadata:      meta,
		}); err != nil {
			return nil, err
		}
	}

	return &Payout{Deposit: payment.Amount, Reward: reward}, nil
}

func (p *Payer) computeReward(tx *gorm.DB, payment *models.Payment) decimal.Decimal {
	if payment.RewardServiceID == nil {
		return decimal.Zero
	}

	var svc models.RewardService
	if err := tx.First(&svc, *payment.RewardServiceID).Error; err != nil {
		logger.Log.Error("reward service lookup failed; paying deposit only",
			zap.String("order_id", payment.ProviderOrderID),
			zap.Uint("reward_service_id", *payment.RewardServiceID),
			zap.Error(err))
		return decimal.Zero
	}

	formula, err := Compile(svc.Formula)
	if err == nil {
		var reward decimal.Decimal
		reward, err = formula.Reward(payment.Amount)
		if err == nil {
			return reward
		}
	}
	logger.Log.Error("reward formula failed; paying deposit only",
		zap.String("order_id", payment.ProviderOrderID),
		zap.String("formula", svc.Formula),
		zap.Error(err))
	return decimal.Zero
}
