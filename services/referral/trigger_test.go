package referral

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"rewardsvault/database"
	"rewardsvault/models"
	"rewardsvault/services/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	trigger  *Trigger
	ledger   *ledger.Service
	db       *gorm.DB
	referrer models.User
	referred models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:referral_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	uow := database.NewUnitOfWork(db, "")
	l := ledger.NewService(uow, "INR")

	code := "ALICE001"
	f := &fixture{
		trigger:  NewTrigger(uow, l),
		ledger:   l,
		db:       db,
		referrer: models.User{Name: "Referrer", Email: "referrer@example.com", Password: "x", ReferralCode: &code},
		referred: models.User{Name: "Referred", Email: "referred@example.com", Password: "x"},
	}
	require.NoError(t, db.Create(&f.referrer).Error)
	require.NoError(t, db.Create(&f.referred).Error)
	return f
}

func (f *fixture) settings(t *testing.T, s models.ReferralSettings) {
	t.Helper()
	_, err := f.trigger.SaveSettings(context.Background(), s)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID uint) decimal.Decimal {
	t.Helper()
	w, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func defaultSettings() models.ReferralSettings {
	return models.ReferralSettings{
		IsActive:            true,
		MinDepositAmount:    dec("500"),
		ReferrerRewardType:  models.RewardTypeFlat,
		ReferrerRewardValue: dec("100"),
		ReferredRewardType:  models.RewardTypePercentage,
		ReferredRewardValue: dec("10"),
	}
}

func TestComputeReward(t *testing.T) {
	assert.True(t, ComputeReward(models.RewardTypeFlat, dec("50"), dec("1000")).Equal(dec("50")))
	assert.True(t, ComputeReward(models.RewardTypePercentage, dec("2.5"), dec("1000")).Equal(dec("25")))
	assert.Equal(t, "3.33", ComputeReward(models.RewardTypePercentage, dec("33.333"), dec("10")).StringFixed(2))
	assert.True(t, ComputeReward(models.RewardTypeFlat, dec("-1"), dec("10")).IsZero())
}

func TestApply(t *testing.T) {
	f := newFixture(t)

	_, err := f.trigger.Apply(context.Background(), f.referred.ID, "nope")
	assert.ErrorIs(t, err, ErrCodeNotFound)

	_, err = f.trigger.Apply(context.Background(), f.referrer.ID, "alice001")
	assert.ErrorIs(t, err, ErrSelfReferral)

	ref, err := f.trigger.Apply(context.Background(), f.referred.ID, " alice001 ")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusPending, ref.Status)
	assert.Equal(t, f.referrer.ID, ref.ReferrerID)

	_, err = f.trigger.Apply(context.Background(), f.referred.ID, "ALICE001")
	assert.ErrorIs(t, err, ErrAlreadyReferred)

	list, err := f.trigger.ListByReferrer(context.Background(), f.referrer.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOnDeposit_PaysBothPartiesOnce(t *testing.T) {
	f := newFixture(t)
	f.settings(t, defaultSettings())
	_, err := f.trigger.Apply(context.Background(), f.referred.ID, "ALICE001")
	require.NoError(t, err)

	ref, err := f.trigger.OnDeposit(context.Background(), f.referred.ID, dec("1000"))
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, models.ReferralStatusCompleted, ref.Status)
	assert.True(t, ref.ReferrerReward.Equal(dec("100")))
	assert.True(t, ref.ReferredReward.Equal(dec("100")))

	assert.True(t, f.balance(t, f.referrer.ID).Equal(dec("100")))
	assert.True(t, f.balance(t, f.referred.ID).Equal(dec("100")))

	again, err := f.trigger.OnDeposit(context.Background(), f.referred.ID, dec("5000"))
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.True(t, f.balance(t, f.referrer.ID).Equal(dec("100")))

	var rewards int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("type = ?", models.TransactionTypeReward).Count(&rewards).Error)
	assert.Equal(t, int64(2), rewards)
}

func TestOnDeposit_BelowMinimumStaysPending(t *testing.T) {
	f := newFixture(t)
	f.settings(t, defaultSettings())
	_, err := f.trigger.Apply(context.Background(), f.referred.ID, "ALICE001")
	require.NoError(t, err)

	ref, err := f.trigger.OnDeposit(context.Background(), f.referred.ID, dec("499.99"))
	require.NoError(t, err)
	assert.Nil(t, ref)

	var stored models.Referral
	require.NoError(t, f.db.Where("referred_id = ?", f.referred.ID).First(&stored).Error)
	assert.Equal(t, models.ReferralStatusPending, stored.Status)

	// a later qualifying deposit still pays
	ref, err = f.trigger.OnDeposit(context.Background(), f.referred.ID, dec("500"))
	require.NoError(t, err)
	require.NotNil(t, ref)
}

func TestOnDeposit_NoActiveSettingsOrNoReferral(t *testing.T) {
	f := newFixture(t)
	_, err := f.trigger.Apply(context.Background(), f.referred.ID, "ALICE001")
	require.NoError(t, err)

	ref, err := f.trigger.OnDeposit(context.Background(), f.referred.ID, dec("1000"))
	require.NoError(t, err)
	assert.Nil(t, ref)

	inactive := defaultSettings()
	inactive.IsActive = false
	f.settings(t, inactive)
	ref, err = f.trigger.OnDeposit(context.Background(), f.referred.ID, dec("1000"))
	require.NoError(t, err)
	assert.Nil(t, ref)

	f.settings(t, defaultSettings())
	ref, err = f.trigger.OnDeposit(context.Background(), f.referrer.ID, dec("1000"))
	require.NoError(t, err)
	assert.Nil(t, ref, "referrer has no referral of their own")
}

func TestOnDeposit_ZeroRewardsSkipEntries(t *testing.T) {
	f := newFixture(t)
	s := defaultSettings()
	s.ReferredRewardValue = decimal.Zero
	f.settings(t, s)
	_, err := f.trigger.Apply(context.Background(), f.referred.ID, "ALICE001")
	require.NoError(t, err)

	_, err = f.trigger.OnDeposit(context.Background(), f.referred.ID, dec("1000"))
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("user_id = ?", f.referred.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestOnDeposit_ConcurrentCallsPayOnce(t *testing.T) {
	f := newFixture(t)
	f.settings(t, defaultSettings())
	_, err := f.trigger.Apply(context.Background(), f.referred.ID, "ALICE001")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.trigger.OnDeposit(context.Background(), f.referred.ID, dec("1000"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, f.balance(t, f.referrer.ID).Equal(dec("100")))
}

func TestSaveSettingsValidation(t *testing.T) {
	f := newFixture(t)
	bad := defaultSettings()
	bad.ReferrerRewardType = "BONUS"
	_, err := f.trigger.SaveSettings(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	neg := defaultSettings()
	neg.MinDepositAmount = dec("-1")
	_, err = f.trigger.SaveSettings(context.Background(), neg)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	first := defaultSettings()
	f.settings(t, first)
	second := defaultSettings()
	second.ReferrerRewardValue = dec("250")
	f.settings(t, second)

	active, err := f.trigger.ActiveSettings(context.Background())
	require.NoError(t, err)
	assert.True(t, active.ReferrerRewardValue.Equal(dec("250")))
}
