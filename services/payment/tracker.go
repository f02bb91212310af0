// Package payment opens payment orders with external gateways and keeps
// the PENDING Payment rows that webhooks later settle.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rewardsvault/database"
	"rewardsvault/logger"
	"rewardsvault/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrOrderIDCollision      = errors.New("could not allocate a unique order id")
	ErrGateway               = errors.New("payment gateway error")
	ErrUnknownProvider       = errors.New("unknown payment provider")
	ErrAmountOutOfRange      = errors.New("amount out of range")
	ErrRewardServiceNotFound = errors.New("reward service not found or inactive")
	ErrNotFound              = errors.New("payment not found")
)

// Settings are the deposit rules the tracker enforces.
type Settings struct {
	Currency        string
	MinDeposit      decimal.Decimal
	MaxDeposit      decimal.Decimal
	DefaultProvider string
	OrderIDAttempts int
}

// CreateOrderInput is a user's request to deposit.
type CreateOrderInput struct {
	UserID          uint
	Amount          decimal.Decimal
	Currency        string
	Provider        string
	RewardServiceID *uint
}

// CreateOrderResult is handed back to the client for the redirect.
type CreateOrderResult struct {
	OrderID    string `json:"orderId"`
	PaymentURL string `json:"paymentUrl"`
}

type Tracker struct {
	uow      *database.UnitOfWork
	gateways *Registry
	settings Settings

	newOrderID func(time.Time) string
	now        func() time.Time
}

func NewTracker(uow *database.UnitOfWork, gateways *Registry, settings Settings) *Tracker {
	if settings.OrderIDAttempts < 1 {
		settings.OrderIDAttempts = 5
	}
	return &Tracker{
		uow:        uow,
		gateways:   gateways,
		settings:   settings,
		newOrderID: NewOrderID,
		now:        time.Now,
	}
}

// NewOrderID returns ORD + yyyymmdd + 12 random hex characters.
func NewOrderID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return "ORD" + t.Format("20060102") + strings.ToUpper(suffix)
}

// CreateOrder records a PENDING payment and asks the gateway for a payment URL.
// If the gateway fails the payment stays PENDING and ErrGateway is returned.
func (t *Tracker) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.Amount.LessThan(t.settings.MinDeposit) || in.Amount.GreaterThan(t.settings.MaxDeposit) {
		return nil, fmt.Errorf("%w: deposit must be between %s and %s",
			ErrAmountOutOfRange, t.settings.MinDeposit.StringFixed(2), t.settings.MaxDeposit.StringFixed(2))
	}

	provider := strings.ToLower(in.Provider)
	if provider == "" {
		provider = t.settings.DefaultProvider
	}
	gateway, err := t.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	db := t.uow.DB().WithContext(ctx)
	if in.RewardServiceID != nil {
		if err := t.checkRewardService(db, *in.RewardServiceID, in.Amount); err != nil {
			return nil, err
		}
	}

	currency := in.Currency
	if currency == "" {
		currency = t.settings.Currency
	}

	payment, err := t.insertPending(db, models.Payment{
		UserID:          in.UserID,
		Amount:          in.Amount.Round(2),
		Currency:        currency,
		Status:          models.PaymentStatusPending,
		Provider:        gateway.Name(),
		RewardServiceID: in.RewardServiceID,
	})
	if err != nil {
		return nil, err
	}

	resp, err := gateway.CreateOrder(ctx, OrderRequest{
		OrderID:    payment.ProviderOrderID,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		CustomerID: payment.UserID,
	})
	if err != nil {
		logger.Log.Error("gateway create order failed; payment left pending",
			zap.String("order_id", payment.ProviderOrderID),
			zap.String("provider", payment.Provider),
			zap.Error(err))
		if !errors.Is(err, ErrGateway) {
			err = fmt.Errorf("%w: %v", ErrGateway, err)
		}
		return nil, err
	}

	updates := map[string]interface{}{"payment_url": resp.PaymentURL}
	if resp.Reference != "" {
		updates["provider_transaction_id"] = resp.Reference
	}
	if err := db.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("store payment url: %w", err)
	}

	logger.Log.Info("payment order created",
		zap.String("order_id", payment.ProviderOrderID),
		zap.String("provider", payment.Provider),
		zap.Uint("user_id", payment.UserID),
		zap.String("amount", payment.Amount.StringFixed(2)))

	return &CreateOrderResult{OrderID: payment.ProviderOrderID, PaymentURL: resp.PaymentURL}, nil
}

func (t *Tracker) insertPending(db *gorm.DB, p models.Payment) (*models.Payment, error) {
	for attempt := 0; attempt < t.settings.OrderIDAttempts; attempt++ {
		row := p
		row.ProviderOrderID = t.newOrderID(t.now())

		err := db.Create(&row).Error
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("insert payment: %w", err)
		}
		logger.Log.Warn("order id collision, regenerating",
			zap.String("order_id", row.ProviderOrderID), zap.Int("attempt", attempt+1))
	}
	return nil, ErrOrderIDCollision
}

func (t *Tracker) checkRewardService(db *gorm.DB, id uint, amount decimal.Decimal) error {
	var svc models.RewardService
	err := db.Where("id = ? AND is_active = ?", id, true).First(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRewardServiceNotFound
	}
	if err != nil {
		return err
	}
	if amount.LessThan(svc.MinAmount) || (svc.MaxAmount.IsPositive() && amount.GreaterThan(svc.MaxAmount)) {
		return fmt.Errorf("%w: %s accepts deposits between %s and %s",
			ErrAmountOutOfRange, svc.Name, svc.MinAmount.StringFixed(2), svc.MaxAmount.StringFixed(2))
	}
	return nil
}

// Get returns one of the user's payments by order id.
func (t *Tracker) Get(ctx context.Context, userID uint, orderID string) (*models.Payment, error) {
	var p models.Payment
	err := t.uow.DB().WithContext(ctx).
		Where("provider_order_id = ? AND user_id = ?", orderID, userID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByUser returns the user's payments newest first.
func (t *Tracker) ListByUser(ctx context.Context, userID uint, page, limit int) ([]models.Payment, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	db := t.uow.DB().WithContext(ctx)
	var total int64
	if err := db.Model(&models.Payment{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&payments).Error
	return payments, total, err
}

// Stale returns PENDING payments created before now minus age, oldest first.
func (t *Tracker) Stale(ctx context.Context, age time.Duration, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := t.uow.DB().WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, t.now().Add(-age)).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// Gateways exposes the registry to the reconciliation job.
func (t *Tracker) Gateways() *Registry {
	return t.gateways
}
