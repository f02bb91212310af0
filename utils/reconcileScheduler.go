package utils

import (
	"context"
	"errors"
	"time"

	"rewardsvault/logger"
	"rewardsvault/models"
	"rewardsvault/services/payment"
	"rewardsvault/services/webhook"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const reconcileBatch = 100

type StalePayments interface {
	Stale(ctx context.Context, age time.Duration, limit int) ([]models.Payment, error)
	Gateways() *payment.Registry
}

type PaymentHandler interface {
	Handle(ctx context.Context, provider string, p *webhook.Payload) (*webhook.Outcome, error)
}

// Sweeper drops expired limiter windows.
type Sweeper interface {
	Sweep() int
}

// Reconciler polls gateways for payments whose webhook never arrived and
// feeds the answer through the same path a webhook takes.
type Reconciler struct {
	payments StalePayments
	handler  PaymentHandler
	after    time.Duration
	timeout  time.Duration
}

func NewReconciler(payments StalePayments, handler PaymentHandler, after time.Duration) *Reconciler {
	return &Reconciler{payments: payments, handler: handler, after: after, timeout: 5 * time.Minute}
}

// RunOnce polls every stale payment once and returns how many were settled.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stale, err := r.payments.Stale(ctx, r.after, reconcileBatch)
	if err != nil {
		logger.Log.Error("reconcile: load stale payments", zap.Error(err))
		return 0
	}
	if len(stale) == 0 {
		return 0
	}
	logger.Log.Info("reconcile: polling stale payments", zap.Int("count", len(stale)))

	settled := 0
	for _, p := range stale {
		gw, err := r.payments.Gateways().Get(p.Provider)
		if err != nil {
			logger.Log.Warn("reconcile: no gateway for payment", zap.String("order_id", p.ProviderOrderID), zap.String("provider", p.Provider))
			continue
		}

		status, err := gw.QueryStatus(ctx, p.ProviderOrderID)
		if err != nil {
			logger.Log.Warn("reconcile: status query failed", zap.String("order_id", p.ProviderOrderID), zap.Error(err))
			continue
		}

		out, err := r.handler.Handle(ctx, p.Provider, &webhook.Payload{OrderID: p.ProviderOrderID, Status: status})
		if err != nil {
			if !errors.Is(err, webhook.ErrPaymentNotFound) {
				logger.Log.Error("reconcile: apply status", zap.String("order_id", p.ProviderOrderID), zap.Error(err))
			}
			continue
		}
		if out.Result == webhook.Applied {
			settled++
			logger.Log.Info("reconcile: payment settled",
				zap.String("order_id", p.ProviderOrderID),
				zap.String("status", string(out.Status)))
		}
	}
	return settled
}

// InitializeSchedulers registers the reconciliation job and, when given, the
// hourly limiter sweep. The returned cron is already started.
func InitializeSchedulers(spec string, r *Reconciler, sweeper Sweeper) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc(spec, func() { r.RunOnce(context.Background()) }); err != nil {
		return nil, err
	}

	if sweeper != nil {
		if _, err := c.AddFunc("5 * * * *", func() {
			if n := sweeper.Sweep(); n > 0 {
				logger.Log.Debug("limiter sweep", zap.Int("removed", n))
			}
		}); err != nil {
			return nil, err
		}
	}

	c.Start()
	logger.Log.Info("schedulers started", zap.String("reconcile", spec))
	return c, nil
}
