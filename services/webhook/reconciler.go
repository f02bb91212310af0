// Package webhook settles PENDING payments from provider notifications.
//
// A notification is applied at most once: the PENDING -> terminal transition
// is a conditional update, and a delivery that loses that race (or arrives
// after the payment settled) is reported as a Duplicate with no side effects.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rewardsvault/database"
	"rewardsvault/logger"
	"rewardsvault/metrics"
	"rewardsvault/models"
	"rewardsvault/services/events"
	"rewardsvault/services/ledger"
	"rewardsvault/services/reward"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Result says what a notification did.
type Result string

const (
	Applied      Result = "applied"
	Duplicate    Result = "duplicate"
	StillPending Result = "still_pending"
	NotFound     Result = "not_found"
	Rejected     Result = "rejected"
)

// Outcome is the result of Handle plus the payment it touched.
type Outcome struct {
	Result  Result
	Payment *models.Payment
	Status  models.PaymentStatus
}

// DepositListener is told about completed plain deposits after commit.
type DepositListener interface {
	OnDeposit(ctx context.Context, userID uint, amount decimal.Decimal) (*models.Referral, error)
}

// Delivery is one notification as it arrived over HTTP.
type Delivery struct {
	Provider    string
	ContentType string
	Body        []byte
	Signature   string
}

// source says where a status came from and whether it must be confirmed.
type source struct {
	provider string
	confirm  bool
}

type Reconciler struct {
	uow       *database.UnitOfWork
	ledger    *ledger.Service
	payer     *reward.Payer
	mapper    *StatusMapper
	auth      *Authenticator
	referrals DepositListener
	publisher events.Publisher
	now       func() time.Time
}

// NewReconciler wires the settlement path. auth may be nil, in which case
// Receive refuses every delivery and only Handle is usable.
func NewReconciler(
	uow *database.UnitOfWork,
	l *ledger.Service,
	payer *reward.Payer,
	mapper *StatusMapper,
	auth *Authenticator,
	referrals DepositListener,
	publisher events.Publisher,
) *Reconciler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Reconciler{
		uow:       uow,
		ledger:    l,
		payer:     payer,
		mapper:    mapper,
		auth:      auth,
		referrals: referrals,
		publisher: publisher,
		now:       time.Now,
	}
}

// Knows reports whether provider has a secret or a gateway configured.
func (r *Reconciler) Knows(provider string) bool {
	return r.auth.Knows(provider)
}

// Receive authenticates and applies a notification from the network. A
// signed delivery is applied as sent. An unsigned one can only move the
// payment to the status the provider's gateway reports for the order.
func (r *Reconciler) Receive(ctx context.Context, d Delivery) (*Outcome, error) {
	provider := strings.ToLower(strings.TrimSpace(d.Provider))
	out, err := r.receive(ctx, provider, d)
	r.observe(provider, out)
	return out, err
}

func (r *Reconciler) receive(ctx context.Context, provider string, d Delivery) (*Outcome, error) {
	if !r.auth.Knows(provider) {
		return nil, ErrUnknownProvider
	}
	signed, err := r.auth.Verify(provider, d.Body, d.Signature)
	if err != nil {
		logger.Log.Warn("webhook signature rejected", zap.String("provider", provider))
		return &Outcome{Result: Rejected}, err
	}

	p, err := ParsePayload(d.ContentType, d.Body)
	if err != nil {
		return nil, err
	}
	return r.handle(ctx, p, source{provider: provider, confirm: !signed})
}

// Handle applies a status the caller already trusts, such as one just read
// from the gateway. Database failures are returned so the caller retries;
// everything after commit is best-effort.
func (r *Reconciler) Handle(ctx context.Context, provider string, p *Payload) (*Outcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	out, err := r.handle(ctx, p, source{provider: provider})
	r.observe(provider, out)
	return out, err
}

// observe counts the outcome. The provider label is taken from the stored
// payment or a configured provider, never from an arbitrary URL segment.
func (r *Reconciler) observe(provider string, out *Outcome) {
	label := "unknown"
	switch {
	case out != nil && out.Payment != nil:
		label = out.Payment.Provider
	case r.auth.Knows(provider):
		label = provider
	}
	result := "error"
	if out != nil {
		result = string(out.Result)
	}
	metrics.WebhookEvents.WithLabelValues(label, result).Inc()
}

func (r *Reconciler) handle(ctx context.Context, p *Payload, src source) (*Outcome, error) {
	if p == nil || p.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	log := logger.Log.With(zap.String("provider", src.provider), zap.String("order_id", p.OrderID))

	var payment models.Payment
	err := r.uow.DB().WithContext(ctx).Where("provider_order_id = ?", p.OrderID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("webhook for unknown order")
		return &Outcome{Result: NotFound}, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	if src.provider != "" && !strings.EqualFold(src.provider, payment.Provider) {
		log.Warn("webhook provider does not match payment", zap.String("payment_provider", payment.Provider))
		return &Outcome{Result: Rejected, Payment: &payment, Status: payment.Status}, ErrProviderMismatch
	}
	if payment.Status.IsTerminal() {
		log.Info("duplicate webhook", zap.String("current", string(payment.Status)))
		return &Outcome{Result: Duplicate, Payment: &payment, Status: payment.Status}, nil
	}

	target := r.mapper.Map(payment.Provider, p.Status)
	if target == models.PaymentStatusPending {
		log.Info("webhook status not terminal", zap.String("status", p.Status))
		return &Outcome{Result: StillPending, Payment: &payment, Status: payment.Status}, nil
	}

	gatewayStatus := ""
	if src.confirm {
		gatewayStatus, err = r.auth.gatewayStatus(ctx, payment.Provider, payment.ProviderOrderID)
		if err != nil {
			log.Warn("gateway status check failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrUnconfirmed, err)
		}
		confirmed := r.mapper.Map(payment.Provider, gatewayStatus)
		if confirmed != target {
			log.Warn("webhook status not confirmed by gateway",
				zap.String("webhook_status", p.Status),
				zap.String("gateway_status", gatewayStatus))
		}
		target = confirmed
		if target == models.PaymentStatusPending {
			return &Outcome{Result: StillPending, Payment: &payment, Status: payment.Status}, nil
		}
	}

	if p.Amount != nil && !p.Amount.Equal(payment.Amount) {
		log.Warn("webhook amount differs from order; stored amount is used",
			zap.String("webhook_amount", p.Amount.String()),
			zap.String("order_amount", payment.Amount.StringFixed(2)))
	}

	var (
		applied bool
		payout  *reward.Payout
	)
	err = r.uow.Do(ctx, func(tx *gorm.DB) error {
		applied, payout = false, nil

		ok, err := r.transition(tx, &payment, target, p, gatewayStatus)
		if err != nil || !ok {
			return err
		}
		applied = true

		switch target {
		case models.PaymentStatusCompleted:
			payout, err = r.credit(tx, &payment)
			return err
		default:
			return r.recordFailure(tx, &payment, target)
		}
	})
	if err != nil {
		log.Error("webhook transaction failed", zap.Error(err))
		return nil, err
	}
	if !applied {
		log.Info("duplicate webhook lost the race")
		return &Outcome{Result: Duplicate, Payment: &payment, Status: payment.Status}, nil
	}

	payment.Status = target
	r.afterCommit(ctx, &payment, payout)
	log.Info("payment settled", zap.String("status", string(target)))
	return &Outcome{Result: Applied, Payment: &payment, Status: target}, nil
}

// transition flips the payment out of PENDING. false means another
// delivery already did it.
func (r *Reconciler) transition(tx *gorm.DB, payment *models.Payment, target models.PaymentStatus, p *Payload, gatewayStatus string) (bool, error) {
	meta := datatypes.JSONMap{}
	for k, v := range payment.Metadata {
		meta[k] = v
	}
	if p.TransactionID != "" {
		meta["transaction_id"] = p.TransactionID
	}
	if p.PaymentID != "" {
		meta["payment_id"] = p.PaymentID
	}
	meta["webhook_status"] = p.Status
	if gatewayStatus != "" {
		meta["gateway_status"] = gatewayStatus
	}

	now := r.now()
	updates := map[string]interface{}{
		"status":           target,
		"webhook_received": true,
		"metadata":         meta,
	}
	if p.TransactionID != "" {
		updates["provider_transaction_id"] = p.TransactionID
	}
	if target == models.PaymentStatusCompleted {
		updates["completed_at"] = now
		payment.CompletedAt = &now
	}

	res := tx.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("transition payment %d: %w", payment.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	payment.WebhookReceived = true
	payment.Metadata = meta
	return true, nil
}

func (r *Reconciler) credit(tx *gorm.DB, payment *models.Payment) (*reward.Payout, error) {
	if payment.RewardServiceID != nil {
		payout, err := r.payer.Pay(tx, payment)
		if errors.Is(err, reward.ErrAlreadyProcessed) {
			logger.Log.Warn("rewards already processed; skipping credit",
				zap.String("order_id", payment.ProviderOrderID))
			return nil, nil
		}
		return payout, err
	}

	ref := payment.ID
	_, err := r.ledger.Apply(tx, ledger.Movement{
		UserID:        payment.UserID,
		Amount:        payment.Amount,
		Type:          models.TransactionTypeDeposit,
		Description:   "Deposit via " + payment.Provider,
		ReferenceType: models.ReferenceTypePayment,
		ReferenceID:   &ref,
		Metadata:      datatypes.JSONMap{"order_id": payment.ProviderOrderID, "provider": payment.Provider},
	})
	if err != nil {
		return nil, err
	}
	return &reward.Payout{Deposit: payment.Amount, Reward: decimal.Zero}, nil
}

func (r *Reconciler) recordFailure(tx *gorm.DB, payment *models.Payment, target models.PaymentStatus) error {
	ref := payment.ID
	_, err := r.ledger.Record(tx, ledger.Movement{
		UserID:        payment.UserID,
		Amount:        payment.Amount,
		Type:          models.TransactionTypeDeposit,
		Status:        models.TransactionStatusFailed,
		Description:   fmt.Sprintf("Deposit %s via %s", target, payment.Provider),
		ReferenceType: models.ReferenceTypePayment,
		ReferenceID:   &ref,
		Metadata:      datatypes.JSONMap{"order_id": payment.ProviderOrderID, "payment_status": string(target)},
	})
	return err
}

func (r *Reconciler) afterCommit(ctx context.Context, payment *models.Payment, payout *reward.Payout) {
	data := map[string]interface{}{
		"payment_id": payment.ID,
		"user_id":    payment.UserID,
		"amount":     payment.Amount.StringFixed(2),
		"provider":   payment.Provider,
		"status":     string(payment.Status),
	}

	if payment.Status != models.PaymentStatusCompleted {
		events.PublishQuietly(ctx, r.publisher, events.NewEvent(events.PaymentFailed, payment.ProviderOrderID, data))
		return
	}

	if payout != nil {
		data["reward"] = payout.Reward.StringFixed(2)
	}
	events.PublishQuietly(ctx, r.publisher, events.NewEvent(events.PaymentCompleted, payment.ProviderOrderID, data))

	if payment.RewardServiceID != nil || r.referrals == nil {
		return
	}
	if _, err := r.referrals.OnDeposit(ctx, payment.UserID, payment.Amount); err != nil {
		logger.Log.Error("referral payout failed",
			zap.String("order_id", payment.ProviderOrderID),
			zap.Uint("user_id", payment.UserID),
			zap.Error(err))
	}
}
