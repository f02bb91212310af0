// Package withdrawal holds user funds in escrow between a withdrawal request
// and the admin decision on it.
//
// The wallet is debited when the request is made. Every debit ends in exactly
// one resolution: kept (approve, complete) or credited back (reject, fail).
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"rewardsvault/database"
	"rewardsvault/logger"
	"rewardsvault/metrics"
	"rewardsvault/models"
	"rewardsvault/services/events"
	"rewardsvault/services/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrNotPending         = errors.New("withdrawal request is not in a state that allows this action")
	ErrMethodNotFound     = errors.New("withdrawal method not found")
	ErrMethodInactive     = errors.New("withdrawal method is inactive")
	ErrMethodInUse        = errors.New("withdrawal method is referenced by a withdrawal request")
	ErrInvalidMethod      = errors.New("invalid withdrawal method")
	ErrAmountOutOfRange   = errors.New("amount out of range")
	ErrRateLimited        = errors.New("too many withdrawal attempts, try again later")
	ErrInvalidAction      = errors.New("invalid withdrawal action")
	ErrNoLedgerEntry      = errors.New("withdrawal request has no ledger entry")
)

// Action is an admin decision on a request.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionProcess  Action = "process"
	ActionComplete Action = "complete"
	ActionFail     Action = "fail"
)

type transitionRule struct {
	from []models.WithdrawalStatus
	to   models.WithdrawalStatus
}

var rules = map[Action]transitionRule{
	ActionApprove: {
		from: []models.WithdrawalStatus{models.WithdrawalStatusPending, models.WithdrawalStatusPendingVerification},
		to:   models.WithdrawalStatusApproved,
	},
	ActionReject: {
		from: []models.WithdrawalStatus{models.WithdrawalStatusPending, models.WithdrawalStatusPendingVerification},
		to:   models.WithdrawalStatusRejected,
	},
	ActionProcess: {
		from: []models.WithdrawalStatus{models.WithdrawalStatusApproved},
		to:   models.WithdrawalStatusProcessing,
	},
	ActionComplete: {
		from: []models.WithdrawalStatus{models.WithdrawalStatusApproved, models.WithdrawalStatusProcessing},
		to:   models.WithdrawalStatusCompleted,
	},
	ActionFail: {
		from: []models.WithdrawalStatus{models.WithdrawalStatusApproved, models.WithdrawalStatusProcessing},
		to:   models.WithdrawalStatusFailed,
	},
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := rules[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// Notifier tells the user about a decision. Failures are logged only.
type Notifier interface {
	WithdrawalDecided(ctx context.Context, req *models.WithdrawalRequest, action Action) error
}

type Settings struct {
	MinWithdrawal decimal.Decimal
	MaxWithdrawal decimal.Decimal
}

type Manager struct {
	uow       *database.UnitOfWork
	ledger    *ledger.Service
	limiter   Limiter
	notifier  Notifier
	publisher events.Publisher
	settings  Settings
	now       func() time.Time
}

func NewManager(uow *database.UnitOfWork, l *ledger.Service, limiter Limiter, notifier Notifier, publisher events.Publisher, settings Settings) *Manager {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Manager{
		uow:       uow,
		ledger:    l,
		limiter:   limiter,
		notifier:  notifier,
		publisher: publisher,
		settings:  settings,
		now:       time.Now,
	}
}

// Request debits amount into escrow and records a PENDING request with its
// PENDING WITHDRAWAL ledger entry, all in one transaction.
func (m *Manager) Request(ctx context.Context, userID, methodID uint, amount decimal.Decimal) (*models.WithdrawalRequest, error) {
	if m.limiter != nil {
		allowed, err := m.limiter.Allow(ctx, strconv.FormatUint(uint64(userID), 10))
		if err != nil {
			logger.Log.Warn("withdrawal limiter unavailable; allowing", zap.Uint("user_id", userID), zap.Error(err))
		} else if !allowed {
			metrics.WithdrawalRequests.WithLabelValues("rate_limited").Inc()
			return nil, ErrRateLimited
		}
	}

	if amount.LessThan(m.settings.MinWithdrawal) || amount.GreaterThan(m.settings.MaxWithdrawal) {
		metrics.WithdrawalRequests.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: withdrawal must be between %s and %s",
			ErrAmountOutOfRange, m.settings.MinWithdrawal.StringFixed(2), m.settings.MaxWithdrawal.StringFixed(2))
	}
	amount = amount.Round(2)

	var (
		req    models.WithdrawalRequest
		method *models.WithdrawalMethod
	)
	err := m.uow.Do(ctx, func(tx *gorm.DB) error {
		var err error
		if method, err = m.activeMethod(tx, userID, methodID); err != nil {
			return err
		}
		wallet, err := m.ledger.Store.GetOrCreate(tx, userID)
		if err != nil {
			return err
		}
		req = models.WithdrawalRequest{
			UserID:             userID,
			WithdrawalMethodID: method.ID,
			Amount:             amount,
			Currency:           wallet.Currency,
			Status:             models.WithdrawalStatusPending,
		}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}

		ref := req.ID
		entry, err := m.ledger.Apply(tx, ledger.Movement{
			UserID:        userID,
			Amount:        amount,
			Type:          models.TransactionTypeWithdrawal,
			Status:        models.TransactionStatusPending,
			Description:   fmt.Sprintf("Withdrawal to %s", method.Type),
			ReferenceType: models.ReferenceTypeWithdrawal,
			ReferenceID:   &ref,
			Metadata:      datatypes.JSONMap{"withdrawal_method_id": method.ID},
		})
		if err != nil {
			return err
		}

		req.TransactionID = &entry.ID
		return tx.Model(&req).Update("transaction_id", entry.ID).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			metrics.WithdrawalRequests.WithLabelValues("insufficient_funds").Inc()
		case errors.Is(err, ErrMethodNotFound), errors.Is(err, ErrMethodInactive):
			metrics.WithdrawalRequests.WithLabelValues("rejected").Inc()
		default:
			metrics.WithdrawalRequests.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.WithdrawalRequests.WithLabelValues("created").Inc()
	logger.Log.Info("withdrawal requested",
		zap.Uint("request_id", req.ID),
		zap.Uint("user_id", userID),
		zap.String("amount", amount.StringFixed(2)))
	events.PublishQuietly(ctx, m.publisher, events.NewEvent(events.WithdrawalRequested, strconv.FormatUint(uint64(req.ID), 10), map[string]interface{}{
		"request_id": req.ID,
		"user_id":    userID,
		"amount":     amount.StringFixed(2),
		"method":     string(method.Type),
	}))
	return &req, nil
}

// Decision is an admin action on one request.
type Decision struct {
	RequestID uint
	Action    Action
	Notes     string
	AdminID   uint
}

// Decide applies an admin action. The request row is locked and moved with a
// conditional update, so concurrent decisions resolve to exactly one winner.
func (m *Manager) Decide(ctx context.Context, d Decision) (*models.WithdrawalRequest, error) {
	rule, ok := rules[d.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, d.Action)
	}

	var req models.WithdrawalRequest
	err := m.uow.Do(ctx, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, d.RequestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWithdrawalNotFound
		}
		if err != nil {
			return err
		}
		if !statusIn(req.Status, rule.from) {
			return fmt.Errorf("%w: request %d is %s", ErrNotPending, req.ID, req.Status)
		}

		processedAt := m.now()
		updates := map[string]interface{}{
			"status":       rule.to,
			"processed_at": processedAt,
			"processed_by": d.AdminID,
		}
		if d.Notes != "" {
			updates["admin_notes"] = d.Notes
		}
		if d.Action == ActionReject {
			updates["rejection_reason"] = d.Notes
		}

		res := tx.Model(&models.WithdrawalRequest{}).
			Where("id = ? AND status IN ?", req.ID, rule.from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: request %d changed concurrently", ErrNotPending, req.ID)
		}

		if err := m.settle(tx, &req, d.Action); err != nil {
			return err
		}

		req.Status = rule.to
		req.ProcessedAt = &processedAt
		req.ProcessedBy = &d.AdminID
		if d.Notes != "" {
			notes := d.Notes
			req.AdminNotes = &notes
		}
		if d.Action == ActionReject {
			reason := d.Notes
			req.RejectionReason = &reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalDecisions.WithLabelValues(string(d.Action)).Inc()
	logger.Log.Info("withdrawal decided",
		zap.Uint("request_id", req.ID),
		zap.String("action", string(d.Action)),
		zap.String("status", string(req.Status)),
		zap.Uint("admin_id", d.AdminID))

	m.afterDecision(ctx, &req, d.Action)
	return &req, nil
}

// settle does the money side of a decision inside the decision's transaction.
func (m *Manager) settle(tx *gorm.DB, req *models.WithdrawalRequest, action Action) error {
	switch action {
	case ActionApprove:
		if req.TransactionID == nil {
			return ErrNoLedgerEntry
		}
		return m.ledger.Ledger.Transition(tx, *req.TransactionID, models.TransactionStatusCompleted)

	case ActionReject:
		if req.TransactionID == nil {
			return ErrNoLedgerEntry
		}
		_, err := m.ledger.Reverse(tx, *req.TransactionID)
		return err

	case ActionFail:
		// the original entry is already COMPLETED, so the payback gets its own entry
		ref := req.ID
		_, err := m.ledger.Apply(tx, ledger.Movement{
			UserID:        req.UserID,
			Amount:        req.Amount,
			Type:          models.TransactionTypeRefund,
			Description:   "Withdrawal payout failed",
			ReferenceType: models.ReferenceTypeWithdrawal,
			ReferenceID:   &ref,
		})
		return err
	}
	return nil
}

func (m *Manager) afterDecision(ctx context.Context, req *models.WithdrawalRequest, action Action) {
	events.PublishQuietly(ctx, m.publisher, events.NewEvent(events.WithdrawalDecided, strconv.FormatUint(uint64(req.ID), 10), map[string]interface{}{
		"request_id": req.ID,
		"user_id":    req.UserID,
		"amount":     req.Amount.StringFixed(2),
		"action":     string(action),
		"status":     string(req.Status),
	}))

	if m.notifier == nil {
		return
	}
	if err := m.notifier.WithdrawalDecided(ctx, req, action); err != nil {
		logger.Log.Warn("withdrawal notification failed", zap.Uint("request_id", req.ID), zap.Error(err))
	}
}

func statusIn(s models.WithdrawalStatus, set []models.WithdrawalStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Get returns one of the user's requests.
func (m *Manager) Get(ctx context.Context, userID, requestID uint) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := m.uow.DB().WithContext(ctx).
		Preload("WithdrawalMethod").
		Where("id = ? AND user_id = ?", requestID, userID).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns the user's own requests newest first.
func (m *Manager) List(ctx context.Context, userID uint) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	err := m.uow.DB().WithContext(ctx).
		Preload("WithdrawalMethod").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// ListAll is the admin view, optionally filtered by status.
func (m *Manager) ListAll(ctx context.Context, status models.WithdrawalStatus, page, limit int) ([]models.WithdrawalRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	base := func() *gorm.DB {
		q := m.uow.DB().WithContext(ctx).Model(&models.WithdrawalRequest{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.WithdrawalRequest
	err := base().
		Preload("WithdrawalMethod").
		Order("created_at ASC, id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&out).Error
	return out, total, err
}
