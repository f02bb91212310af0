package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"rewardsvault/config"
	"rewardsvault/database"
	"rewardsvault/models"
	"rewardsvault/services/events"
	"rewardsvault/services/ledger"
	"rewardsvault/services/payment"
	"rewardsvault/services/reward"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingListener struct {
	mu    sync.Mutex
	calls []decimal.Decimal
	err   error
}

func (l *recordingListener) OnDeposit(_ context.Context, _ uint, amount decimal.Decimal) (*models.Referral, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, amount)
	return nil, l.err
}

type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]string
	err      error
	queried  int
}

func (g *fakeGateway) Name() string { return "payhub" }

func (g *fakeGateway) CreateOrder(context.Context, payment.OrderRequest) (*payment.OrderResponse, error) {
	return &payment.OrderResponse{}, nil
}

func (g *fakeGateway) QueryStatus(_ context.Context, orderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queried++
	if g.err != nil {
		return "", g.err
	}
	if s, ok := g.statuses[orderID]; ok {
		return s, nil
	}
	return "pending", nil
}

func (g *fakeGateway) set(orderID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[orderID] = status
}

const testSecret = "whsec-test"

type fixture struct {
	rec       *Reconciler
	gateway   *fakeGateway
	ledger    *ledger.Service
	db        *gorm.DB
	listener  *recordingListener
	publisher *events.MemoryPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:webhook_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	uow := database.NewUnitOfWork(db, "")
	l := ledger.NewService(uow, "INR")
	f := &fixture{
		ledger:    l,
		db:        db,
		listener:  &recordingListener{},
		publisher: &events.MemoryPublisher{},
	}
	f.gateway = &fakeGateway{statuses: map[string]string{}}
	registry := payment.NewRegistry()
	registry.Register(f.gateway)
	auth := NewAuthenticator(&config.ProviderFile{Providers: map[string]config.ProviderConfig{
		"signedpay": {WebhookSecret: testSecret},
	}}, registry)
	f.rec = NewReconciler(uow, l, reward.NewPayer(l), NewStatusMapper(nil), auth, f.listener, f.publisher)
	return f
}

func (f *fixture) payment(t *testing.T, orderID, amount string, rewardServiceID *uint) *models.Payment {
	t.Helper()
	return f.paymentWith(t, "payhub", orderID, amount, rewardServiceID)
}

func (f *fixture) paymentWith(t *testing.T, provider, orderID, amount string, rewardServiceID *uint) *models.Payment {
	t.Helper()
	p := models.Payment{
		UserID: 1, Amount: dec(amount), Currency: "INR", Status: models.PaymentStatusPending,
		Provider: provider, ProviderOrderID: orderID, RewardServiceID: rewardServiceID,
	}
	require.NoError(t, f.db.Create(&p).Error)
	return &p
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	w, err := f.ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	return w.Balance
}

func (f *fixture) deliver(t *testing.T, orderID, status string) *Outcome {
	t.Helper()
	out, err := f.rec.Handle(context.Background(), "payhub", &Payload{OrderID: orderID, Status: status, TransactionID: "T-" + orderID})
	require.NoError(t, err)
	return out
}

func TestHandle_DuplicateSuccessCreditsOnce(t *testing.T) {
	f := newFixture(t)
	f.payment(t, "ORD1", "500", nil)

	first := f.deliver(t, "ORD1", "success")
	assert.Equal(t, Applied, first.Result)
	assert.Equal(t, models.PaymentStatusCompleted, first.Status)

	second := f.deliver(t, "ORD1", "success")
	assert.Equal(t, Duplicate, second.Result)
	assert.Equal(t, models.PaymentStatusCompleted, second.Status)

	assert.True(t, f.balance(t).Equal(dec("500")))

	var stored models.Payment
	require.NoError(t, f.db.Where("provider_order_id = ?", "ORD1").First(&stored).Error)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	assert.True(t, stored.WebhookReceived)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, "T-ORD1", stored.ProviderTransactionID)
	assert.Equal(t, "T-ORD1", stored.Metadata["transaction_id"])

	var deposits int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("type = ?", models.TransactionTypeDeposit).Count(&deposits).Error)
	assert.Equal(t, int64(1), deposits)

	assert.Len(t, f.listener.calls, 1)
	assert.Len(t, f.publisher.OfType(events.PaymentCompleted), 1)
}

func TestHandle_ConcurrentDeliveriesCreditOnce(t *testing.T) {
	f := newFixture(t)
	f.payment(t, "ORD1", "500", nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Result
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.rec.Handle(context.Background(), "payhub", &Payload{OrderID: "ORD1", Status: "200"})
			if assert.NoError(t, err) {
				mu.Lock()
				results = append(results, out.Result)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	applied := 0
	for _, r := range results {
		if r == Applied {
			applied++
		} else {
			assert.Equal(t, Duplicate, r)
		}
	}
	assert.Equal(t, 1, applied)
	assert.True(t, f.balance(t).Equal(dec("500")))

	audit, err := f.ledger.Audit(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, audit.Balanced)
}

func TestHandle_RewardServicePaymentPaysDepositAndRewardOnce(t *testing.T) {
	f := newFixture(t)
	svc := models.RewardService{Name: "Ten percent", Formula: "amount * 0.1", IsActive: true}
	require.NoError(t, f.db.Create(&svc).Error)
	f.payment(t, "ORD1", "100", &svc.ID)

	out := f.deliver(t, "ORD1", "completed")
	assert.Equal(t, Applied, out.Result)
	assert.True(t, f.balance(t).Equal(dec("110")))

	var entries []models.Transaction
	require.NoError(t, f.db.Order("id").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, models.TransactionTypeDeposit, entries[0].Type)
	assert.True(t, entries[0].Amount.Equal(dec("100")))
	assert.Equal(t, models.TransactionTypeReward, entries[1].Type)
	assert.True(t, entries[1].Amount.Equal(dec("10")))

	var stored models.Payment
	require.NoError(t, f.db.Where("provider_order_id = ?", "ORD1").First(&stored).Error)
	assert.True(t, stored.RewardsProcessed)

	replay := f.deliver(t, "ORD1", "completed")
	assert.Equal(t, Duplicate, replay.Result)
	assert.True(t, f.balance(t).Equal(dec("110")))

	// reward deposits do not trigger referral payouts
	assert.Empty(t, f.listener.calls)
	completed := f.publisher.OfType(events.PaymentCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "10.00", completed[0].Data["reward"])
}

func TestHandle_FailureWritesAuditEntryOnly(t *testing.T) {
	f := newFixture(t)
	p := f.payment(t, "ORD1", "300", nil)

	out := f.deliver(t, "ORD1", "failed")
	assert.Equal(t, Applied, out.Result)
	assert.Equal(t, models.PaymentStatusFailed, out.Status)
	assert.True(t, f.balance(t).IsZero())

	var entry models.Transaction
	require.NoError(t, f.db.Where("reference_id = ?", p.ID).First(&entry).Error)
	assert.Equal(t, models.TransactionStatusFailed, entry.Status)
	assert.Equal(t, models.TransactionTypeDeposit, entry.Type)
	assert.False(t, entry.BalanceAfter.Valid)

	// a late success for a failed payment changes nothing
	late := f.deliver(t, "ORD1", "success")
	assert.Equal(t, Duplicate, late.Result)

	// neither does a late non-terminal status
	late = f.deliver(t, "ORD1", "processing")
	assert.Equal(t, Duplicate, late.Result)
	assert.Equal(t, models.PaymentStatusFailed, late.Status)
	assert.True(t, f.balance(t).IsZero())

	assert.Empty(t, f.listener.calls)
	assert.Len(t, f.publisher.OfType(events.PaymentFailed), 1)

	audit, err := f.ledger.Audit(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, audit.Balanced)
}

func TestHandle_CancelledStatus(t *testing.T) {
	f := newFixture(t)
	f.payment(t, "ORD1", "300", nil)

	out := f.deliver(t, "ORD1", "cancel")
	assert.Equal(t, models.PaymentStatusCancelled, out.Status)

	var stored models.Payment
	require.NoError(t, f.db.Where("provider_order_id = ?", "ORD1").First(&stored).Error)
	assert.Equal(t, models.PaymentStatusCancelled, stored.Status)
	assert.Nil(t, stored.CompletedAt)
}

func TestHandle_UnknownStatusLeavesPaymentPending(t *testing.T) {
	f := newFixture(t)
	f.payment(t, "ORD1", "300", nil)

	out := f.deliver(t, "ORD1", "processing")
	assert.Equal(t, StillPending, out.Result)

	var stored models.Payment
	require.NoError(t, f.db.Where("provider_order_id = ?", "ORD1").First(&stored).Error)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.False(t, stored.WebhookReceived)

	// a later terminal status still applies
	assert.Equal(t, Applied, f.deliver(t, "ORD1", "success").Result)
}

func TestHandle_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	out, err := f.rec.Handle(context.Background(), "payhub", &Payload{OrderID: "NOPE", Status: "success"})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	require.NotNil(t, out)
	assert.Equal(t, NotFound, out.Result)

	_, err = f.rec.Handle(context.Background(), "payhub", &Payload{Status: "success"})
	assert.ErrorIs(t, err, ErrMissingOrderID)
}

func TestHandle_ReferralErrorsAreSwallowed(t *testing.T) {
	f := newFixture(t)
	f.listener.err = errors.New("referral store down")
	f.payment(t, "ORD1", "500", nil)

	out := f.deliver(t, "ORD1", "success")
	assert.Equal(t, Applied, out.Result)
	assert.True(t, f.balance(t).Equal(dec("500")))
}

func TestHandle_StoredAmountIsAuthoritative(t *testing.T) {
	f := newFixture(t)
	f.payment(t, "ORD1", "500", nil)

	forged := dec("50000")
	out, err := f.rec.Handle(context.Background(), "payhub", &Payload{OrderID: "ORD1", Status: "success", Amount: &forged})
	require.NoError(t, err)
	assert.Equal(t, Applied, out.Result)
	assert.True(t, f.balance(t).Equal(dec("500")))
}

func TestHandle_DatabaseFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.payment(t, "ORD1", "500", nil)
	require.NoError(t, f.db.Migrator().DropTable(&models.Transaction{}))

	_, err := f.rec.Handle(context.Background(), "payhub", &Payload{OrderID: "ORD1", Status: "success"})
	require.Error(t, err)

	var stored models.Payment
	require.NoError(t, f.db.Where("provider_order_id = ?", "ORD1").First(&stored).Error)
	assert.Equal(t, models.PaymentStatusPending, stored.Status, "payment transition rolled back")
}
