package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"rewardsvault/database"
	"rewardsvault/models"
	"rewardsvault/services/events"
	"rewardsvault/services/ledger"
	"rewardsvault/services/payment"
	"rewardsvault/services/reward"
	"rewardsvault/services/webhook"
	"rewardsvault/services/withdrawal"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:utils_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	return db
}

type fakeSender struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (s *fakeSender) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, m)
	return &rest.Response{StatusCode: s.status, Body: "body"}, nil
}

func TestEmailNotifier_RejectMail(t *testing.T) {
	db := openDB(t)
	user := models.User{Name: "Asha", Email: "asha@example.com", Role: models.RoleUser}
	require.NoError(t, db.Create(&user).Error)

	sender := &fakeSender{status: 202}
	n := NewEmailNotifierWithSender(db, sender, "ops@example.com")

	reason := "<b>bad</b> account"
	req := &models.WithdrawalRequest{ID: 3, UserID: user.ID, Amount: decimal.RequireFromString("400"), Currency: "INR", RejectionReason: &reason}
	require.NoError(t, n.WithdrawalDecided(context.Background(), req, withdrawal.ActionReject))

	require.Len(t, sender.sent, 1)
	m := sender.sent[0]
	assert.Equal(t, "Withdrawal Rejected", m.Subject)
	assert.Equal(t, "ops@example.com", m.From.Address)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "asha@example.com", m.Personalizations[0].To[0].Address)

	var htmlBody string
	for _, c := range m.Content {
		if c.Type == "text/html" {
			htmlBody = c.Value
		}
	}
	assert.Contains(t, htmlBody, "INR 400.00")
	assert.Contains(t, htmlBody, "&lt;b&gt;bad&lt;/b&gt; account")
}

func TestEmailNotifier_Errors(t *testing.T) {
	db := openDB(t)
	user := models.User{Name: "Asha", Email: "asha@example.com", Role: models.RoleUser}
	require.NoError(t, db.Create(&user).Error)
	req := &models.WithdrawalRequest{UserID: user.ID, Amount: decimal.RequireFromString("100"), Currency: "INR"}

	n := NewEmailNotifierWithSender(db, &fakeSender{status: 401}, "ops@example.com")
	assert.Error(t, n.WithdrawalDecided(context.Background(), req, withdrawal.ActionApprove))

	n = NewEmailNotifierWithSender(db, &fakeSender{err: errors.New("dial tcp")}, "ops@example.com")
	assert.Error(t, n.WithdrawalDecided(context.Background(), req, withdrawal.ActionApprove))

	missing := &models.WithdrawalRequest{UserID: 999, Amount: decimal.RequireFromString("100")}
	n = NewEmailNotifierWithSender(db, &fakeSender{status: 202}, "ops@example.com")
	assert.Error(t, n.WithdrawalDecided(context.Background(), missing, withdrawal.ActionApprove))
}

func TestEmailNotifier_DisabledWithoutKey(t *testing.T) {
	n := NewEmailNotifier(nil, "", "ops@example.com")
	assert.Nil(t, n)
	assert.NoError(t, n.WithdrawalDecided(context.Background(), &models.WithdrawalRequest{}, withdrawal.ActionApprove))
}

type statusGateway struct {
	name   string
	status string
	err    error
	asked  []string
}

func (g *statusGateway) Name() string { return g.name }

func (g *statusGateway) CreateOrder(context.Context, payment.OrderRequest) (*payment.OrderResponse, error) {
	return &payment.OrderResponse{PaymentURL: "https://pay.example/" + g.name}, nil
}

func (g *statusGateway) QueryStatus(_ context.Context, orderID string) (string, error) {
	g.asked = append(g.asked, orderID)
	return g.status, g.err
}

type reconcileFixture struct {
	db      *gorm.DB
	ledger  *ledger.Service
	gateway *statusGateway
	job     *Reconciler
}

func newReconcileFixture(t *testing.T, status string) *reconcileFixture {
	t.Helper()
	db := openDB(t)
	uow := database.NewUnitOfWork(db, "")
	l := ledger.NewService(uow, "INR")

	gw := &statusGateway{name: "payhub", status: status}
	registry := payment.NewRegistry()
	registry.Register(gw)
	tracker := payment.NewTracker(uow, registry, payment.Settings{
		Currency:        "INR",
		MinDeposit:      decimal.NewFromInt(1),
		MaxDeposit:      decimal.NewFromInt(100000),
		DefaultProvider: "payhub",
		OrderIDAttempts: 5,
	})
	rec := webhook.NewReconciler(uow, l, reward.NewPayer(l), webhook.NewStatusMapper(nil), nil, nil, &events.MemoryPublisher{})

	return &reconcileFixture{db: db, ledger: l, gateway: gw, job: NewReconciler(tracker, rec, 30*time.Minute)}
}

func (f *reconcileFixture) pending(t *testing.T, orderID, provider string, age time.Duration) {
	t.Helper()
	p := models.Payment{
		UserID: 1, Amount: decimal.NewFromInt(500), Currency: "INR",
		Status: models.PaymentStatusPending, Provider: provider, ProviderOrderID: orderID,
	}
	require.NoError(t, f.db.Create(&p).Error)
	require.NoError(t, f.db.Model(&p).UpdateColumn("created_at", time.Now().Add(-age)).Error)
}

func TestReconciler_SettlesStalePayments(t *testing.T) {
	f := newReconcileFixture(t, "success")
	f.pending(t, "ORD-OLD", "payhub", time.Hour)
	f.pending(t, "ORD-NEW", "payhub", time.Minute)
	f.pending(t, "ORD-GONE", "nobody", time.Hour)

	assert.Equal(t, 1, f.job.RunOnce(context.Background()))
	assert.Equal(t, []string{"ORD-OLD"}, f.gateway.asked)

	w, err := f.ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)))

	// the next run finds nothing new to settle for the same order
	assert.Zero(t, f.job.RunOnce(context.Background()))
	w, err = f.ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)))
}

func TestReconciler_StillPendingAndGatewayErrors(t *testing.T) {
	f := newReconcileFixture(t, "processing")
	f.pending(t, "ORD-1", "payhub", time.Hour)

	assert.Zero(t, f.job.RunOnce(context.Background()))

	f.gateway.err = errors.New("timeout")
	assert.Zero(t, f.job.RunOnce(context.Background()))

	var stored models.Payment
	require.NoError(t, f.db.Where("provider_order_id = ?", "ORD-1").First(&stored).Error)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
}

type countingSweeper struct{}

func (countingSweeper) Sweep() int { return 0 }

func TestInitializeSchedulers(t *testing.T) {
	f := newReconcileFixture(t, "success")

	c, err := InitializeSchedulers("*/10 * * * *", f.job, countingSweeper{})
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 2)
	c.Stop()

	_, err = InitializeSchedulers("not a cron", f.job, nil)
	assert.Error(t, err)
}
