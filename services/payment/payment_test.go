package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rewardsvault/config"
	"rewardsvault/database"
	"rewardsvault/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGateway struct {
	name   string
	err    error
	orders []OrderRequest
	status string
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) CreateOrder(_ context.Context, req OrderRequest) (*OrderResponse, error) {
	f.orders = append(f.orders, req)
	if f.err != nil {
		return nil, f.err
	}
	return &OrderResponse{PaymentURL: "https://pay.example/" + req.OrderID, Reference: "ref-" + req.OrderID}, nil
}

func (f *fakeGateway) QueryStatus(context.Context, string) (string, error) {
	return f.status, f.err
}

func newTracker(t *testing.T, gw Gateway) (*Tracker, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:payment_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Register(gw)
	tr := NewTracker(database.NewUnitOfWork(db, ""), reg, Settings{
		Currency:        "INR",
		MinDeposit:      decimal.NewFromInt(100),
		MaxDeposit:      decimal.NewFromInt(100000),
		DefaultProvider: "payhub",
		OrderIDAttempts: 5,
	})
	return tr, db
}

func TestNewOrderIDFormat(t *testing.T) {
	id := NewOrderID(time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC))
	assert.Regexp(t, `^ORD20240309[0-9A-F]{12}$`, id)
	assert.NotEqual(t, id, NewOrderID(time.Now()))
}

func TestCreateOrder_StoresPendingPaymentAndURL(t *testing.T) {
	gw := &fakeGateway{name: "payhub"}
	tr, db := newTracker(t, gw)

	res, err := tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 4, Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/"+res.OrderID, res.PaymentURL)

	var p models.Payment
	require.NoError(t, db.Where("provider_order_id = ?", res.OrderID).First(&p).Error)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, "payhub", p.Provider)
	assert.Equal(t, "INR", p.Currency)
	assert.Equal(t, res.PaymentURL, p.PaymentURL)
	assert.Equal(t, "ref-"+res.OrderID, p.ProviderTransactionID)
	assert.False(t, p.WebhookReceived)

	require.Len(t, gw.orders, 1)
	assert.Equal(t, uint(4), gw.orders[0].CustomerID)
}

func TestCreateOrder_AmountBounds(t *testing.T) {
	tr, _ := newTracker(t, &fakeGateway{name: "payhub"})
	for _, amount := range []int64{99, 100001} {
		_, err := tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 1, Amount: decimal.NewFromInt(amount)})
		assert.ErrorIs(t, err, ErrAmountOutOfRange)
	}
}

func TestCreateOrder_UnknownProvider(t *testing.T) {
	tr, _ := newTracker(t, &fakeGateway{name: "payhub"})
	_, err := tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 1, Amount: decimal.NewFromInt(500), Provider: "nope"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCreateOrder_GatewayFailureLeavesPaymentPending(t *testing.T) {
	gw := &fakeGateway{name: "payhub", err: errors.New("connection refused")}
	tr, db := newTracker(t, gw)

	_, err := tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 1, Amount: decimal.NewFromInt(500)})
	assert.ErrorIs(t, err, ErrGateway)

	var payments []models.Payment
	require.NoError(t, db.Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusPending, payments[0].Status)
	assert.Empty(t, payments[0].PaymentURL)
}

func TestCreateOrder_RegeneratesCollidingOrderIDs(t *testing.T) {
	tr, db := newTracker(t, &fakeGateway{name: "payhub"})
	require.NoError(t, db.Create(&models.Payment{
		UserID: 9, Amount: decimal.NewFromInt(1), Currency: "INR",
		Status: models.PaymentStatusPending, Provider: "payhub", ProviderOrderID: "ORDTAKEN",
	}).Error)

	calls := 0
	tr.newOrderID = func(time.Time) string {
		calls++
		if calls < 3 {
			return "ORDTAKEN"
		}
		return "ORDFRESH"
	}

	res, err := tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 1, Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	assert.Equal(t, "ORDFRESH", res.OrderID)
	assert.Equal(t, 3, calls)
}

func TestCreateOrder_GivesUpAfterBoundedCollisions(t *testing.T) {
	tr, db := newTracker(t, &fakeGateway{name: "payhub"})
	require.NoError(t, db.Create(&models.Payment{
		UserID: 9, Amount: decimal.NewFromInt(1), Currency: "INR",
		Status: models.PaymentStatusPending, Provider: "payhub", ProviderOrderID: "ORDTAKEN",
	}).Error)
	tr.newOrderID = func(time.Time) string { return "ORDTAKEN" }

	_, err := tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 1, Amount: decimal.NewFromInt(500)})
	assert.ErrorIs(t, err, ErrOrderIDCollision)
}

func TestCreateOrder_RewardServiceChecks(t *testing.T) {
	tr, db := newTracker(t, &fakeGateway{name: "payhub"})
	active := models.RewardService{Name: "Gold", Formula: "amount * 0.1", MinAmount: decimal.NewFromInt(200), MaxAmount: decimal.NewFromInt(1000), IsActive: true}
	inactive := models.RewardService{Name: "Old", Formula: "amount", IsActive: false}
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&inactive).Error)

	_, err := tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 1, Amount: decimal.NewFromInt(500), RewardServiceID: &inactive.ID})
	assert.ErrorIs(t, err, ErrRewardServiceNotFound)

	_, err = tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 1, Amount: decimal.NewFromInt(150), RewardServiceID: &active.ID})
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	res, err := tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 1, Amount: decimal.NewFromInt(500), RewardServiceID: &active.ID})
	require.NoError(t, err)

	p, err := tr.Get(context.Background(), 1, res.OrderID)
	require.NoError(t, err)
	require.NotNil(t, p.RewardServiceID)
	assert.Equal(t, active.ID, *p.RewardServiceID)
}

func TestGet_ScopedToOwner(t *testing.T) {
	tr, _ := newTracker(t, &fakeGateway{name: "payhub"})
	res, err := tr.CreateOrder(context.Background(), CreateOrderInput{UserID: 1, Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)

	_, err = tr.Get(context.Background(), 2, res.OrderID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, total, err := tr.ListByUser(context.Background(), 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)
}

func TestStale_ReturnsOldPendingPayments(t *testing.T) {
	tr, db := newTracker(t, &fakeGateway{name: "payhub"})
	old := models.Payment{UserID: 1, Amount: decimal.NewFromInt(10), Currency: "INR", Status: models.PaymentStatusPending, Provider: "payhub", ProviderOrderID: "ORDOLD"}
	recent := models.Payment{UserID: 1, Amount: decimal.NewFromInt(10), Currency: "INR", Status: models.PaymentStatusPending, Provider: "payhub", ProviderOrderID: "ORDNEW"}
	done := models.Payment{UserID: 1, Amount: decimal.NewFromInt(10), Currency: "INR", Status: models.PaymentStatusCompleted, Provider: "payhub", ProviderOrderID: "ORDDONE"}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&recent).Error)
	require.NoError(t, db.Create(&done).Error)
	require.NoError(t, db.Model(&models.Payment{}).Where("id IN ?", []uint{old.ID, done.ID}).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	stale, err := tr.Stale(context.Background(), 30*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "ORDOLD", stale[0].ProviderOrderID)
}

func testGatewayOptions() GatewayOptions {
	return GatewayOptions{Timeout: 2 * time.Second, RetryCount: 2, RetryWait: time.Millisecond, RetryMaxWait: 5 * time.Millisecond}
}

func TestRestGateway_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ORD1", body["order_id"])
		assert.Equal(t, "https://api.example/webhooks/payhub", body["callback_url"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment_url":"https://pay.example/ORD1","reference":"R1"}`))
	}))
	defer srv.Close()

	gw := NewRestGateway("payhub", config.ProviderConfig{
		BaseURL:     srv.URL,
		APIKey:      "secret",
		CreatePath:  "/v1/orders",
		CallbackURL: "https://api.example/webhooks/payhub",
	}, testGatewayOptions())

	resp, err := gw.CreateOrder(context.Background(), OrderRequest{OrderID: "ORD1", Amount: decimal.NewFromInt(100), Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/ORD1", resp.PaymentURL)
	assert.Equal(t, "R1", resp.Reference)
}

func TestRestGateway_RetriesServerErrorsThenFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	gw := NewRestGateway("payhub", config.ProviderConfig{BaseURL: srv.URL, StatusPath: "/status"}, testGatewayOptions())
	_, err := gw.QueryStatus(context.Background(), "ORD1")
	assert.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRestGateway_RecoversAfterTransientError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"paid"}`))
	}))
	defer srv.Close()

	gw := NewRestGateway("payhub", config.ProviderConfig{BaseURL: srv.URL, StatusPath: "/status"}, testGatewayOptions())
	status, err := gw.QueryStatus(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.Equal(t, "paid", status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRestGateway_DoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	gw := NewRestGateway("payhub", config.ProviderConfig{BaseURL: srv.URL, CreatePath: "/orders"}, testGatewayOptions())
	_, err := gw.CreateOrder(context.Background(), OrderRequest{OrderID: "ORD1"})
	assert.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRestGateway_QueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("order_id") {
		case "NUM":
			_, _ = w.Write([]byte(`{"code":200}`))
		case "TXT":
			_, _ = w.Write([]byte(`{"status":"success"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	gw := NewRestGateway("payhub", config.ProviderConfig{BaseURL: srv.URL, StatusPath: "/status"}, testGatewayOptions())

	status, err := gw.QueryStatus(context.Background(), "NUM")
	require.NoError(t, err)
	assert.Equal(t, "200", status)

	status, err = gw.QueryStatus(context.Background(), "TXT")
	require.NoError(t, err)
	assert.Equal(t, "success", status)

	_, err = gw.QueryStatus(context.Background(), "NONE")
	assert.ErrorIs(t, err, ErrGateway)
}

func TestRegistryFromConfig(t *testing.T) {
	reg := NewRegistryFromConfig(&config.ProviderFile{Providers: map[string]config.ProviderConfig{
		"payhub":    {BaseURL: "https://payhub.example"},
		"upistream": {BaseURL: "https://upi.example"},
		"disabled":  {},
	}}, time.Second, 1)

	assert.Equal(t, []string{"payhub", "upistream"}, reg.Names())
	g, err := reg.Get("PayHub")
	require.NoError(t, err)
	assert.Equal(t, "payhub", g.Name())

	_, err = reg.Get("disabled")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
