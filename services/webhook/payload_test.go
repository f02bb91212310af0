package webhook

import (
	"testing"

	"rewardsvault/config"
	"rewardsvault/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload_JSON(t *testing.T) {
	p, err := ParsePayload("application/json", []byte(`{"order_id":"ORD1","status":"success","transaction_id":"T9","amount":"500.00"}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD1", p.OrderID)
	assert.Equal(t, "success", p.Status)
	assert.Equal(t, "T9", p.TransactionID)
	require.NotNil(t, p.Amount)
	assert.Equal(t, "500", p.Amount.String())
}

func TestParsePayload_NumericStatusHasNoDecimals(t *testing.T) {
	p, err := ParsePayload("application/json; charset=utf-8", []byte(`{"orderId":"ORD1","code":200,"amount":250.5}`))
	require.NoError(t, err)
	assert.Equal(t, "200", p.Status)
	assert.Equal(t, "250.5", p.Amount.String())
}

func TestParsePayload_Form(t *testing.T) {
	p, err := ParsePayload("application/x-www-form-urlencoded", []byte("order_no=ORD2&txn_status=failure&txn_id=abc&paymentId=P1"))
	require.NoError(t, err)
	assert.Equal(t, "ORD2", p.OrderID)
	assert.Equal(t, "failure", p.Status)
	assert.Equal(t, "abc", p.TransactionID)
	assert.Equal(t, "P1", p.PaymentID)
	assert.Nil(t, p.Amount)
}

func TestParsePayload_NestedJSONStringInForm(t *testing.T) {
	body := `data=%7B%22merchant_order_id%22%3A%22ORD3%22%2C%22status%22%3A%22paid%22%7D&status=pending`
	p, err := ParsePayload("application/x-www-form-urlencoded", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "ORD3", p.OrderID)
	// outer key wins
	assert.Equal(t, "pending", p.Status)
}

func TestParsePayload_NestedObjectInJSON(t *testing.T) {
	p, err := ParsePayload("application/json", []byte(`{"event":"payment","payload":{"order_id":"ORD4","payment_status":"captured"}}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD4", p.OrderID)
	assert.Equal(t, "captured", p.Status)
}

func TestParsePayload_NestedObjectsMergeInKeyOrder(t *testing.T) {
	body := []byte(`{"order_id":"ORD7","zeta":{"status":"failed"},"alpha":{"status":"success"},"mid":"{\"status\":\"pending\"}"}`)
	for i := 0; i < 50; i++ {
		p, err := ParsePayload("application/json", body)
		require.NoError(t, err)
		assert.Equal(t, "success", p.Status)
	}
}

func TestParsePayload_SniffsUnknownContentType(t *testing.T) {
	p, err := ParsePayload("", []byte(`{"order_id":"ORD5","status":"success"}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD5", p.OrderID)

	p, err = ParsePayload("text/plain", []byte(`order_id=ORD6&status=success`))
	require.NoError(t, err)
	assert.Equal(t, "ORD6", p.OrderID)
}

func TestParsePayload_Errors(t *testing.T) {
	_, err := ParsePayload("application/json", []byte(``))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParsePayload("application/json", []byte(`{"order_id":`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParsePayload("application/json", []byte(`null`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParsePayload("application/json", []byte(`{"status":"success"}`))
	assert.ErrorIs(t, err, ErrMissingOrderID)
}

func TestStatusMapper_DefaultVocabulary(t *testing.T) {
	m := NewStatusMapper(nil)
	cases := map[string]models.PaymentStatus{
		"200":        models.PaymentStatusCompleted,
		"SUCCESS":    models.PaymentStatusCompleted,
		"completed":  models.PaymentStatusCompleted,
		"failed":     models.PaymentStatusFailed,
		"Failure":    models.PaymentStatusFailed,
		"cancelled":  models.PaymentStatusCancelled,
		"cancel":     models.PaymentStatusCancelled,
		"processing": models.PaymentStatusPending,
		"":           models.PaymentStatusPending,
		"201":        models.PaymentStatusPending,
	}
	for raw, want := range cases {
		assert.Equal(t, want, m.Map("payhub", raw), raw)
	}
}

func TestStatusMapper_ProviderOverride(t *testing.T) {
	file, err := config.ParseProviders([]byte(`
providers:
  upistream:
    statuses:
      completed: ["TXN_SUCCESS"]
      failed: ["TXN_FAILURE"]
      cancelled: ["USER_CANCELLED"]
`))
	require.NoError(t, err)
	m := NewStatusMapper(file)

	assert.Equal(t, models.PaymentStatusCompleted, m.Map("upistream", "txn_success"))
	assert.Equal(t, models.PaymentStatusPending, m.Map("upistream", "success"))
	assert.Equal(t, models.PaymentStatusCompleted, m.Map("payhub", "success"))
}
