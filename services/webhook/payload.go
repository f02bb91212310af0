package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrMissingOrderID   = errors.New("webhook payload has no order id")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnknownProvider  = errors.New("unknown webhook provider")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrProviderMismatch = errors.New("payment belongs to another provider")
	ErrUnconfirmed      = errors.New("gateway did not confirm payment status")
)

var (
	orderIDKeys       = []string{"order_id", "orderId", "order_no", "merchant_order_id"}
	statusKeys        = []string{"status", "payment_status", "txn_status", "code"}
	transactionIDKeys = []string{"transaction_id", "transactionId", "txn_id"}
	paymentIDKeys     = []string{"payment_id", "paymentId"}
	amountKeys        = []string{"amount", "txn_amount"}
)

// Payload is the normalized form of any provider's webhook body.
type Payload struct {
	OrderID       string
	Status        string
	TransactionID string
	PaymentID     string
	Amount        *decimal.Decimal
	Raw           map[string]interface{}
}

// ParsePayload accepts JSON or form-encoded bodies. String fields that hold
// a JSON object are unpacked into the top level; top-level keys win on conflict.
func ParsePayload(contentType string, body []byte) (*Payload, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	var (
		raw map[string]interface{}
		err error
	)
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		raw, err = decodeJSON(body)
	case strings.Contains(ct, "x-www-form-urlencoded"):
		raw, err = decodeForm(body)
	default:
		if raw, err = decodeJSON(body); err != nil {
			raw, err = decodeForm(body)
		}
	}
	if err != nil {
		return nil, err
	}

	flattenNested(raw)

	p := &Payload{
		OrderID:       lookup(raw, orderIDKeys),
		Status:        lookup(raw, statusKeys),
		TransactionID: lookup(raw, transactionIDKeys),
		PaymentID:     lookup(raw, paymentIDKeys),
		Raw:           raw,
	}
	if a := lookup(raw, amountKeys); a != "" {
		if d, err := decimal.NewFromString(a); err == nil {
			p.Amount = &d
		}
	}
	if p.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	return p, nil
}

func decodeJSON(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrMalformedPayload)
	}
	return raw, nil
}

func decodeForm(body []byte) (map[string]interface{}, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	raw := make(map[string]interface{}, len(values))
	for k, v := range values {
		if len(v) > 0 {
			raw[k] = v[0]
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrMalformedPayload)
	}
	return raw, nil
}

// flattenNested merges objects found in nested fields (as JSON strings or
// already-decoded maps) into the top level without overwriting existing keys.
// Nested fields are merged in key order, so the first one by name wins.
func flattenNested(raw map[string]interface{}) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nested := make([]map[string]interface{}, 0)
	for _, k := range keys {
		switch x := raw[k].(type) {
		case map[string]interface{}:
			nested = append(nested, x)
		case string:
			s := strings.TrimSpace(x)
			if !strings.HasPrefix(s, "{") {
				continue
			}
			if inner, err := decodeJSON([]byte(s)); err == nil {
				nested = append(nested, inner)
			}
		}
	}
	for _, inner := range nested {
		for k, v := range inner {
			if _, exists := raw[k]; !exists {
				raw[k] = v
			}
		}
	}
}

func lookup(raw map[string]interface{}, keys []string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s := scalar(v); s != "" {
			return s
		}
	}
	return ""
}

// scalar renders numbers without a trailing .0 so 200 and "200" compare equal.
func scalar(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := x.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
