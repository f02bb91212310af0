package payment

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"rewardsvault/config"
	"rewardsvault/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// OrderRequest is what we send a gateway when opening a payment.
type OrderRequest struct {
	OrderID     string          `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CustomerID  uint            `json:"customer_id"`
	CallbackURL string          `json:"callback_url,omitempty"`
	RedirectURL string          `json:"redirect_url,omitempty"`
}

// OrderResponse is the gateway's answer to OrderRequest.
type OrderResponse struct {
	PaymentURL string `json:"payment_url"`
	Reference  string `json:"reference"`
}

// Gateway is an external payment provider.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	// QueryStatus returns the provider's raw status string for the order.
	QueryStatus(ctx context.Context, orderID string) (string, error)
}

// GatewayOptions tunes the HTTP client behind a RestGateway.
type GatewayOptions struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

func defaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		Timeout:      15 * time.Second,
		RetryCount:   3,
		RetryWait:    200 * time.Millisecond,
		RetryMaxWait: 2 * time.Second,
	}
}

// RestGateway talks JSON over HTTP to a provider described in providers.yaml.
type RestGateway struct {
	name   string
	cfg    config.ProviderConfig
	client *resty.Client
}

func NewRestGateway(name string, cfg config.ProviderConfig, opts GatewayOptions) *RestGateway {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &RestGateway{name: name, cfg: cfg, client: client}
}

func (g *RestGateway) Name() string { return g.name }

func (g *RestGateway) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	defer metrics.ObserveGateway(g.name, "create_order", time.Now())

	if req.CallbackURL == "" {
		req.CallbackURL = g.cfg.CallbackURL
	}
	if req.RedirectURL == "" {
		req.RedirectURL = g.cfg.RedirectURL
	}

	var out OrderResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(g.cfg.CreatePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s create order: %v", ErrGateway, g.name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s create order: HTTP %d", ErrGateway, g.name, resp.StatusCode())
	}
	if out.PaymentURL == "" {
		return nil, fmt.Errorf("%w: %s create order: response has no payment_url", ErrGateway, g.name)
	}
	return &out, nil
}

func (g *RestGateway) QueryStatus(ctx context.Context, orderID string) (string, error) {
	defer metrics.ObserveGateway(g.name, "query_status", time.Now())

	var out map[string]interface{}
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("order_id", orderID).
		SetResult(&out).
		Get(g.cfg.StatusPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s query status: %v", ErrGateway, g.name, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: %s query status: HTTP %d", ErrGateway, g.name, resp.StatusCode())
	}

	for _, key := range []string{"status", "payment_status", "txn_status", "code"} {
		if v, ok := out[key]; ok && v != nil {
			return statusText(v), nil
		}
	}
	return "", fmt.Errorf("%w: %s query status: response has no status", ErrGateway, g.name)
}

func statusText(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

// Registry resolves gateways by provider name.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: map[string]Gateway{}}
}

// NewRegistryFromConfig builds a RestGateway for every provider with a base URL.
func NewRegistryFromConfig(file *config.ProviderFile, timeout time.Duration, retries int) *Registry {
	r := NewRegistry()
	if file == nil {
		return r
	}

	opts := defaultGatewayOptions()
	if timeout > 0 {
		opts.Timeout = timeout
	}
	if retries >= 0 {
		opts.RetryCount = retries
	}
	for name, cfg := range file.Providers {
		if cfg.BaseURL == "" {
			continue
		}
		r.Register(NewRestGateway(name, cfg, opts))
	}
	return r
}

// Register adds or replaces g under its lower-cased name.
func (r *Registry) Register(g Gateway) {
	r.gateways[strings.ToLower(g.Name())] = g
}

func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return g, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
