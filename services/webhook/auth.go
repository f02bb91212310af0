package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"rewardsvault/config"
	"rewardsvault/services/payment"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// Authenticator decides how far a notification can be trusted. Providers
// with a webhook secret must sign every delivery; for the others the
// gateway is asked for the real status before anything is applied.
type Authenticator struct {
	secrets  map[string]string
	gateways *payment.Registry
}

func NewAuthenticator(providers *config.ProviderFile, gateways *payment.Registry) *Authenticator {
	a := &Authenticator{secrets: map[string]string{}, gateways: gateways}
	if providers != nil {
		for name, p := range providers.Providers {
			if p.WebhookSecret != "" {
				a.secrets[strings.ToLower(name)] = p.WebhookSecret
			}
		}
	}
	if a.gateways == nil {
		a.gateways = payment.NewRegistry()
	}
	return a
}

// Knows reports whether notifications for provider can be checked at all.
func (a *Authenticator) Knows(provider string) bool {
	if a == nil {
		return false
	}
	provider = strings.ToLower(provider)
	if _, ok := a.secrets[provider]; ok {
		return true
	}
	_, err := a.gateways.Get(provider)
	return err == nil
}

// Verify checks signature against body. It returns false, nil when the
// provider has no secret, so the caller has to confirm with the gateway.
func (a *Authenticator) Verify(provider string, body []byte, signature string) (bool, error) {
	if a == nil {
		return false, nil
	}
	secret, ok := a.secrets[strings.ToLower(provider)]
	if !ok {
		return false, nil
	}

	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false, ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return false, ErrInvalidSignature
	}
	return true, nil
}

// gatewayStatus asks the provider's gateway for the order's current status.
func (a *Authenticator) gatewayStatus(ctx context.Context, provider, orderID string) (string, error) {
	if a == nil {
		return "", ErrUnknownProvider
	}
	gw, err := a.gateways.Get(provider)
	if err != nil {
		return "", err
	}
	return gw.QueryStatus(ctx, orderID)
}

// Sign returns the signature a provider holding secret sends for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
