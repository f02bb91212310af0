package webhookController

import (
	"errors"
	"strings"

	"rewardsvault/logger"
	"rewardsvault/services/webhook"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// aliasProvider is the legacy path segment that means the default provider.
const aliasProvider = "payment"

type Controller struct {
	reconciler      *webhook.Reconciler
	defaultProvider string
}

func New(r *webhook.Reconciler, defaultProvider string) *Controller {
	return &Controller{reconciler: r, defaultProvider: strings.ToLower(defaultProvider)}
}

func respond(c *fiber.Ctx, status int, success bool, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": success,
		"message": message,
	})
}

// Receive handles an asynchronous payment notification. Anything that is not
// a storage or gateway failure is acknowledged so the provider stops retrying.
func (ctl *Controller) Receive(c *fiber.Ctx) error {
	provider := strings.ToLower(c.Params("provider"))
	if provider == "" || provider == aliasProvider {
		provider = ctl.defaultProvider
	}
	if !ctl.reconciler.Knows(provider) {
		return respond(c, fiber.StatusNotFound, false, "Unknown provider")
	}

	logger.Log.Info("webhook received",
		zap.String("provider", provider),
		zap.String("content_type", c.Get(fiber.HeaderContentType)),
		zap.Int("bytes", len(c.Body())))

	out, err := ctl.reconciler.Receive(c.UserContext(), webhook.Delivery{
		Provider:    provider,
		ContentType: c.Get(fiber.HeaderContentType),
		Body:        c.Body(),
		Signature:   c.Get(webhook.SignatureHeader),
	})
	switch {
	case errors.Is(err, webhook.ErrUnknownProvider):
		return respond(c, fiber.StatusNotFound, false, "Unknown provider")
	case errors.Is(err, webhook.ErrInvalidSignature):
		return respond(c, fiber.StatusUnauthorized, false, "Invalid signature")
	case errors.Is(err, webhook.ErrMalformedPayload), errors.Is(err, webhook.ErrMissingOrderID):
		logger.Log.Warn("webhook rejected", zap.String("provider", provider), zap.Error(err))
		return respond(c, fiber.StatusBadRequest, false, err.Error())
	case errors.Is(err, webhook.ErrProviderMismatch):
		return respond(c, fiber.StatusBadRequest, false, "Payment belongs to another provider")
	case errors.Is(err, webhook.ErrPaymentNotFound):
		return respond(c, fiber.StatusOK, false, "Payment not found")
	case errors.Is(err, webhook.ErrUnconfirmed):
		return respond(c, fiber.StatusServiceUnavailable, false, "Payment status could not be confirmed")
	case err != nil:
		logger.Log.Error("webhook processing failed", zap.String("provider", provider), zap.Error(err))
		return respond(c, fiber.StatusInternalServerError, false, "Webhook processing failed")
	}

	switch out.Result {
	case webhook.Duplicate:
		return respond(c, fiber.StatusOK, true, "Webhook already processed")
	case webhook.StillPending:
		return respond(c, fiber.StatusOK, true, "Payment still pending")
	}
	return respond(c, fiber.StatusOK, true, "Webhook processed successfully")
}
