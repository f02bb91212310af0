package webhookRoutes

import (
	webhookController "rewardsvault/controllers/webhook"

	"github.com/gofiber/fiber/v2"
)

// SetupWebhookRoutes registers the provider callbacks. They carry no JWT.
// /webhooks/payment is the default provider.
func SetupWebhookRoutes(app *fiber.App, ctl *webhookController.Controller) {
	app.Post("/webhooks/:provider", ctl.Receive)
}
