// Package routers wires the HTTP surface onto a Fiber app.
package routers

import (
	adminController "rewardsvault/controllers/admin"
	authController "rewardsvault/controllers/auth"
	paymentController "rewardsvault/controllers/payment"
	referralController "rewardsvault/controllers/referral"
	walletController "rewardsvault/controllers/wallet"
	webhookController "rewardsvault/controllers/webhook"
	withdrawalController "rewardsvault/controllers/withdrawal"
	"rewardsvault/metrics"
	"rewardsvault/routers/adminRoutes"
	"rewardsvault/routers/authRoutes"
	"rewardsvault/routers/paymentRoutes"
	"rewardsvault/routers/referralRoutes"
	"rewardsvault/routers/walletRoutes"
	"rewardsvault/routers/webhookRoutes"
	"rewardsvault/routers/withdrawalRoutes"
	"rewardsvault/services/ledger"
	"rewardsvault/services/payment"
	"rewardsvault/services/referral"
	"rewardsvault/services/reward"
	"rewardsvault/services/webhook"
	"rewardsvault/services/withdrawal"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Services is everything the handlers call into.
type Services struct {
	DB              *gorm.DB
	Ledger          *ledger.Service
	Tracker         *payment.Tracker
	Reconciler      *webhook.Reconciler
	Withdrawals     *withdrawal.Manager
	Referrals       *referral.Trigger
	Catalog         *reward.Catalog
	DefaultProvider string
	SaltRound       int
}

func Setup(app *fiber.App, s Services) {
	wallets := walletController.New(s.Ledger)

	authRoutes.SetupAuthRoutes(app, authController.New(s.DB, s.Referrals, s.SaltRound))
	walletRoutes.SetupWalletRoutes(app, wallets)
	paymentRoutes.SetupPaymentRoutes(app, s.DB, paymentController.New(s.Tracker))
	webhookRoutes.SetupWebhookRoutes(app, webhookController.New(s.Reconciler, s.DefaultProvider))
	withdrawalRoutes.SetupWithdrawalRoutes(app, s.DB, withdrawalController.New(s.Withdrawals))
	referralRoutes.SetupReferralRoutes(app, referralController.New(s.Referrals))
	adminRoutes.SetupAdminRoutes(app, s.DB, adminController.New(s.DB, s.Withdrawals, s.Catalog, s.Referrals), wallets)

	app.Get("/metrics", metrics.Handler())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
