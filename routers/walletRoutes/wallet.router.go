package walletRoutes

import (
	walletController "rewardsvault/controllers/wallet"
	"rewardsvault/middleware"
	walletValidator "rewardsvault/validators/wallet"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, ctl *walletController.Controller) {
	walletGroup := app.Group("/wallet", middleware.JWTMiddleware)

	walletGroup.Get("/balance", ctl.GetWalletBalance)
	walletGroup.Get("/history", walletValidator.History(), ctl.GetWalletHistory)
}
