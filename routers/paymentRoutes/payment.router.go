package paymentRoutes

import (
	paymentController "rewardsvault/controllers/payment"
	"rewardsvault/middleware"
	"rewardsvault/models"
	paymentValidator "rewardsvault/validators/payment"
	walletValidator "rewardsvault/validators/wallet"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupPaymentRoutes(app *fiber.App, db *gorm.DB, ctl *paymentController.Controller) {
	paymentGroup := app.Group("/payments", middleware.JWTMiddleware)

	paymentGroup.Post("/create",
		middleware.CheckPermissionMiddleware(db, models.PermissionDeposit),
		paymentValidator.CreateOrder(),
		ctl.CreateOrder)
	paymentGroup.Get("/", walletValidator.List(), ctl.ListPayments)
	paymentGroup.Get("/:orderId", ctl.GetPayment)
}
