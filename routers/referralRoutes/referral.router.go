package referralRoutes

import (
	referralController "rewardsvault/controllers/referral"
	"rewardsvault/middleware"
	referralValidator "rewardsvault/validators/referral"

	"github.com/gofiber/fiber/v2"
)

func SetupReferralRoutes(app *fiber.App, ctl *referralController.Controller) {
	referralGroup := app.Group("/referrals", middleware.JWTMiddleware)

	referralGroup.Post("/apply", referralValidator.Apply(), ctl.ApplyCode)
	referralGroup.Get("/", ctl.ListReferrals)
}
