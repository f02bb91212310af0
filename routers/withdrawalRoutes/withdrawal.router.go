package withdrawalRoutes

import (
	withdrawalController "rewardsvault/controllers/withdrawal"
	"rewardsvault/middleware"
	"rewardsvault/models"
	withdrawalValidator "rewardsvault/validators/withdrawal"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupWithdrawalRoutes(app *fiber.App, db *gorm.DB, ctl *withdrawalController.Controller) {
	withdrawalGroup := app.Group("/withdrawals", middleware.JWTMiddleware)

	withdrawalGroup.Post("/methods", withdrawalValidator.AddMethod(), ctl.AddMethod)
	withdrawalGroup.Get("/methods", ctl.ListMethods)
	withdrawalGroup.Delete("/methods/:id", ctl.DeleteMethod)

	withdrawalGroup.Post("/",
		middleware.CheckPermissionMiddleware(db, models.PermissionWithdraw),
		withdrawalValidator.Request(),
		ctl.RequestWithdrawal)
	withdrawalGroup.Get("/", ctl.ListWithdrawals)
}
