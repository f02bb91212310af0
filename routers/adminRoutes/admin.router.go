package adminRoutes

import (
	adminController "rewardsvault/controllers/admin"
	walletController "rewardsvault/controllers/wallet"
	"rewardsvault/middleware"
	"rewardsvault/models"
	adminValidator "rewardsvault/validators/admin"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupAdminRoutes(app *fiber.App, db *gorm.DB, ctl *adminController.Controller, wallets *walletController.Controller) {
	adminGroup := app.Group("/admin", middleware.JWTMiddleware, middleware.AdminOnly)

	withdrawals := adminGroup.Group("/withdrawals", middleware.CheckPermissionMiddleware(db, models.PermissionWithdraw))
	withdrawals.Get("/", adminValidator.WithdrawalList(), ctl.WithdrawalList)
	withdrawals.Post("/decision", adminValidator.Decision(), ctl.WithdrawalDecision)

	rewards := adminGroup.Group("/reward-services", middleware.CheckPermissionMiddleware(db, models.PermissionDeposit))
	rewards.Post("/", adminValidator.RewardService(), ctl.CreateRewardService)
	rewards.Get("/", ctl.ListRewardServices)
	rewards.Put("/:id", adminValidator.RewardService(), ctl.UpdateRewardService)

	adminGroup.Get("/referral-settings", ctl.GetReferralSettings)
	adminGroup.Put("/referral-settings",
		middleware.CheckPermissionMiddleware(db, models.PermissionDeposit),
		adminValidator.ReferralSettings(),
		ctl.UpdateReferralSettings)

	adminGroup.Get("/wallets/:userId/audit", wallets.AuditWallet)

	superAdmin := middleware.RequireRole(models.RoleSuperAdmin)
	adminGroup.Get("/permissions/:userId", superAdmin, ctl.PermissionsByUserID)
	adminGroup.Put("/permissions", superAdmin, adminValidator.Permission(), ctl.SetPermission)
}
