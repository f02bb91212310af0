package adminController

import (
	"errors"
	"strconv"

	withdrawalController "rewardsvault/controllers/withdrawal"
	"rewardsvault/logger"
	"rewardsvault/middleware"
	"rewardsvault/models"
	"rewardsvault/services/referral"
	"rewardsvault/services/reward"
	"rewardsvault/services/withdrawal"
	adminValidator "rewardsvault/validators/admin"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Controller struct {
	db          *gorm.DB
	withdrawals *withdrawal.Manager
	catalog     *reward.Catalog
	referrals   *referral.Trigger
}

func New(db *gorm.DB, withdrawals *withdrawal.Manager, catalog *reward.Catalog, referrals *referral.Trigger) *Controller {
	return &Controller{db: db, withdrawals: withdrawals, catalog: catalog, referrals: referrals}
}

// WithdrawalList is the review queue, oldest first.
func (ctl *Controller) WithdrawalList(c *fiber.Ctx) error {
	q, ok := c.Locals("validatedWithdrawalList").(*adminValidator.WithdrawalListQuery)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	requests, total, err := ctl.withdrawals.ListAll(c.UserContext(), models.WithdrawalStatus(q.Status), q.Page, q.Limit)
	if err != nil {
		return withdrawalController.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Withdrawal requests fetched.", fiber.Map{
		"requests": requests,
		"pagination": fiber.Map{
			"total": total,
			"page":  q.Page,
			"limit": q.Limit,
		},
	})
}

func (ctl *Controller) WithdrawalDecision(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedDecision").(*adminValidator.DecisionRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}
	action, err := withdrawal.ParseAction(reqData.Action)
	if err != nil {
		return withdrawalController.ErrorResponse(c, err)
	}

	req, err := ctl.withdrawals.Decide(c.UserContext(), withdrawal.Decision{
		RequestID: reqData.RequestID,
		Action:    action,
		Notes:     reqData.Notes,
		AdminID:   middleware.UserID(c),
	})
	if err != nil {
		return withdrawalController.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Withdrawal "+string(req.Status)+".", req)
}

func rewardErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, reward.ErrServiceNotFound):
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Reward service not found!", nil)
	case errors.Is(err, reward.ErrInvalidFormula), errors.Is(err, reward.ErrDivideByZero):
		return middleware.ValidationErrorResponse(c, map[string]string{"formula": err.Error()})
	case errors.Is(err, reward.ErrInvalidBounds):
		return middleware.ValidationErrorResponse(c, map[string]string{"maxAmount": err.Error()})
	}
	logger.Log.Error("reward service", zap.Error(err))
	return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to save reward service!", nil)
}

func serviceInput(r *adminValidator.RewardServiceRequest) reward.ServiceInput {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return reward.ServiceInput{
		Name:        r.Name,
		Description: r.Description,
		Formula:     r.Formula,
		MinAmount:   r.MinAmount,
		MaxAmount:   r.MaxAmount,
		IsActive:    active,
	}
}

func (ctl *Controller) CreateRewardService(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedRewardService").(*adminValidator.RewardServiceRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}
	svc, err := ctl.catalog.Create(c.UserContext(), serviceInput(reqData))
	if err != nil {
		return rewardErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Reward service created.", svc)
}

func (ctl *Controller) UpdateRewardService(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedRewardService").(*adminValidator.RewardServiceRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid reward service id!", nil)
	}
	svc, err := ctl.catalog.Update(c.UserContext(), uint(id), serviceInput(reqData))
	if err != nil {
		return rewardErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Reward service updated.", svc)
}

func (ctl *Controller) ListRewardServices(c *fiber.Ctx) error {
	services, err := ctl.catalog.List(c.UserContext(), c.QueryBool("active"))
	if err != nil {
		return rewardErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Reward services fetched.", services)
}

func (ctl *Controller) GetReferralSettings(c *fiber.Ctx) error {
	s, err := ctl.referrals.ActiveSettings(c.UserContext())
	if err != nil {
		logger.Log.Error("load referral settings", zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch referral settings!", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Referral settings fetched.", s)
}

func (ctl *Controller) UpdateReferralSettings(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedReferralSettings").(*adminValidator.ReferralSettingsRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	s, err := ctl.referrals.SaveSettings(c.UserContext(), models.ReferralSettings{
		IsActive:            reqData.IsActive,
		MinDepositAmount:    reqData.MinDepositAmount,
		ReferrerRewardType:  models.RewardType(reqData.ReferrerRewardType),
		ReferrerRewardValue: reqData.ReferrerRewardValue,
		ReferredRewardType:  models.RewardType(reqData.ReferredRewardType),
		ReferredRewardValue: reqData.ReferredRewardValue,
	})
	if errors.Is(err, referral.ErrInvalidSettings) {
		return middleware.ValidationErrorResponse(c, map[string]string{"settings": err.Error()})
	}
	if err != nil {
		logger.Log.Error("save referral settings", zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to save referral settings!", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Referral settings saved.", s)
}

// PermissionsByUserID lists a user's live permissions.
func (ctl *Controller) PermissionsByUserID(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("userId"), 10, 64)
	if err != nil || userID == 0 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid user id!", nil)
	}

	var permissions []models.Permission
	if err := ctl.db.WithContext(c.UserContext()).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Find(&permissions).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch permissions!", nil)
	}

	names := make([]string, 0, len(permissions))
	for _, p := range permissions {
		names = append(names, p.Permission)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Permissions fetched.", names)
}

// SetPermission grants or revokes one permission. Revoking keeps the row.
func (ctl *Controller) SetPermission(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedPermission").(*adminValidator.PermissionRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}
	db := ctl.db.WithContext(c.UserContext())

	var user models.User
	if err := db.Select("id", "role").First(&user, reqData.UserID).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "User not found!", nil)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var existing models.Permission
		err := tx.Where("user_id = ? AND permission = ?", user.ID, reqData.Permission).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if !reqData.Granted {
				return nil
			}
			return tx.Create(&models.Permission{UserID: user.ID, Role: user.Role, Permission: reqData.Permission}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&models.Permission{}).
			Where("user_id = ? AND permission = ?", user.ID, reqData.Permission).
			Update("is_deleted", !reqData.Granted).Error
	})
	if err != nil {
		logger.Log.Error("set permission", zap.Uint("user_id", user.ID), zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to update permission!", nil)
	}

	logger.Log.Info("permission updated",
		zap.Uint("user_id", user.ID),
		zap.String("permission", reqData.Permission),
		zap.Bool("granted", reqData.Granted),
		zap.Uint("admin_id", middleware.UserID(c)))
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Permission updated.", nil)
}
