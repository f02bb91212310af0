package referralController

import (
	"errors"

	"rewardsvault/logger"
	"rewardsvault/middleware"
	"rewardsvault/services/referral"
	referralValidator "rewardsvault/validators/referral"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Controller struct {
	trigger *referral.Trigger
}

func New(t *referral.Trigger) *Controller {
	return &Controller{trigger: t}
}

// ApplyCode links the caller to the owner of a referral code.
func (ctl *Controller) ApplyCode(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedReferral").(*referralValidator.ApplyRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	ref, err := ctl.trigger.Apply(c.UserContext(), middleware.UserID(c), reqData.ReferralCode)
	switch {
	case err == nil:
		return middleware.JsonResponse(c, fiber.StatusCreated, true, "Referral code applied.", ref)
	case errors.Is(err, referral.ErrCodeNotFound):
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Referral code not found!", nil)
	case errors.Is(err, referral.ErrSelfReferral), errors.Is(err, referral.ErrAlreadyReferred):
		return middleware.JsonResponse(c, fiber.StatusConflict, false, err.Error(), nil)
	}
	logger.Log.Error("apply referral code", zap.Error(err))
	return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to apply referral code!", nil)
}

func (ctl *Controller) ListReferrals(c *fiber.Ctx) error {
	refs, err := ctl.trigger.ListByReferrer(c.UserContext(), middleware.UserID(c))
	if err != nil {
		logger.Log.Error("list referrals", zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch referrals!", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Referrals fetched.", refs)
}
