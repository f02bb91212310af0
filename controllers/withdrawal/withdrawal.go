package withdrawalController

import (
	"errors"
	"strconv"

	"rewardsvault/logger"
	"rewardsvault/middleware"
	"rewardsvault/models"
	"rewardsvault/services/ledger"
	"rewardsvault/services/withdrawal"
	withdrawalValidator "rewardsvault/validators/withdrawal"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Controller struct {
	manager *withdrawal.Manager
}

func New(m *withdrawal.Manager) *Controller {
	return &Controller{manager: m}
}

// ErrorResponse maps withdrawal errors to HTTP responses. Shared with the admin controller.
func ErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return middleware.JsonResponse(c, fiber.StatusUnprocessableEntity, false, "Insufficient wallet balance!", nil)
	case errors.Is(err, withdrawal.ErrAmountOutOfRange):
		return middleware.ValidationErrorResponse(c, map[string]string{"amount": err.Error()})
	case errors.Is(err, withdrawal.ErrInvalidMethod):
		return middleware.ValidationErrorResponse(c, map[string]string{"method": err.Error()})
	case errors.Is(err, withdrawal.ErrMethodNotFound), errors.Is(err, withdrawal.ErrWithdrawalNotFound):
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, withdrawal.ErrMethodInactive), errors.Is(err, withdrawal.ErrInvalidAction):
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, err.Error(), nil)
	case errors.Is(err, withdrawal.ErrMethodInUse), errors.Is(err, withdrawal.ErrNotPending):
		return middleware.JsonResponse(c, fiber.StatusConflict, false, err.Error(), nil)
	case errors.Is(err, withdrawal.ErrRateLimited):
		return middleware.JsonResponse(c, fiber.StatusTooManyRequests, false, err.Error(), nil)
	}
	logger.Log.Error("withdrawal request failed", zap.Error(err))
	return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to process withdrawal!", nil)
}

// RequestWithdrawal debits the wallet into escrow pending admin review.
func (ctl *Controller) RequestWithdrawal(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedWithdrawal").(*withdrawalValidator.RequestBody)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	req, err := ctl.manager.Request(c.UserContext(), middleware.UserID(c), reqData.WithdrawalMethodID, reqData.Amount)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Withdrawal requested.", fiber.Map{
		"id":     req.ID,
		"status": req.Status,
		"amount": req.Amount.StringFixed(2),
	})
}

func (ctl *Controller) ListWithdrawals(c *fiber.Ctx) error {
	requests, err := ctl.manager.List(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Withdrawals fetched.", requests)
}

func (ctl *Controller) AddMethod(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedMethod").(*withdrawalValidator.MethodBody)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	method, err := ctl.manager.AddMethod(c.UserContext(), middleware.UserID(c), withdrawal.MethodInput{
		Type:              models.WithdrawalMethodType(reqData.Type),
		AccountHolderName: reqData.AccountHolderName,
		AccountNumber:     reqData.AccountNumber,
		IFSCCode:          reqData.IFSCCode,
		BankName:          reqData.BankName,
		UPIID:             reqData.UPIID,
		IsDefault:         reqData.IsDefault,
	})
	if err != nil {
		return ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Withdrawal method added.", method)
}

func (ctl *Controller) ListMethods(c *fiber.Ctx) error {
	methods, err := ctl.manager.ListMethods(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Withdrawal methods fetched.", methods)
}

// DeleteMethod removes an unused method, or deactivates it when ?deactivate=true.
func (ctl *Controller) DeleteMethod(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid method id!", nil)
	}
	userID := middleware.UserID(c)

	if c.QueryBool("deactivate") {
		if err := ctl.manager.DeactivateMethod(c.UserContext(), userID, uint(id)); err != nil {
			return ErrorResponse(c, err)
		}
		return middleware.JsonResponse(c, fiber.StatusOK, true, "Withdrawal method deactivated.", nil)
	}

	if err := ctl.manager.DeleteMethod(c.UserContext(), userID, uint(id)); err != nil {
		return ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Withdrawal method deleted.", nil)
}
