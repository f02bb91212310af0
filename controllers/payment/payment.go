package paymentController

import (
	"errors"

	"rewardsvault/logger"
	"rewardsvault/middleware"
	"rewardsvault/services/payment"
	paymentValidator "rewardsvault/validators/payment"
	walletValidator "rewardsvault/validators/wallet"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Controller struct {
	tracker *payment.Tracker
}

func New(tracker *payment.Tracker) *Controller {
	return &Controller{tracker: tracker}
}

// CreateOrder opens a deposit with a gateway and returns the redirect URL.
func (ctl *Controller) CreateOrder(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedOrder").(*paymentValidator.CreateOrderRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}
	userID := middleware.UserID(c)

	result, err := ctl.tracker.CreateOrder(c.UserContext(), payment.CreateOrderInput{
		UserID:          userID,
		Amount:          reqData.Amount,
		Currency:        reqData.Currency,
		Provider:        reqData.Provider,
		RewardServiceID: reqData.ServiceID,
	})
	switch {
	case err == nil:
		return middleware.JsonResponse(c, fiber.StatusCreated, true, "Payment order created.", result)
	case errors.Is(err, payment.ErrAmountOutOfRange):
		return middleware.ValidationErrorResponse(c, map[string]string{"amount": err.Error()})
	case errors.Is(err, payment.ErrUnknownProvider):
		return middleware.ValidationErrorResponse(c, map[string]string{"provider": "Unknown payment provider!"})
	case errors.Is(err, payment.ErrRewardServiceNotFound):
		return middleware.ValidationErrorResponse(c, map[string]string{"serviceId": err.Error()})
	case errors.Is(err, payment.ErrGateway):
		return middleware.JsonResponse(c, fiber.StatusBadGateway, false, "Payment gateway is unavailable, please try again.", nil)
	}
	logger.Log.Error("create payment order", zap.Uint("user_id", userID), zap.Error(err))
	return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to create payment order!", nil)
}

func (ctl *Controller) GetPayment(c *fiber.Ctx) error {
	p, err := ctl.tracker.Get(c.UserContext(), middleware.UserID(c), c.Params("orderId"))
	if errors.Is(err, payment.ErrNotFound) {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Payment not found!", nil)
	}
	if err != nil {
		logger.Log.Error("get payment", zap.String("order_id", c.Params("orderId")), zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch payment!", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Payment fetched.", p)
}

func (ctl *Controller) ListPayments(c *fiber.Ctx) error {
	q, ok := c.Locals("list").(*walletValidator.Pagination)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}
	payments, total, err := ctl.tracker.ListByUser(c.UserContext(), middleware.UserID(c), q.Page, q.Limit)
	if err != nil {
		logger.Log.Error("list payments", zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch payments!", nil)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Payments fetched.", fiber.Map{
		"payments": payments,
		"pagination": fiber.Map{
			"total": total,
			"page":  q.Page,
			"limit": q.Limit,
		},
	})
}
