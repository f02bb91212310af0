package paymentValidator

import (
	"strings"

	"rewardsvault/middleware"
	"rewardsvault/validators"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"omitempty,len=3"`
	Provider  string          `json:"provider" validate:"omitempty,max=50"`
	ServiceID *uint           `json:"serviceId" validate:"omitempty,min=1"`
}

// CreateOrder validates a deposit order request
func CreateOrder() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(CreateOrderRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Currency = strings.ToUpper(strings.TrimSpace(reqData.Currency))
		reqData.Provider = strings.ToLower(strings.TrimSpace(reqData.Provider))

		errors := validators.Struct(reqData)
		if !reqData.Amount.IsPositive() {
			if errors == nil {
				errors = map[string]string{}
			}
			errors["amount"] = "Amount must be greater than 0!"
		}
		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedOrder", reqData)
		return c.Next()
	}
}
