package withdrawalValidator

import (
	"strings"

	"rewardsvault/middleware"
	"rewardsvault/validators"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type RequestBody struct {
	WithdrawalMethodID uint            `json:"withdrawalMethodId" validate:"required"`
	Amount             decimal.Decimal `json:"amount"`
}

type MethodBody struct {
	Type              string `json:"type" validate:"required,oneof=BANK UPI"`
	AccountHolderName string `json:"accountHolderName" validate:"required_if=Type BANK,max=100"`
	AccountNumber     string `json:"accountNumber" validate:"required_if=Type BANK,max=20"`
	IFSCCode          string `json:"ifscCode" validate:"required_if=Type BANK,max=11"`
	BankName          string `json:"bankName" validate:"required_if=Type BANK,max=100"`
	UPIID             string `json:"upiId" validate:"required_if=Type UPI,max=100"`
	IsDefault         bool   `json:"isDefault"`
}

// Request validates a withdrawal request
func Request() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(RequestBody)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

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

		c.Locals("validatedWithdrawal", reqData)
		return c.Next()
	}
}

// AddMethod validates a new payout destination
func AddMethod() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(MethodBody)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Type = strings.ToUpper(strings.TrimSpace(reqData.Type))
		reqData.IFSCCode = strings.ToUpper(strings.TrimSpace(reqData.IFSCCode))

		if errors := validators.Struct(reqData); errors != nil {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedMethod", reqData)
		return c.Next()
	}
}
