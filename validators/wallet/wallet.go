package walletValidator

import (
	"rewardsvault/middleware"
	"rewardsvault/models"
	"rewardsvault/validators"

	"github.com/gofiber/fiber/v2"
)

type HistoryQuery struct {
	Page  int    `query:"page" validate:"omitempty,min=1"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Type  string `query:"type" validate:"omitempty,oneof=DEPOSIT WITHDRAWAL TRADE_BUY TRADE_SELL REWARD REFUND"`
}

func (q HistoryQuery) TransactionType() models.TransactionType {
	return models.TransactionType(q.Type)
}

// History validates the wallet history query string
func History() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(HistoryQuery)
		if err := c.QueryParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid query parameters!", nil)
		}
		if errors := validators.Struct(reqData); errors != nil {
			return middleware.ValidationErrorResponse(c, errors)
		}
		if reqData.Page == 0 {
			reqData.Page = 1
		}
		if reqData.Limit == 0 {
			reqData.Limit = 20
		}

		c.Locals("validatedHistory", reqData)
		return c.Next()
	}
}

// Pagination is shared by the list endpoints.
type Pagination struct {
	Page  int `query:"page" validate:"omitempty,min=1"`
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
}

// List validates page and limit query parameters
func List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(Pagination)
		if err := c.QueryParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid query parameters!", nil)
		}
		if errors := validators.Struct(reqData); errors != nil {
			return middleware.ValidationErrorResponse(c, errors)
		}
		if reqData.Page == 0 {
			reqData.Page = 1
		}
		if reqData.Limit == 0 {
			reqData.Limit = 20
		}

		c.Locals("list", reqData)
		return c.Next()
	}
}
