package adminValidator

import (
	"strings"

	"rewardsvault/middleware"
	"rewardsvault/validators"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type DecisionRequest struct {
	RequestID uint   `json:"requestId" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=approve reject process complete fail"`
	Notes     string `json:"notes" validate:"max=500"`
}

type WithdrawalListQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=PENDING PENDING_VERIFICATION APPROVED REJECTED PROCESSING COMPLETED FAILED"`
	Page   int    `query:"page" validate:"omitempty,min=1"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

type RewardServiceRequest struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Formula     string          `json:"formula" validate:"required,max=255"`
	MinAmount   decimal.Decimal `json:"minAmount"`
	MaxAmount   decimal.Decimal `json:"maxAmount"`
	IsActive    *bool           `json:"isActive"`
}

type ReferralSettingsRequest struct {
	IsActive            bool            `json:"isActive"`
	MinDepositAmount    decimal.Decimal `json:"minDepositAmount"`
	ReferrerRewardType  string          `json:"referrerRewardType" validate:"required,oneof=FLAT PERCENTAGE"`
	ReferrerRewardValue decimal.Decimal `json:"referrerRewardValue"`
	ReferredRewardType  string          `json:"referredRewardType" validate:"required,oneof=FLAT PERCENTAGE"`
	ReferredRewardValue decimal.Decimal `json:"referredRewardValue"`
}

type PermissionRequest struct {
	UserID     uint   `json:"userId" validate:"required"`
	Permission string `json:"permission" validate:"required,oneof=login deposit withdraw"`
	Granted    bool   `json:"granted"`
}

// Decision validates an admin withdrawal decision
func Decision() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(DecisionRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Action = strings.ToLower(strings.TrimSpace(reqData.Action))
		reqData.Notes = strings.TrimSpace(reqData.Notes)

		if errors := validators.Struct(reqData); errors != nil {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedDecision", reqData)
		return c.Next()
	}
}

// WithdrawalList validates the admin withdrawal queue query
func WithdrawalList() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(WithdrawalListQuery)
		if err := c.QueryParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid query parameters!", nil)
		}
		reqData.Status = strings.ToUpper(reqData.Status)

		if errors := validators.Struct(reqData); errors != nil {
			return middleware.ValidationErrorResponse(c, errors)
		}
		if reqData.Page == 0 {
			reqData.Page = 1
		}
		if reqData.Limit == 0 {
			reqData.Limit = 20
		}

		c.Locals("validatedWithdrawalList", reqData)
		return c.Next()
	}
}

// RewardService validates a reward service create or update
func RewardService() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(RewardServiceRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Name = strings.TrimSpace(reqData.Name)
		reqData.Formula = strings.TrimSpace(reqData.Formula)

		errors := validators.Struct(reqData)
		if errors == nil {
			errors = map[string]string{}
		}
		if reqData.MinAmount.IsNegative() {
			errors["minAmount"] = "minAmount cannot be negative!"
		}
		if reqData.MaxAmount.IsNegative() {
			errors["maxAmount"] = "maxAmount cannot be negative!"
		}
		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedRewardService", reqData)
		return c.Next()
	}
}

// ReferralSettings validates the referral program settings
func ReferralSettings() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(ReferralSettingsRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.ReferrerRewardType = strings.ToUpper(reqData.ReferrerRewardType)
		reqData.ReferredRewardType = strings.ToUpper(reqData.ReferredRewardType)

		if errors := validators.Struct(reqData); errors != nil {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedReferralSettings", reqData)
		return c.Next()
	}
}

// Permission validates a permission grant or revoke
func Permission() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(PermissionRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.Permission = strings.ToLower(strings.TrimSpace(reqData.Permission))

		if errors := validators.Struct(reqData); errors != nil {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedPermission", reqData)
		return c.Next()
	}
}
