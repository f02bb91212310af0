package referralValidator

import (
	"strings"

	"rewardsvault/middleware"
	"rewardsvault/validators"

	"github.com/gofiber/fiber/v2"
)

type ApplyRequest struct {
	ReferralCode string `json:"referralCode" validate:"required,min=4,max=16"`
}

// Apply validates a referral code submission
func Apply() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(ApplyRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		reqData.ReferralCode = strings.ToUpper(strings.TrimSpace(reqData.ReferralCode))

		if errors := validators.Struct(reqData); errors != nil {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("validatedReferral", reqData)
		return c.Next()
	}
}
