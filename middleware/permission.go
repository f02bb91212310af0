package middleware

import (
	"errors"

	"rewardsvault/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// RequireRole lets tokens carrying one of roles through.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		return JsonResponse(c, fiber.StatusForbidden, false, "Admin access required!", nil)
	}
}

// AdminOnly lets ADMIN and SUPER-ADMIN tokens through.
var AdminOnly = RequireRole(models.RoleAdmin, models.RoleSuperAdmin)

// CheckPermissionMiddleware returns a middleware that checks if the user has the required permission.
// SUPER-ADMIN holds every permission.
func CheckPermissionMiddleware(db *gorm.DB, requiredPermission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("userId").(uint)
		if !ok {
			return JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized: User ID not found", nil)
		}
		if role, _ := c.Locals("role").(string); role == models.RoleSuperAdmin {
			return c.Next()
		}

		var permission models.Permission
		err := db.Where("user_id = ? AND permission = ? AND is_deleted = ?", userID, requiredPermission, false).
			First(&permission).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return JsonResponse(c, fiber.StatusForbidden, false, "You do not have permission to access this resource!", nil)
		}
		if err != nil {
			return JsonResponse(c, fiber.StatusInternalServerError, false, "Server error while checking permissions!", nil)
		}
		return c.Next()
	}
}
