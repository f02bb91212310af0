package authController

import (
	"errors"
	"time"

	"rewardsvault/logger"
	"rewardsvault/middleware"
	"rewardsvault/models"
	"rewardsvault/services/referral"
	authValidator "rewardsvault/validators/auth"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	maxFailedLogins = 3
	blockDuration   = time.Minute
	failureWindow   = 15 * time.Minute
)

type Controller struct {
	db        *gorm.DB
	referrals *referral.Trigger
	saltRound int
}

func New(db *gorm.DB, referrals *referral.Trigger, saltRound int) *Controller {
	if saltRound < bcrypt.MinCost {
		saltRound = bcrypt.DefaultCost
	}
	return &Controller{db: db, referrals: referrals, saltRound: saltRound}
}

func (ctl *Controller) Signup(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedUser").(*authValidator.SignupRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}
	db := ctl.db.WithContext(c.UserContext())

	var existing int64
	if err := db.Model(&models.User{}).Where("email = ?", reqData.Email).Count(&existing).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to process your request!", nil)
	}
	if existing > 0 {
		return middleware.JsonResponse(c, fiber.StatusConflict, false, "Email is already registered!", nil)
	}

	if reqData.ReferralCode != "" {
		var owners int64
		if err := db.Model(&models.User{}).Where("referral_code = ?", reqData.ReferralCode).Count(&owners).Error; err != nil {
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to process your request!", nil)
		}
		if owners == 0 {
			return middleware.ValidationErrorResponse(c, map[string]string{"referralCode": "Unknown referral code!"})
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(reqData.Password), ctl.saltRound)
	if err != nil {
		logger.Log.Error("hash password", zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to process your request!", nil)
	}

	newUser, err := ctl.createUser(db, reqData, string(hashedPassword))
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return middleware.JsonResponse(c, fiber.StatusConflict, false, "Email is already registered!", nil)
		}
		logger.Log.Error("create user", zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to Signup user!", nil)
	}

	if reqData.ReferralCode != "" && ctl.referrals != nil {
		if _, err := ctl.referrals.Apply(c.UserContext(), newUser.ID, reqData.ReferralCode); err != nil {
			logger.Log.Warn("apply referral at signup", zap.Uint("user_id", newUser.ID), zap.Error(err))
		}
	}

	logger.Log.Info("user registered", zap.Uint("user_id", newUser.ID))
	return middleware.JsonResponse(c, fiber.StatusCreated, true, "User registered successfully.", newUser)
}

// createUser inserts the user with a fresh referral code and seeds the
// default permissions in one transaction.
func (ctl *Controller) createUser(db *gorm.DB, req *authValidator.SignupRequest, hash string) (*models.User, error) {
	var user models.User
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		code := referral.NewCode()
		user = models.User{
			Name:         req.Name,
			Email:        req.Email,
			Mobile:       req.Mobile,
			Role:         models.RoleUser,
			Password:     hash,
			ReferralCode: &code,
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			return SeedPermissions(tx, user.Role, user.ID)
		})
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		// email was checked above, so a duplicate here is most likely the referral code
		var taken int64
		if cerr := db.Model(&models.User{}).Where("email = ?", req.Email).Count(&taken).Error; cerr == nil && taken > 0 {
			break
		}
	}
	return &user, err
}

// SeedPermissions seeds default permissions for a given role and user ID
func SeedPermissions(db *gorm.DB, role string, userID uint) error {
	var permissionRecords []models.Permission
	for _, p := range defaultPermissions() {
		permissionRecords = append(permissionRecords, models.Permission{
			UserID:     userID,
			Role:       role,
			Permission: p,
		})
	}
	return db.Create(&permissionRecords).Error
}

func defaultPermissions() []string {
	return []string{
		models.PermissionLogin,
		models.PermissionDeposit,
		models.PermissionWithdraw,
	}
}

func (ctl *Controller) Login(c *fiber.Ctx) error {
	reqData, ok := c.Locals("validatedLogin").(*authValidator.LoginRequest)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}
	db := ctl.db.WithContext(c.UserContext())

	var user models.User
	if err := db.Where("email = ? AND is_deleted = ?", reqData.Email, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Invalid credentials!", nil)
	}

	now := time.Now()
	if user.IsBlocked && user.BlockedUntil != nil && user.BlockedUntil.After(now) {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Your account is temporarily blocked. Try again later.", nil)
	}
	if user.LastFailedLogin != nil && now.Sub(*user.LastFailedLogin) > failureWindow {
		user.FailedLoginAttempts = 0
		user.LastFailedLogin = nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(reqData.Password)); err != nil {
		user.FailedLoginAttempts++
		user.LastFailedLogin = &now
		if user.FailedLoginAttempts >= maxFailedLogins {
			until := now.Add(blockDuration)
			user.IsBlocked = true
			user.BlockedUntil = &until
		}
		if err := db.Save(&user).Error; err != nil {
			logger.Log.Error("record failed login", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Invalid credentials!", nil)
	}

	allowed, err := hasPermission(db, user, models.PermissionLogin)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Server error while checking permissions!", nil)
	}
	if !allowed {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, "Login is disabled for this account!", nil)
	}

	user.LastLogin = &now
	user.FailedLoginAttempts = 0
	user.LastFailedLogin = nil
	user.IsBlocked = false
	user.BlockedUntil = nil
	if err := db.Save(&user).Error; err != nil {
		logger.Log.Error("save last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	ip := c.IP()
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		ip = forwarded
	}
	tracking := models.LoginTracking{UserID: user.ID, IPAddress: ip, Device: c.Get("User-Agent"), Timestamp: now}
	if err := db.Create(&tracking).Error; err != nil {
		logger.Log.Warn("save login tracking", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	token, err := middleware.GenerateJWT(user.ID, user.Name, user.Role, user.Email)
	if err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to generate token", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Login successful.", fiber.Map{
		"user":  user,
		"token": token,
	})
}

func hasPermission(db *gorm.DB, user models.User, permission string) (bool, error) {
	if user.Role == models.RoleSuperAdmin {
		return true, nil
	}
	var n int64
	err := db.Model(&models.Permission{}).
		Where("user_id = ? AND permission = ? AND is_deleted = ?", user.ID, permission, false).
		Count(&n).Error
	return n > 0, err
}
