package walletController

import (
	"errors"
	"strconv"

	"rewardsvault/logger"
	"rewardsvault/middleware"
	"rewardsvault/services/ledger"
	walletValidator "rewardsvault/validators/wallet"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Controller struct {
	ledger *ledger.Service
}

func New(l *ledger.Service) *Controller {
	return &Controller{ledger: l}
}

// GetWalletBalance returns the caller's wallet, creating it on first access.
func (ctl *Controller) GetWalletBalance(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	wallet, err := ctl.ledger.Balance(c.UserContext(), userID)
	if err != nil {
		logger.Log.Error("load wallet", zap.Uint("user_id", userID), zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch wallet balance!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Wallet balance fetched.", fiber.Map{
		"balance":  wallet.Balance.StringFixed(2),
		"currency": wallet.Currency,
	})
}

func (ctl *Controller) GetWalletHistory(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	q, ok := c.Locals("validatedHistory").(*walletValidator.HistoryQuery)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	entries, total, err := ctl.ledger.History(c.UserContext(), userID, ledger.HistoryFilter{
		Type:  q.TransactionType(),
		Page:  q.Page,
		Limit: q.Limit,
	})
	if err != nil {
		logger.Log.Error("wallet history", zap.Uint("user_id", userID), zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch wallet history!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Wallet history fetched.", fiber.Map{
		"transactions": entries,
		"pagination": fiber.Map{
			"total": total,
			"page":  q.Page,
			"limit": q.Limit,
		},
	})
}

// AuditWallet compares a user's stored balance with the balance derived from
// the ledger. Admin only.
func (ctl *Controller) AuditWallet(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("userId"), 10, 64)
	if err != nil || userID == 0 {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid user id!", nil)
	}

	audit, err := ctl.ledger.Audit(c.UserContext(), uint(userID))
	if errors.Is(err, ledger.ErrWalletNotFound) {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Wallet not found!", nil)
	}
	if err != nil {
		logger.Log.Error("wallet audit", zap.Uint64("user_id", userID), zap.Error(err))
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to audit wallet!", nil)
	}

	if !audit.Balanced {
		logger.Log.Warn("wallet balance drift",
			zap.Uint("wallet_id", audit.WalletID),
			zap.String("stored", audit.Stored.StringFixed(2)),
			zap.String("derived", audit.Derived.StringFixed(2)))
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Wallet audited.", audit)
}
