package main

import (
	"log"
	"os"

	"rewardsvault/config"
	"rewardsvault/database"
	"rewardsvault/logger"
	"rewardsvault/models"
	"rewardsvault/services/ledger"

	"go.uber.org/zap"
)

// Recomputes every wallet balance from its ledger entries and exits
// non-zero if any stored balance disagrees.
func main() {
	config.LoadConfig()
	if err := logger.Init(config.AppConfig.AppEnv); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	database.ConnectDb()
	db := database.Database.Db

	var walletIDs []uint
	if err := db.Model(&models.Wallet{}).Order("id ASC").Pluck("id", &walletIDs).Error; err != nil {
		log.Fatalf("Failed to list wallets: %v", err)
	}

	l := ledger.NewLedger()
	drifted := 0
	for _, id := range walletIDs {
		audit, err := l.Verify(db, id)
		if err != nil {
			logger.Log.Error("audit failed", zap.Uint("wallet_id", id), zap.Error(err))
			drifted++
			continue
		}
		if !audit.Balanced {
			drifted++
			logger.Log.Warn("wallet balance drift",
				zap.Uint("wallet_id", audit.WalletID),
				zap.Uint("user_id", audit.UserID),
				zap.String("stored", audit.Stored.StringFixed(2)),
				zap.String("derived", audit.Derived.StringFixed(2)))
		}
	}

	logger.Log.Info("ledger audit finished", zap.Int("wallets", len(walletIDs)), zap.Int("drifted", drifted))
	if drifted > 0 {
		logger.Sync()
		os.Exit(1)
	}
}
