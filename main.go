package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"rewardsvault/config"
	"rewardsvault/database"
	"rewardsvault/logger"
	"rewardsvault/routers"
	"rewardsvault/services/events"
	"rewardsvault/services/ledger"
	"rewardsvault/services/payment"
	"rewardsvault/services/referral"
	"rewardsvault/services/reward"
	"rewardsvault/services/webhook"
	"rewardsvault/services/withdrawal"
	"rewardsvault/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	if err := logger.Init(cfg.AppEnv); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	database.ConnectDb()
	db := database.Database.Db
	uow := database.NewUnitOfWork(db, cfg.DBIsolation)

	publisher := newPublisher(cfg.RabbitMQURL)
	defer publisher.Close()

	ledgerService := ledger.NewService(uow, cfg.Currency)
	gateways := payment.NewRegistryFromConfig(cfg.Providers, time.Duration(cfg.GatewayTimeoutSeconds)*time.Second, cfg.GatewayRetryCount)
	if len(gateways.Names()) == 0 {
		logger.Log.Warn("no payment gateways configured; deposits will fail", zap.String("file", cfg.ProvidersFile))
	}
	tracker := payment.NewTracker(uow, gateways, payment.Settings{
		Currency:        cfg.Currency,
		MinDeposit:      cfg.MinDeposit,
		MaxDeposit:      cfg.MaxDeposit,
		DefaultProvider: cfg.DefaultProvider,
		OrderIDAttempts: cfg.OrderIDAttempts,
	})

	referrals := referral.NewTrigger(uow, ledgerService)
	reconciler := webhook.NewReconciler(uow, ledgerService, reward.NewPayer(ledgerService),
		webhook.NewStatusMapper(cfg.Providers), webhook.NewAuthenticator(cfg.Providers, gateways),
		referrals, publisher)

	limiter, sweeper := newLimiter(cfg.RedisURL, cfg.WithdrawalAttemptsPerHour)
	var notifier withdrawal.Notifier
	if n := utils.NewEmailNotifier(db, cfg.SendgridAPIKey, cfg.EmailSender); n != nil {
		notifier = n
	}
	withdrawals := withdrawal.NewManager(uow, ledgerService, limiter, notifier, publisher, withdrawal.Settings{
		MinWithdrawal: cfg.MinWithdrawal,
		MaxWithdrawal: cfg.MaxWithdrawal,
	})

	scheduler, err := utils.InitializeSchedulers(cfg.ReconcileCron,
		utils.NewReconciler(tracker, reconciler, time.Duration(cfg.ReconcileAfterMinutes)*time.Minute),
		sweeper)
	if err != nil {
		logger.Log.Fatal("invalid RECONCILE_CRON", zap.String("spec", cfg.ReconcileCron), zap.Error(err))
	}

	app := fiber.New(fiber.Config{AppName: "rewardsvault"})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",
		AllowHeaders: "Content-Type,Authorization",
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	routers.Setup(app, routers.Services{
		DB:              db,
		Ledger:          ledgerService,
		Tracker:         tracker,
		Reconciler:      reconciler,
		Withdrawals:     withdrawals,
		Referrals:       referrals,
		Catalog:         reward.NewCatalog(db),
		DefaultProvider: cfg.DefaultProvider,
		SaltRound:       cfg.SaltRound,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Log.Info("server is running", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info("shutting down")
	<-scheduler.Stop().Done()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Log.Error("shutdown", zap.Error(err))
	}
}

func newPublisher(url string) events.Publisher {
	if url == "" {
		return events.NopPublisher{}
	}
	p, err := events.NewRabbitPublisher(url)
	if err != nil {
		logger.Log.Warn("rabbitmq unavailable; events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	return p
}

// newLimiter prefers Redis so counts are shared between instances. The
// memory limiter needs a periodic sweep, so it is also returned as sweeper.
func newLimiter(url string, perHour int) (withdrawal.Limiter, utils.Sweeper) {
	if url != "" {
		opts, err := redis.ParseURL(url)
		if err == nil {
			client := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err = client.Ping(ctx).Err(); err == nil {
				logger.Log.Info("withdrawal limiter using redis")
				return withdrawal.NewRedisLimiter(client, perHour), nil
			}
			_ = client.Close()
		}
		logger.Log.Warn("redis unavailable; using in-memory withdrawal limiter", zap.Error(err))
	}
	m := withdrawal.NewMemoryLimiter(perHour)
	return m, m
}
