package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/mroshb/tiktok_claims/internal/config"
	"github.com/mroshb/tiktok_claims/internal/database"
	"github.com/mroshb/tiktok_claims/internal/handlers"
	"github.com/mroshb/tiktok_claims/internal/middleware"
	"github.com/mroshb/tiktok_claims/internal/notify"
	"github.com/mroshb/tiktok_claims/internal/repositories"
	"github.com/mroshb/tiktok_claims/internal/services"
	"github.com/mroshb/tiktok_claims/internal/workers"
	"github.com/mroshb/tiktok_claims/pkg/logger"
	"github.com/mroshb/tiktok_claims/pkg/utils"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	logger.Init()
	defer logger.Sync()

	logger.Info("Starting TikTok claim worker...")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", err)
	}

	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProductionSecurity(); err != nil {
			logger.Fatal("Production security validation failed", err)
		}
		logger.Info("Production security validation passed")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	calendar, err := utils.NewCalendar(cfg.ClaimTimezone)
	if err != nil {
		logger.Fatal("Invalid claim timezone", err)
	}
	rules := services.NewClaimRules(calendar)

	claimRepo := repositories.NewClaimRepository(db, cfg.ClaimTxMaxAttempts)
	userRepo := repositories.NewUserRepository(db)
	historyRepo := repositories.NewHistoryRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []services.ProcessorOption
	if cfg.NotificationsEnabled() {
		client, err := notify.Connect(ctx, cfg)
		if err != nil {
			// Outcomes stay readable from the claim record.
			logger.Warn("Redis unavailable, claim notifications disabled", "error", err)
		} else {
			defer client.Close()
			opts = append(opts, services.WithNotifier(notify.NewRedisPublisher(client)))
			logger.Info("Claim notifications enabled", "redis", cfg.RedisAddr)
		}
	}

	processor := services.NewClaimProcessor(claimRepo, userRepo, rules, opts...)
	dispatcher := workers.NewDispatcher(processor, cfg.DispatchWorkers, cfg.DispatchQueueSize)
	sweeper := workers.NewSweeper(claimRepo, dispatcher, cfg.GetSweepInterval(), cfg.SweepBatchSize)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerUser, time.Minute)
	defer limiter.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "tiktok-claims",
		DisableStartupMessage: cfg.AppEnv == "production",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	handlers.SetupRoutes(app, handlers.NewClaimHandler(claimRepo, historyRepo, dispatcher), cfg.JWTSecret, limiter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return app.Listen(":" + cfg.AppPort)
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return sweeper.Stop()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	logger.Info("Claim worker started", "env", cfg.AppEnv, "port", cfg.AppPort, "workers", cfg.DispatchWorkers)

	if err := g.Wait(); err != nil {
		logger.Error("Claim worker stopped with error", "error", err)
		return
	}
	logger.Info("Claim worker stopped")
}
