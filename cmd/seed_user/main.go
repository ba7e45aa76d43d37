// Command seed_user creates a zero-balance user for local testing and prints a
// bearer token for it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/mroshb/tiktok_claims/internal/config"
	"github.com/mroshb/tiktok_claims/internal/database"
	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/internal/repositories"
	"github.com/mroshb/tiktok_claims/internal/security"
	"github.com/mroshb/tiktok_claims/pkg/errors"
	"github.com/mroshb/tiktok_claims/pkg/logger"
	"github.com/mroshb/tiktok_claims/pkg/utils"
)

func main() {
	uid := flag.String("uid", "", "user id to create; a random one when empty")
	ttl := flag.Duration("ttl", security.DefaultTokenTTL, "token lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	logger.Init()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", err)
	}
	if cfg.AppEnv == "production" {
		logger.Fatal("Refusing to seed users", fmt.Errorf("APP_ENV is production"))
	}

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	if *uid == "" {
		*uid = utils.NewID()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := repositories.NewUserRepository(db)
	if _, err := users.GetUserByID(ctx, *uid); errors.HasCode(err, errors.ErrCodeNotFound) {
		if err := users.CreateUser(ctx, &models.User{ID: *uid}); err != nil {
			logger.Fatal("Failed to create user", err)
		}
		logger.Info("User created", "uid", *uid)
	} else if err != nil {
		logger.Fatal("Failed to look up user", err)
	} else {
		logger.Info("User already exists", "uid", *uid)
	}

	token, err := security.GenerateJWT(*uid, cfg.JWTSecret, *ttl)
	if err != nil {
		logger.Fatal("Failed to sign token", err)
	}

	fmt.Printf("uid:   %s\ntoken: %s\n", *uid, token)
}
