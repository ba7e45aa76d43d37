package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mroshb/tiktok_claims/pkg/utils"
)

const defaultJWTSecret = "your_jwt_secret_minimum_32_chars_here_change_this"

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (outcome notifications, optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Security
	JWTSecret string

	// Application
	AppEnv   string
	AppPort  string
	LogLevel string

	// Rate Limiting
	RateLimitPerUser int

	// Claims
	ClaimTimezone      string
	ClaimTxMaxAttempts int

	// Dispatch
	DispatchWorkers      int
	DispatchQueueSize    int
	SweepIntervalSeconds int
	SweepBatchSize       int
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "tiktok"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "tiktok_claims"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET_KEY", ""),

		AppEnv:   getEnv("APP_ENV", "development"),
		AppPort:  getEnv("APP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RateLimitPerUser: getEnvInt("RATE_LIMIT_PER_USER", 20),

		ClaimTimezone:      getEnv("CLAIM_TIMEZONE", utils.DefaultTimezone),
		ClaimTxMaxAttempts: getEnvInt("CLAIM_TX_MAX_ATTEMPTS", 5),

		DispatchWorkers:      getEnvInt("DISPATCH_WORKERS", 8),
		DispatchQueueSize:    getEnvInt("DISPATCH_QUEUE_SIZE", 256),
		SweepIntervalSeconds: getEnvInt("SWEEP_INTERVAL_SECONDS", 30),
		SweepBatchSize:       getEnvInt("SWEEP_BATCH_SIZE", 100),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters")
	}
	if c.ClaimTxMaxAttempts <= 0 {
		return fmt.Errorf("CLAIM_TX_MAX_ATTEMPTS must be positive")
	}
	if c.DispatchWorkers <= 0 || c.DispatchQueueSize <= 0 {
		return fmt.Errorf("DISPATCH_WORKERS and DISPATCH_QUEUE_SIZE must be positive")
	}
	if c.SweepIntervalSeconds <= 0 || c.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS and SWEEP_BATCH_SIZE must be positive")
	}
	if _, err := utils.NewCalendar(c.ClaimTimezone); err != nil {
		return fmt.Errorf("invalid CLAIM_TIMEZONE: %w", err)
	}
	return nil
}

func (c *Config) ValidateProductionSecurity() error {
	if c.AppEnv != "production" {
		return nil
	}

	if c.DBSSLMode != "require" {
		return fmt.Errorf("DB_SSLMODE must be 'require' in production")
	}
	if c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET_KEY must be changed from default in production")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) NotificationsEnabled() bool {
	return c.RedisAddr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
