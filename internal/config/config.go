// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for the sqlite database (defaults to "./data")
	LogLevel         string
	Port             int
	DevMode          bool
	OptimizationDays int // Days of price history used per optimization run
	SchedulerEnabled bool
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getEnvInt("PORT", 8742)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	optimizationDays, err := getEnvInt("OPTIMIZATION_DAYS", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid OPTIMIZATION_DAYS: %w", err)
	}
	if optimizationDays <= 0 {
		return nil, fmt.Errorf("OPTIMIZATION_DAYS must be positive, got %d", optimizationDays)
	}

	cfg := &Config{
		DataDir:          getEnv("DATA_DIR", "./data"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             port,
		DevMode:          getEnvBool("DEV_MODE", false),
		OptimizationDays: optimizationDays,
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
