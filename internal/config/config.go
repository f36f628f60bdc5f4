package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	TelegramToken  string
	InvestAPIKey   string
	InvestBaseURL  string
	AllowedPhone   string
	VerifySSL      bool
	LogLevel       string
	Port           int
	DigestSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		InvestAPIKey:   getEnv("T_INVEST_API_KEY", ""),
		InvestBaseURL:  getEnv("T_INVEST_BASE_URL", ""),
		AllowedPhone:   getEnv("PHONE", ""),
		VerifySSL:      getEnvAsBool("VERIFY_SSL", true),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("PORT", 8080),
		DigestSchedule: getEnv("DIGEST_SCHEDULE", "0 0 9 * * MON-FRI"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	if c.InvestAPIKey == "" {
		return fmt.Errorf("T_INVEST_API_KEY is required")
	}

	if c.AllowedPhone == "" {
		return fmt.Errorf("PHONE is required")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
