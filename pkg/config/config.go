package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the API server.
type Config struct {
	Port            int
	DBPath          string
	LogLevel        string
	MaxInstallments int
}

// Load reads configuration from the environment, loading a .env file first if
// one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnvInt("PORT", 8080),
		DBPath:          getEnvString("DB_PATH", "microcredit.db"),
		LogLevel:        getEnvString("LOG_LEVEL", "info"),
		MaxInstallments: getEnvInt("MAX_INSTALLMENTS", 120),
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
