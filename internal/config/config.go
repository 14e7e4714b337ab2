package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port        string
	MongoURI    string
	Environment string // "production" or anything else for dev

	// Ledger configuration
	MaxVersions       int           // 0 = unlimited; reached cap rejects new versions
	SessionCacheTTL   time.Duration
	UseTransactions   bool // enable multi-document transactions (replica-set deployments only)
	HistoryPageLimit  int  // default limit for version-history listings

	// Presentation generation
	PresentationDir string
	ChromiumPath    string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		MongoURI:    getEnv("MONGODB_URI", ""),
		Environment: getEnv("ENVIRONMENT", "development"),

		MaxVersions:      getIntEnv("MAX_VERSIONS", 1000),
		SessionCacheTTL:  getDurationEnv("SESSION_CACHE_TTL", 5*time.Minute),
		UseTransactions:  getBoolEnv("MONGODB_TRANSACTIONS", false),
		HistoryPageLimit: getIntEnv("HISTORY_PAGE_LIMIT", 50),

		PresentationDir: getEnv("PRESENTATION_DIR", "./generated"),
		ChromiumPath:    getEnv("CHROMIUM_PATH", "/usr/bin/chromium-browser"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
