package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config is the process-level configuration loaded once at startup from
// the environment (.env via godotenv, or the real environment in
// production). Per-run BacktestConfig values (§6) are NOT here — those
// are resolved per request and may be hot-reloaded via config.Manager.
type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Server
	Port    string
	GinMode string

	// Auth
	JWTSecret            string
	OperatorPasswordHash string

	// Redis (optional; empty disables the Redis event bus / telemetry
	// sink and falls back to the in-memory EventBus)
	RedisAddr string

	// Dataset storage root for the CSV candle reader.
	DatasetRoot string
}

// Load reads configuration from the environment, falling back to
// defaults suited to local development.
func Load() (*Config, error) {
	godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "backtestd"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "release"),

		JWTSecret:            getEnv("JWT_SECRET", ""),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		DatasetRoot: getEnv("DATASET_ROOT", "./datasets"),
	}, nil
}

// DBDSN builds the Postgres connection string consumed by
// gorm.io/driver/postgres.
func (c *Config) DBDSN() string {
	return "host=" + c.DBHost + " port=" + c.DBPort + " user=" + c.DBUser + " dbname=" + c.DBName + " password=" + c.DBPassword + " sslmode=" + c.DBSSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
