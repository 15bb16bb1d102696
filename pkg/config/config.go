package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int
	LogLevel    string

	// Storage selects the persistence backend: "postgres" or "memory".
	Storage string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisURL string

	JWTSecret       string
	TokenTTLMinutes int
	BcryptCost      int

	// EncryptionKey enables the AES-GCM secret codec when the
	// encrypt_at_rest flag is on. Hex-encoded 32-byte key.
	EncryptionKey string

	CORSAllowedOrigins []string

	RateLimitPerMinute int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	tokenTTL, err := strconv.Atoi(getEnv("TOKEN_TTL_MINUTES", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL_MINUTES: %w", err)
	}

	bcryptCost, err := strconv.Atoi(getEnv("BCRYPT_COST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	storage := getEnv("STORAGE", "postgres")
	if storage != "postgres" && storage != "memory" {
		return nil, fmt.Errorf("invalid STORAGE %q: must be postgres or memory", storage)
	}

	return &Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		ServerPort:      port,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Storage:         storage,
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          dbPort,
		DBUser:          getEnv("DB_USER", "credvault"),
		DBPassword:      getEnv("DB_PASSWORD", "dev"),
		DBName:          getEnv("DB_NAME", "credvault"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
		RedisURL:        getEnv("REDIS_URL", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenTTLMinutes: tokenTTL,
		BcryptCost:      bcryptCost,
		EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
		RateLimitPerMinute: rateLimit,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
