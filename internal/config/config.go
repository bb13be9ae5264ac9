package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret string
	JWTExpiry time.Duration

	// Service Ports
	APIServicePort  string
	GateServicePort string

	// Pinning service
	PinningURL     string
	PinningTimeout time.Duration

	// Chain ledger
	MockChainEnabled     bool
	MockChainSuccessRate float64
	ChainConfirmDelay    time.Duration

	// Seeding
	AdminAddress string

	// Caching
	EventCacheTTL time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "mintpass"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-here"),
		JWTExpiry: parseDuration(getEnv("JWT_EXPIRY", "24h"), 24*time.Hour),

		APIServicePort:  getEnv("API_SERVICE_PORT", "8080"),
		GateServicePort: getEnv("GATE_SERVICE_PORT", "8081"),

		PinningURL:     getEnv("PINNING_URL", "http://localhost:5001"),
		PinningTimeout: parseDuration(getEnv("PINNING_TIMEOUT", "30s"), 30*time.Second),

		MockChainEnabled:     getEnvBool("MOCK_CHAIN_ENABLED", true),
		MockChainSuccessRate: getEnvFloat("MOCK_CHAIN_SUCCESS_RATE", 0.98),
		ChainConfirmDelay:    parseDuration(getEnv("CHAIN_CONFIRM_DELAY", "2s"), 2*time.Second),

		AdminAddress: getEnv("ADMIN_ADDRESS", ""),

		EventCacheTTL: parseDuration(getEnv("EVENT_CACHE_TTL", "5m"), 5*time.Minute),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	valueBool, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return valueBool
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	valueFloat, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return valueFloat
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return duration
}
