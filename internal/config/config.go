// Package config handles application configuration loading and validation
// from environment variables, providing a type-safe configuration structure.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all gateway configuration values loaded from environment variables.
type Config struct {
	// Server configuration
	ListenAddr     string        // Address to listen on (e.g., ":8080")
	RequestTimeout time.Duration // Timeout for inbound request handling

	// Environment
	APIEnv string // 'production', 'development', 'test'

	// Upstream Game API
	GameAPIBaseURL      string        // Base URL of the upstream Game API
	GameAPIClientID     string        // Client ID for the upstream token exchange
	GameAPIClientSecret string        // Client secret for the upstream token exchange
	GameAPIPrefix       string        // Function-name prefix stripped from inbound paths
	UpstreamTimeout     time.Duration // Timeout for outbound upstream calls
	ProviderConfigPath  string        // Optional YAML file overriding upstream settings

	// Database configuration (token records + call logs)
	DatabaseDriver   string // "sqlite" or "postgres"
	DatabasePath     string // Path to the SQLite database file
	DatabaseDSN      string // Postgres DSN, used when DatabaseDriver is "postgres"
	DatabasePoolSize int    // Number of connections in the database pool

	// Access gate
	AllowedOrigins []string // Origin allow-list; empty disables the check
	AllowedIPs     []string // IP/CIDR allow-list; empty disables the check
	RequireAuth    bool     // Whether a bearer JWT (or API key) is required
	StaticAPIKey   string   // Static X-API-Key credential; empty disables
	JWTSecret      string   // HS256 secret for inbound JWT verification

	// Rate limiting
	RedisAddr         string // Redis server address for rate-limit counters
	RedisDB           int    // Redis database number
	RateLimitPrefix   string // Redis key prefix for rate-limit counters
	RateLimitFallback bool   // Fall back to in-memory counting when Redis is down

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json or console
	LogFile   string // Path to log file (empty for stdout)
}

// New creates a new configuration with values from environment variables,
// applying defaults where variables are not set. Upstream credentials are
// deliberately not validated here: the gateway can serve status and health
// endpoints without them, and the token manager surfaces a configuration
// error on first use.
func New() *Config {
	return &Config{
		ListenAddr:     getEnvString("LISTEN_ADDR", ":8080"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		APIEnv: getEnvString("API_ENV", "development"),

		GameAPIBaseURL:      getEnvString("GAME_API_BASE_URL", ""),
		GameAPIClientID:     getEnvString("GAME_API_CLIENT_ID", ""),
		GameAPIClientSecret: getEnvString("GAME_API_CLIENT_SECRET", ""),
		GameAPIPrefix:       getEnvString("GAME_API_PREFIX", "/game-api"),
		UpstreamTimeout:     getEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		ProviderConfigPath:  getEnvString("PROVIDER_CONFIG_PATH", ""),

		DatabaseDriver:   getEnvString("DATABASE_DRIVER", "sqlite"),
		DatabasePath:     getEnvString("DATABASE_PATH", "./data/game-gateway.db"),
		DatabaseDSN:      getEnvString("DATABASE_DSN", ""),
		DatabasePoolSize: getEnvInt("DATABASE_POOL_SIZE", 10),

		AllowedOrigins: getEnvStringSlice("ALLOWED_ORIGINS", nil),
		AllowedIPs:     getEnvStringSlice("ALLOWED_IPS", nil),
		RequireAuth:    getEnvBool("REQUIRE_AUTH", true),
		StaticAPIKey:   getEnvString("STATIC_API_KEY", ""),
		JWTSecret:      getEnvString("JWT_SECRET", ""),

		RedisAddr:         getEnvString("REDIS_ADDR", "localhost:6379"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RateLimitPrefix:   getEnvString("RATE_LIMIT_PREFIX", "ratelimit:"),
		RateLimitFallback: getEnvBool("RATE_LIMIT_FALLBACK", true),

		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogFormat: getEnvString("LOG_FORMAT", "json"),
		LogFile:   getEnvString("LOG_FILE", ""),
	}
}

// getEnvString retrieves a string value from an environment variable,
// falling back to the provided default value if the variable is not set.
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a boolean.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.ParseBool(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvInt retrieves an integer value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as an integer.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.Atoi(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a duration.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := time.ParseDuration(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvStringSlice retrieves a comma-separated string value from an
// environment variable and splits it into a slice of strings, falling back
// to the provided default value if the variable is not set or is empty.
func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
