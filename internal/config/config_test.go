package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "development", cfg.APIEnv)
	assert.Equal(t, "/game-api", cfg.GameAPIPrefix)
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 10, cfg.DatabasePoolSize)
	assert.True(t, cfg.RequireAuth)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, "ratelimit:", cfg.RateLimitPrefix)
	assert.True(t, cfg.RateLimitFallback)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("GAME_API_BASE_URL", "https://api.example.com")
	t.Setenv("GAME_API_PREFIX", "/fn-game")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_POOL_SIZE", "25")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("ALLOWED_IPS", "10.0.0.0/8,192.168.1.1")
	t.Setenv("REQUIRE_AUTH", "false")
	t.Setenv("RATE_LIMIT_FALLBACK", "false")

	cfg := New()

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "https://api.example.com", cfg.GameAPIBaseURL)
	assert.Equal(t, "/fn-game", cfg.GameAPIPrefix)
	assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 25, cfg.DatabasePoolSize)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.AllowedIPs)
	assert.False(t, cfg.RequireAuth)
	assert.False(t, cfg.RateLimitFallback)
}

func TestNewMalformedValuesFallBack(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("DATABASE_POOL_SIZE", "lots")
	t.Setenv("REQUIRE_AUTH", "maybe")

	cfg := New()

	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10, cfg.DatabasePoolSize)
	assert.True(t, cfg.RequireAuth)
}
