package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cursor2b-collab/vip-sub001/internal/access"
	"github.com/cursor2b-collab/vip-sub001/internal/audit"
	"github.com/cursor2b-collab/vip-sub001/internal/config"
	"github.com/cursor2b-collab/vip-sub001/internal/database"
	"github.com/cursor2b-collab/vip-sub001/internal/logging"
	"github.com/cursor2b-collab/vip-sub001/internal/ratelimit"
	"github.com/cursor2b-collab/vip-sub001/internal/server"
	"github.com/cursor2b-collab/vip-sub001/internal/token"
	"github.com/cursor2b-collab/vip-sub001/internal/upstream"
)

// Server command flags
var (
	serverEnvFile    string
	serverListenAddr string
	serverLogLevel   string
	serverConfigPath string
)

// For testing
var newDatabaseFromConfig = database.NewFromConfig

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Game API gateway server",
	Long:  `Start the gateway server using configuration from the environment.`,
	Run:   runServer,
}

func init() {
	serverCmd.Flags().StringVar(&serverEnvFile, "env", ".env", "Path to .env file")
	serverCmd.Flags().StringVar(&serverListenAddr, "addr", "", "Address to listen on (overrides env var)")
	serverCmd.Flags().StringVar(&serverLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides env var)")
	serverCmd.Flags().StringVarP(&serverConfigPath, "config", "c", "", "Path to YAML config file for the upstream provider (overrides PROVIDER_CONFIG_PATH)")
}

func runServer(cmd *cobra.Command, args []string) {
	// Load .env file if it exists
	if _, err := os.Stat(serverEnvFile); err == nil {
		if err := godotenv.Load(serverEnvFile); err != nil {
			log.Printf("Warning: Error loading %s file: %v", serverEnvFile, err)
		} else {
			log.Printf("Loaded environment from %s", serverEnvFile)
		}
	}

	// Apply command line overrides to environment variables
	if serverListenAddr != "" {
		if err := os.Setenv("LISTEN_ADDR", serverListenAddr); err != nil {
			log.Fatalf("Failed to set LISTEN_ADDR environment variable: %v", err)
		}
	}
	if serverLogLevel != "" {
		if err := os.Setenv("LOG_LEVEL", serverLogLevel); err != nil {
			log.Fatalf("Failed to set LOG_LEVEL environment variable: %v", err)
		}
	}
	if serverConfigPath != "" {
		if err := os.Setenv("PROVIDER_CONFIG_PATH", serverConfigPath); err != nil {
			log.Fatalf("Failed to set PROVIDER_CONFIG_PATH environment variable: %v", err)
		}
	}

	cfg := config.New()

	zapLogger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if err := zapLogger.Sync(); err != nil {
			if !strings.Contains(err.Error(), "inappropriate ioctl for device") {
				log.Printf("Error syncing zap logger: %v", err)
			}
		}
	}()

	// Fail fast if the configured address is already in use
	if ln, err := net.Listen("tcp", cfg.ListenAddr); err != nil {
		zapLogger.Fatal("Listen address unavailable (already in use?)",
			zap.String("addr", cfg.ListenAddr), zap.Error(err))
	} else {
		_ = ln.Close()
	}

	db, err := newDatabaseFromConfig(database.Config{
		Driver:       database.DriverType(cfg.DatabaseDriver),
		Path:         cfg.DatabasePath,
		DSN:          cfg.DatabaseDSN,
		MaxOpenConns: cfg.DatabasePoolSize,
	})
	if err != nil {
		zapLogger.Fatal("Failed to connect to database",
			zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	switch database.DriverType(cfg.DatabaseDriver) {
	case database.DriverPostgres:
		zapLogger.Info("Connected to PostgreSQL database")
	default:
		zapLogger.Info("Connected to SQLite database", zap.String("path", cfg.DatabasePath))
	}

	limiter := buildLimiter(cfg, zapLogger)

	var provider *upstream.ProviderConfig
	if cfg.ProviderConfigPath != "" {
		provider, err = upstream.LoadProviderConfig(cfg.ProviderConfigPath)
		if err != nil {
			zapLogger.Fatal("Failed to load provider config",
				zap.String("path", cfg.ProviderConfigPath), zap.Error(err))
		}
	}
	baseURL, upstreamTimeout, tokenPath := resolveUpstreamSettings(cfg, provider)

	manager := token.NewManager(token.ManagerConfig{
		BaseURL:      baseURL,
		ClientID:     cfg.GameAPIClientID,
		ClientSecret: cfg.GameAPIClientSecret,
		TokenPath:    tokenPath,
		HTTPTimeout:  upstreamTimeout,
	}, db, token.NewMemoryCache(), limiter, zapLogger)

	auditor := audit.NewLogger(db, zapLogger)
	client := upstream.NewClient(upstream.ClientConfig{
		BaseURL: baseURL,
		Timeout: upstreamTimeout,
	}, manager, limiter, auditor, zapLogger)

	var verifier access.Verifier
	if cfg.JWTSecret != "" {
		verifier = access.NewJWTVerifier(cfg.JWTSecret)
	}
	gate := access.NewGate(access.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedIPs:     cfg.AllowedIPs,
		RequireAuth:    cfg.RequireAuth,
		StaticAPIKey:   cfg.StaticAPIKey,
	}, verifier, zapLogger)

	srv := server.New(cfg, gate, client, db, zapLogger)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("Server error", zap.Error(err))
			done <- syscall.SIGTERM
		}
	}()
	zapLogger.Info("Gateway started",
		zap.String("addr", cfg.ListenAddr),
		zap.String("env", cfg.APIEnv))

	<-done
	zapLogger.Info("Shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Graceful shutdown failed", zap.Error(err))
		osExit(1)
	}
	zapLogger.Info("Gateway stopped")
}

// resolveUpstreamSettings merges the environment with an optional provider
// file. Environment values win when both are set; the file fills the gaps.
func resolveUpstreamSettings(cfg *config.Config, provider *upstream.ProviderConfig) (baseURL string, timeout time.Duration, tokenPath string) {
	baseURL = cfg.GameAPIBaseURL
	timeout = cfg.UpstreamTimeout
	if provider == nil {
		return baseURL, timeout, ""
	}
	if baseURL == "" {
		baseURL = provider.BaseURL
	}
	if os.Getenv("UPSTREAM_TIMEOUT") == "" && provider.Timeout > 0 {
		timeout = provider.Timeout
	}
	return baseURL, timeout, provider.TokenEndpoint
}

// buildLimiter wires the Redis-backed limiter, optionally falling back to
// in-memory counting when Redis is unreachable at runtime. REDIS_ADDR set
// to "none" disables Redis entirely.
func buildLimiter(cfg *config.Config, logger *zap.Logger) ratelimit.Limiter {
	if cfg.RedisAddr == "" || cfg.RedisAddr == "none" {
		logger.Info("Rate limiting using in-memory counters")
		return ratelimit.NewMemoryLimiter()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	logger.Info("Rate limiting using Redis counters",
		zap.String("addr", cfg.RedisAddr),
		zap.Bool("fallback", cfg.RateLimitFallback))
	return ratelimit.NewRedisLimiter(ratelimit.NewRedisGoAdapter(rdb), ratelimit.RedisLimiterConfig{
		KeyPrefix:      cfg.RateLimitPrefix,
		EnableFallback: cfg.RateLimitFallback,
	})
}
