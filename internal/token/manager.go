package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cursor2b-collab/vip-sub001/internal/ratelimit"
)

// tokenCreateEndpoint is the limiter key for upstream token creation.
const tokenCreateEndpoint = "game-api:token-create"

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// BaseURL is the upstream Game API base URL.
	BaseURL string
	// ClientID and ClientSecret are the upstream credentials. Token
	// creation without them fails with ErrMissingCredentials.
	ClientID     string
	ClientSecret string
	// TokenPath is the credential-exchange path, "/auth/token" by default.
	TokenPath string
	// HTTPTimeout bounds the token-creation call.
	HTTPTimeout time.Duration
}

// Manager guarantees that every outbound upstream call is accompanied by a
// currently-valid bearer token while minimizing token-creation calls, which
// are themselves rate-limited upstream.
//
// CreateToken is not mutually exclusive across instances: two concurrent
// invocations may both decide to refresh and mint duplicate valid tokens.
// The limiter bounds the blast radius and the upstream accepts the newest
// token, so the race is benign and left unserialized.
type Manager struct {
	config  ManagerConfig
	store   Store
	cache   Cache
	limiter ratelimit.Limiter
	client  *http.Client
	logger  *zap.Logger

	now func() time.Time
}

// NewManager creates a token manager. cache may be nil to disable in-process
// caching; the durable store remains authoritative either way.
func NewManager(config ManagerConfig, store Store, cache Cache, limiter ratelimit.Limiter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if config.TokenPath == "" {
		config.TokenPath = "/auth/token"
	}
	return &Manager{
		config:  config,
		store:   store,
		cache:   cache,
		limiter: limiter,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
	}
}

// GetValidToken returns a bearer token whose expiration is more than the
// safety margin away. Lookup order: memory cache, then the latest persisted
// record (repopulating the cache on a hit), then token creation.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	now := m.now()

	if m.cache != nil {
		if record, ok := m.cache.Get(now); ok {
			return record.Token, nil
		}
	}

	if m.store != nil {
		record, err := m.store.LatestToken(ctx)
		if err != nil && err != ErrNoToken {
			m.logger.Warn("token store read failed, falling through to creation", zap.Error(err))
		}
		if err == nil && record.Usable(now) {
			if m.cache != nil {
				m.cache.Put(*record)
			}
			return record.Token, nil
		}
	}

	return m.CreateToken(ctx)
}

// tokenCreateRequest is the credential exchange payload.
type tokenCreateRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// tokenCreateResponse is the upstream response to a credential exchange.
type tokenCreateResponse struct {
	Success    bool            `json:"success"`
	Token      string          `json:"token"`
	Expiration int64           `json:"expiration"`
	Message    json.RawMessage `json:"message,omitempty"`
	ErrorCode  int             `json:"errorCode,omitempty"`
}

// CreateToken exchanges the configured client credentials for a fresh bearer
// token, bypassing both caches. The token-creation budget (5 per 30s,
// cluster-wide) is consulted first; when exhausted the call fails fast and
// upstream is never contacted.
func (m *Manager) CreateToken(ctx context.Context) (string, error) {
	if m.config.ClientID == "" || m.config.ClientSecret == "" {
		return "", ErrMissingCredentials
	}

	if m.limiter != nil {
		if err := m.limiter.Allow(ctx, tokenCreateEndpoint, ratelimit.TokenCreate); err != nil {
			return "", err
		}
	}

	body, err := json.Marshal(tokenCreateRequest{
		ClientID:     m.config.ClientID,
		ClientSecret: m.config.ClientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.config.BaseURL+m.config.TokenPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token creation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	var parsed tokenCreateResponse
	parseErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (parseErr == nil && !parsed.Success) {
		msg := upstreamMessage(parsed.Message)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("token creation failed with status %d: %s (code %d)",
			resp.StatusCode, msg, parsed.ErrorCode)
	}
	if parseErr != nil {
		return "", fmt.Errorf("failed to parse token response: %w", parseErr)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("token creation succeeded but response carried no token")
	}

	minted := Record{Token: parsed.Token, Expiration: parsed.Expiration}
	if !minted.Usable(m.now()) {
		m.logger.Warn("upstream issued a token already inside the expiry margin",
			zap.Int64("expiration", parsed.Expiration),
			zap.Int64("margin_seconds", ExpiryMarginSeconds))
	}

	m.SaveToken(ctx, parsed.Token, parsed.Expiration)
	return parsed.Token, nil
}

// SaveToken records a token in the memory cache and, best-effort, the
// durable store. The cache is updated synchronously first so a slow or
// failed durable write never blocks subsequent reads within this process.
func (m *Manager) SaveToken(ctx context.Context, tok string, expiration int64) {
	record := Record{Token: tok, Expiration: expiration, CreatedAt: m.now()}

	if m.cache != nil {
		m.cache.Put(record)
	}

	if m.store == nil {
		return
	}
	if err := m.store.InsertToken(ctx, record); err != nil {
		m.logger.Error("failed to persist token record", zap.Error(err))
	}
}

// upstreamMessage renders the upstream envelope message, which may be a
// string or an arbitrary JSON value.
func upstreamMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
