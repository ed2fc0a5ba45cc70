// Package upstream performs authenticated, retried, and audited calls to the
// Game API on behalf of the gateway's routes.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cursor2b-collab/vip-sub001/internal/audit"
	"github.com/cursor2b-collab/vip-sub001/internal/ratelimit"
)

// ErrUpstreamTimeout indicates the upstream call exceeded its deadline. It
// is distinct from other transport failures so callers can surface it.
var ErrUpstreamTimeout = errors.New("upstream request timed out")

// TokenSource supplies bearer tokens for upstream calls. Implemented by the
// token manager.
type TokenSource interface {
	// GetValidToken returns a token with a comfortable expiry margin.
	GetValidToken(ctx context.Context) (string, error)
	// CreateToken forces a fresh token, bypassing all caches.
	CreateToken(ctx context.Context) (string, error)
}

// APIError describes an upstream HTTP error (status >= 400).
type APIError struct {
	Status  int
	Message string
	Code    int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("game api returned status %d: %s", e.Status, e.Message)
}

// Envelope is the upstream response shape relayed to gateway callers.
type Envelope struct {
	Success   bool            `json:"success"`
	Message   json.RawMessage `json:"message,omitempty"`
	ErrorCode int             `json:"errorCode,omitempty"`
}

// MessageString renders the envelope message, which may be a JSON string or
// any other JSON value.
func (e *Envelope) MessageString() string {
	if e == nil || len(e.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Message, &s); err == nil {
		return s
	}
	return string(e.Message)
}

// Response is the raw outcome of one upstream operation, left for the
// route handler to relay.
type Response struct {
	StatusCode int
	Body       []byte
	// Envelope is non-nil when the body parsed as the standard envelope.
	Envelope *Envelope
}

// ClientConfig configures the upstream client.
type ClientConfig struct {
	// BaseURL is the Game API base URL.
	BaseURL string
	// Timeout bounds each upstream attempt.
	Timeout time.Duration
}

// Client performs one authenticated, retried, audited call per logical
// operation.
type Client struct {
	config  ClientConfig
	tokens  TokenSource
	limiter ratelimit.Limiter
	auditor *audit.Logger
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an upstream client. auditor may be nil to disable audit
// logging (tests); limiter may be nil to disable the per-endpoint budgets.
func NewClient(config ClientConfig, tokens TokenSource, limiter ratelimit.Limiter, auditor *audit.Logger, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		config:  config,
		tokens:  tokens,
		limiter: limiter,
		auditor: auditor,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Do performs the operation against the upstream API. On a 401 it forces a
// fresh token and retries exactly once; a second 401 is surfaced as the
// final error. Every attempt, including the retry, produces its own audit
// record. The returned Response is non-nil whenever an HTTP response was
// received, even alongside an *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	tok, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil && methodHasBody(method) {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	resp, err := c.attempt(ctx, method, path, payload, tok)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Info("upstream returned 401, forcing token refresh", zap.String("path", path))
		tok, err = c.tokens.CreateToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("token refresh after 401 failed: %w", err)
		}
		resp, err = c.attempt(ctx, method, path, payload, tok)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode >= 400 {
		return resp, c.apiError(resp)
	}
	return resp, nil
}

// attempt sends the request once and writes its audit record. The record is
// written regardless of outcome, and an audit failure never reaches the
// caller (the audit logger swallows it).
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, tok string) (*Response, error) {
	record := audit.NewRecord(method, path).WithRequestBody(payload)
	start := time.Now()

	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		record.WithError(err).WithDuration(time.Since(start))
		c.logAudit(ctx, record)
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, readErr := io.ReadAll(httpResp.Body)
	duration := time.Since(start)
	if readErr != nil {
		record.WithStatus(httpResp.StatusCode).WithError(readErr).WithDuration(duration)
		c.logAudit(ctx, record)
		return nil, fmt.Errorf("failed to read upstream response: %w", readErr)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Body: respBody}
	var env Envelope
	if json.Unmarshal(respBody, &env) == nil {
		resp.Envelope = &env
	}

	record.WithStatus(httpResp.StatusCode).WithResponseBody(respBody).WithDuration(duration)
	if httpResp.StatusCode >= 400 {
		record.WithErrorMessage(c.apiError(resp).Error())
	}
	c.logAudit(ctx, record)

	return resp, nil
}

// apiError derives the error for a >=400 response, preferring the upstream
// envelope's message when it parsed.
func (c *Client) apiError(resp *Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	if resp.Envelope != nil {
		if msg := resp.Envelope.MessageString(); msg != "" {
			apiErr.Message = msg
		}
		apiErr.Code = resp.Envelope.ErrorCode
	}
	return apiErr
}

func (c *Client) logAudit(ctx context.Context, record *audit.Record) {
	if c.auditor != nil {
		c.auditor.Log(ctx, record)
	}
}

// classifyTransportError maps deadline expiry onto the dedicated timeout
// error so callers can distinguish it from other transport failures.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("upstream request failed: %w", err)
}

// methodHasBody reports whether the method carries a JSON body.
func methodHasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
