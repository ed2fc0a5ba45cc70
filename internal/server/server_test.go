package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursor2b-collab/vip-sub001/internal/access"
	"github.com/cursor2b-collab/vip-sub001/internal/audit"
	"github.com/cursor2b-collab/vip-sub001/internal/config"
	"github.com/cursor2b-collab/vip-sub001/internal/database"
	"github.com/cursor2b-collab/vip-sub001/internal/ratelimit"
	"github.com/cursor2b-collab/vip-sub001/internal/upstream"
)

type fixedTokens struct{}

func (fixedTokens) GetValidToken(context.Context) (string, error) { return "tok", nil }
func (fixedTokens) CreateToken(context.Context) (string, error)   { return "tok", nil }

// testGateway assembles a gateway over a scripted upstream.
type testGateway struct {
	server   *Server
	upstream *httptest.Server
	db       *database.DB
}

func newTestGateway(t *testing.T, cfg *config.Config, upstreamHandler http.HandlerFunc) *testGateway {
	t.Helper()

	if upstreamHandler == nil {
		upstreamHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true}`))
		}
	}
	up := httptest.NewServer(upstreamHandler)
	t.Cleanup(up.Close)

	db, err := database.New(database.Config{Driver: database.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client := upstream.NewClient(upstream.ClientConfig{BaseURL: up.URL, Timeout: 2 * time.Second},
		fixedTokens{}, ratelimit.NewMemoryLimiter(), audit.NewLogger(db, nil), nil)

	gate := access.NewGate(access.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedIPs:     cfg.AllowedIPs,
		RequireAuth:    cfg.RequireAuth,
		StaticAPIKey:   cfg.StaticAPIKey,
	}, nil, nil)

	return &testGateway{
		server:   New(cfg, gate, client, db, nil),
		upstream: up,
		db:       db,
	}
}

func openConfig() *config.Config {
	return &config.Config{
		ListenAddr:     ":0",
		RequestTimeout: 5 * time.Second,
		GameAPIPrefix:  "/game-api",
		RequireAuth:    false,
	}
}

func do(t *testing.T, s *Server, method, path string, body string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	r := httptest.NewRequest(method, path, reader)
	for _, opt := range opts {
		opt(r)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestPreflight(t *testing.T) {
	cfg := openConfig()
	cfg.RequireAuth = true // preflight must not hit the gate
	cfg.AllowedOrigins = []string{"https://platform.example.com"}
	gw := newTestGateway(t, cfg, nil)

	w := do(t, gw.server, http.MethodOptions, "/game-api/user/balance", "",
		func(r *http.Request) { r.Header.Set("Origin", "https://platform.example.com") })

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://platform.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestCORSReflection(t *testing.T) {
	cfg := openConfig()
	cfg.AllowedOrigins = []string{"platform.example.com", "admin.example.com"}
	gw := newTestGateway(t, cfg, nil)

	t.Run("unlisted origin falls back to the first configured", func(t *testing.T) {
		w := do(t, gw.server, http.MethodOptions, "/status", "",
			func(r *http.Request) { r.Header.Set("Origin", "https://evil.example.org") })
		assert.Equal(t, "platform.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("listed origin is reflected", func(t *testing.T) {
		w := do(t, gw.server, http.MethodOptions, "/status", "",
			func(r *http.Request) { r.Header.Set("Origin", "admin.example.com") })
		assert.Equal(t, "admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestCORSWithoutAllowList(t *testing.T) {
	gw := newTestGateway(t, openConfig(), nil)

	t.Run("caller origin is reflected with credentials", func(t *testing.T) {
		w := do(t, gw.server, http.MethodOptions, "/status", "",
			func(r *http.Request) { r.Header.Set("Origin", "https://anywhere.example.com") })
		assert.Equal(t, "https://anywhere.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, w.Header().Values("Vary"), "Origin")
	})

	t.Run("wildcard responses never allow credentials", func(t *testing.T) {
		w := do(t, gw.server, http.MethodOptions, "/status", "")
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestHealth(t *testing.T) {
	cfg := openConfig()
	cfg.RequireAuth = true
	gw := newTestGateway(t, cfg, nil)

	// No credentials at all; health must still answer.
	w := do(t, gw.server, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, Version, health.Version)
}

func TestAccessDenied(t *testing.T) {
	cfg := openConfig()
	cfg.RequireAuth = true
	gw := newTestGateway(t, cfg, nil)

	w := do(t, gw.server, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	body := decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "credentials")
}

func TestRouting(t *testing.T) {
	gw := newTestGateway(t, openConfig(), nil)

	t.Run("unknown route is 404", func(t *testing.T) {
		w := do(t, gw.server, http.MethodGet, "/does/not/exist", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		body := decodeEnvelope(t, w)
		assert.Contains(t, body["message"], "/does/not/exist")
	})

	t.Run("wrong method is 405 with Allow", func(t *testing.T) {
		w := do(t, gw.server, http.MethodGet, "/user/balance", "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	})

	t.Run("prefix is stripped when present", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(t, gw.server, http.MethodGet, "/game-api/status", "").Code)
		assert.Equal(t, http.StatusOK, do(t, gw.server, http.MethodGet, "/status", "").Code)
	})

	t.Run("bare prefix defaults to status", func(t *testing.T) {
		w := do(t, gw.server, http.MethodGet, "/game-api", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("trailing slash is tolerated", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(t, gw.server, http.MethodGet, "/status/", "").Code)
	})
}

func TestRelay(t *testing.T) {
	t.Run("launch-url success envelope passes through verbatim", func(t *testing.T) {
		gw := newTestGateway(t, openConfig(), func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/game/launch-url", r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "u123", body["userCode"])
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"message":"https://launch.example.com/g0"}`))
		})

		w := do(t, gw.server, http.MethodPost, "/game-api/game/launch-url",
			`{"vendorCode":"AG","gameCode":"0","userCode":"u123"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"message":"https://launch.example.com/g0"}`, w.Body.String())
	})

	t.Run("upstream error envelope passes through with its status", func(t *testing.T) {
		gw := newTestGateway(t, openConfig(), func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"message":"unknown vendor","errorCode":42}`))
		})

		w := do(t, gw.server, http.MethodPost, "/games/list", `{"vendorCode":"NOPE"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"unknown vendor","errorCode":42}`, w.Body.String())
	})

	t.Run("local validation failure never reaches upstream", func(t *testing.T) {
		var upstreamCalls int
		gw := newTestGateway(t, openConfig(), func(w http.ResponseWriter, r *http.Request) {
			upstreamCalls++
			_, _ = w.Write([]byte(`{"success":true}`))
		})

		w := do(t, gw.server, http.MethodPost, "/game/user/set-rtp",
			`{"vendorCode":"AG","userCode":"u1","rtp":120}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, upstreamCalls)
		body := decodeEnvelope(t, w)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["message"], "rtp")
	})

	t.Run("exhausted budget returns 429", func(t *testing.T) {
		gw := newTestGateway(t, openConfig(), nil)

		first := do(t, gw.server, http.MethodPost, "/betting/history/by-date-v2",
			`{"startDate":"2026-08-01"}`)
		require.Equal(t, http.StatusOK, first.Code)

		second := do(t, gw.server, http.MethodPost, "/betting/history/by-date-v2",
			`{"startDate":"2026-08-01"}`)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
		body := decodeEnvelope(t, second)
		assert.Equal(t, false, body["success"])
	})

	t.Run("malformed request body is 400", func(t *testing.T) {
		gw := newTestGateway(t, openConfig(), nil)
		w := do(t, gw.server, http.MethodPost, "/user/balance", `{"userCode":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty body is treated as an empty object", func(t *testing.T) {
		gw := newTestGateway(t, openConfig(), nil)
		w := do(t, gw.server, http.MethodPost, "/user/balance", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestLogsRoute(t *testing.T) {
	cfg := openConfig()
	cfg.StaticAPIKey = "ops-key"
	gw := newTestGateway(t, cfg, nil)

	// Drive one audited upstream call so a log row exists.
	require.Equal(t, http.StatusOK, do(t, gw.server, http.MethodGet, "/status", "").Code)

	t.Run("requires the api key", func(t *testing.T) {
		w := do(t, gw.server, http.MethodGet, "/logs", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("lists persisted call logs", func(t *testing.T) {
		w := do(t, gw.server, http.MethodGet, "/logs", "",
			func(r *http.Request) { r.Header.Set("X-API-Key", "ops-key") })
		require.Equal(t, http.StatusOK, w.Code)

		var body logsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Success)
		require.GreaterOrEqual(t, body.Total, 1)
		assert.Equal(t, "/status", body.Logs[0].Endpoint)
		assert.Equal(t, http.StatusOK, body.Logs[0].StatusCode)
	})

	t.Run("endpoint filter narrows the result", func(t *testing.T) {
		w := do(t, gw.server, http.MethodGet, "/logs?endpoint=/nothing", "",
			func(r *http.Request) { r.Header.Set("X-API-Key", "ops-key") })
		require.Equal(t, http.StatusOK, w.Code)

		var body logsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Zero(t, body.Total)
		assert.Empty(t, body.Logs)
	})
}

func TestGatewayEndToEnd(t *testing.T) {
	// Full chain: origin check, API key, prefix stripping and relay.
	cfg := openConfig()
	cfg.RequireAuth = true
	cfg.StaticAPIKey = "k1"
	cfg.AllowedOrigins = []string{"platform.example.com"}
	gw := newTestGateway(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":[{"vendorCode":"AG"}]}`))
	})

	w := do(t, gw.server, http.MethodGet, "/game-api/vendors/list", "", func(r *http.Request) {
		r.Header.Set("Origin", "https://platform.example.com")
		r.Header.Set("X-API-Key", "k1")
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":[{"vendorCode":"AG"}]}`, w.Body.String())
}
