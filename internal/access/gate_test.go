package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(opts ...func(*http.Request)) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.RemoteAddr = "203.0.113.10:51334"
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func withHeader(key, value string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	if subject != "" {
		claims["sub"] = subject
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestCheckOrigin(t *testing.T) {
	gate := NewGate(Config{AllowedOrigins: []string{"https://platform.example.com"}}, nil, nil)

	tests := []struct {
		name    string
		request *http.Request
		allowed bool
	}{
		{"exact origin", newRequest(withHeader("Origin", "https://platform.example.com")), true},
		{"subdomain of allowed host", newRequest(withHeader("Origin", "https://admin.platform.example.com")), true},
		{"referer fallback", newRequest(withHeader("Referer", "https://platform.example.com/games")), true},
		{"different host", newRequest(withHeader("Origin", "https://evil.example.org")), false},
		{"suffix without dot boundary", newRequest(withHeader("Origin", "https://notplatform.example.com.attacker.io")), false},
		{"missing header", newRequest(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.checkOrigin(tt.request)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsDenied(err))
			}
		})
	}

	t.Run("empty list disables the check", func(t *testing.T) {
		open := NewGate(Config{}, nil, nil)
		assert.NoError(t, open.checkOrigin(newRequest()))
	})
}

func TestCheckIP(t *testing.T) {
	gate := NewGate(Config{AllowedIPs: []string{"10.1.2.3", "192.168.0.0/16", "172.16."}}, nil, nil)

	tests := []struct {
		name    string
		request *http.Request
		allowed bool
	}{
		{"exact ip via forwarded-for", newRequest(withHeader("X-Forwarded-For", "10.1.2.3")), true},
		{"first forwarded-for value wins", newRequest(withHeader("X-Forwarded-For", "10.1.2.3, 203.0.113.7")), true},
		{"cidr containment", newRequest(withHeader("X-Forwarded-For", "192.168.44.5")), true},
		{"outside the cidr", newRequest(withHeader("X-Forwarded-For", "192.169.0.1")), false},
		{"textual prefix entry", newRequest(withHeader("X-Forwarded-For", "172.16.9.1")), true},
		{"real-ip fallback", newRequest(withHeader("X-Real-IP", "10.1.2.3")), true},
		{"remote addr fallback", newRequest(func(r *http.Request) { r.RemoteAddr = "10.1.2.3:9000" }), true},
		{"unlisted ip", newRequest(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.checkIP(tt.request)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsDenied(err))
			}
		})
	}

	t.Run("empty list disables the check", func(t *testing.T) {
		open := NewGate(Config{}, nil, nil)
		assert.NoError(t, open.checkIP(newRequest()))
	})

	t.Run("ipv6 cidr containment", func(t *testing.T) {
		g := NewGate(Config{AllowedIPs: []string{"2001:db8::/32"}}, nil, nil)
		assert.NoError(t, g.checkIP(newRequest(withHeader("X-Forwarded-For", "2001:db8::1"))))
		assert.Error(t, g.checkIP(newRequest(withHeader("X-Forwarded-For", "2001:db9::1"))))
	})
}

func TestCheckIdentity(t *testing.T) {
	const secret = "test-secret"
	verifier := NewJWTVerifier(secret)

	t.Run("valid jwt admits with its subject", func(t *testing.T) {
		gate := NewGate(Config{RequireAuth: true}, verifier, nil)
		r := newRequest(withHeader("Authorization", "Bearer "+signToken(t, secret, "user-42")))

		principal, err := gate.Validate(r)
		require.NoError(t, err)
		assert.Equal(t, "user-42", principal.Subject)
		assert.Equal(t, MethodJWT, principal.Method)
	})

	t.Run("jwt signed with the wrong secret is rejected", func(t *testing.T) {
		gate := NewGate(Config{RequireAuth: true}, verifier, nil)
		r := newRequest(withHeader("Authorization", "Bearer "+signToken(t, "other-secret", "user-42")))

		_, err := gate.Validate(r)
		assert.True(t, IsDenied(err))
	})

	t.Run("static api key admits when auth is required", func(t *testing.T) {
		gate := NewGate(Config{RequireAuth: true, StaticAPIKey: "k123"}, verifier, nil)
		r := newRequest(withHeader("X-API-Key", "k123"))

		principal, err := gate.Validate(r)
		require.NoError(t, err)
		assert.Equal(t, MethodAPIKey, principal.Method)
	})

	t.Run("missing credentials are denied", func(t *testing.T) {
		gate := NewGate(Config{RequireAuth: true}, verifier, nil)
		_, err := gate.Validate(newRequest())
		require.True(t, IsDenied(err))
		assert.Contains(t, err.Error(), "missing credentials")
	})

	t.Run("wrong api key is denied", func(t *testing.T) {
		gate := NewGate(Config{RequireAuth: true, StaticAPIKey: "k123"}, verifier, nil)
		_, err := gate.Validate(newRequest(withHeader("X-API-Key", "nope")))
		assert.True(t, IsDenied(err))
	})

	t.Run("auth disabled admits anonymously", func(t *testing.T) {
		gate := NewGate(Config{RequireAuth: false}, nil, nil)
		principal, err := gate.Validate(newRequest())
		require.NoError(t, err)
		assert.Equal(t, MethodNone, principal.Method)
	})

	t.Run("auth disabled still rejects a wrong presented key", func(t *testing.T) {
		gate := NewGate(Config{RequireAuth: false, StaticAPIKey: "k123"}, nil, nil)
		_, err := gate.Validate(newRequest(withHeader("X-API-Key", "nope")))
		assert.True(t, IsDenied(err))
	})
}

func TestValidateOrdering(t *testing.T) {
	// Origin is checked before IP, IP before identity.
	gate := NewGate(Config{
		AllowedOrigins: []string{"platform.example.com"},
		AllowedIPs:     []string{"10.0.0.0/8"},
		RequireAuth:    true,
	}, nil, nil)

	_, err := gate.Validate(newRequest())
	require.True(t, IsDenied(err))
	assert.Contains(t, err.Error(), "origin")

	_, err = gate.Validate(newRequest(withHeader("Origin", "https://platform.example.com")))
	require.True(t, IsDenied(err))
	assert.Contains(t, err.Error(), "ip")
}

func TestCheckAPIKey(t *testing.T) {
	gate := NewGate(Config{StaticAPIKey: "k123"}, nil, nil)
	assert.True(t, gate.CheckAPIKey(newRequest(withHeader("X-API-Key", "k123"))))
	assert.False(t, gate.CheckAPIKey(newRequest(withHeader("X-API-Key", "other"))))
	assert.False(t, gate.CheckAPIKey(newRequest()))

	unset := NewGate(Config{}, nil, nil)
	assert.False(t, unset.CheckAPIKey(newRequest(withHeader("X-API-Key", ""))))
}

func TestJWTVerifier(t *testing.T) {
	t.Run("no secret configured", func(t *testing.T) {
		v := NewJWTVerifier("")
		_, err := v.VerifyToken(context.Background(), "anything")
		assert.ErrorIs(t, err, ErrNoSecret)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		claims := jwt.MapClaims{"sub": "user-42", "exp": time.Now().Add(-time.Hour).Unix()}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
		require.NoError(t, err)

		v := NewJWTVerifier("s")
		_, err = v.VerifyToken(context.Background(), tok)
		assert.Error(t, err)
	})

	t.Run("token without subject is still accepted", func(t *testing.T) {
		v := NewJWTVerifier("s")
		subject, err := v.VerifyToken(context.Background(), signTokenWith(t, "s", nil))
		require.NoError(t, err)
		assert.Equal(t, "jwt", subject)
	})

	t.Run("unexpected signing method is rejected", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		v := NewJWTVerifier("s")
		_, err = v.VerifyToken(context.Background(), tok)
		assert.Error(t, err)
	})
}

func signTokenWith(t *testing.T, secret string, extra map[string]any) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	for k, v := range extra {
		claims[k] = v
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestIsDenied(t *testing.T) {
	assert.True(t, IsDenied(&DeniedError{Reason: "x"}))
	assert.False(t, IsDenied(errors.New("x")))
	assert.False(t, IsDenied(nil))
}
