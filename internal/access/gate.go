// Package access decides, before any upstream work happens, whether an
// inbound request may proceed. Checks run in a fixed order (origin, IP,
// identity) and short-circuit on the first failure. Each check is
// configuration-driven: an empty allow-list disables it.
package access

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Credential methods carried on a validated Principal.
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "api-key"
	MethodNone   = "none"
)

// Principal is the validated identity of an inbound caller. It exists only
// for the lifetime of one request and is never persisted.
type Principal struct {
	// Subject is the JWT subject, or "api-key" for static-key callers.
	Subject string
	// Method records which credential admitted the caller.
	Method string
}

// DeniedError is returned when a request fails one of the gate's checks.
// The reason is logged server-side; the gateway currently echoes it to the
// caller as well since it is internal-facing.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "access denied: " + e.Reason
}

// IsDenied reports whether err is an access denial.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}

// Verifier validates an inbound bearer token against the identity provider
// and returns the caller's subject.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// Config holds the gate's allow-lists and credential settings.
type Config struct {
	// AllowedOrigins is the origin allow-list; hostnames match exactly or
	// as parent domains. Empty disables the origin check.
	AllowedOrigins []string
	// AllowedIPs holds exact IPs, prefix strings, or CIDR blocks. Empty
	// disables the IP check.
	AllowedIPs []string
	// RequireAuth demands a valid bearer JWT (or the static API key).
	RequireAuth bool
	// StaticAPIKey, when set, accepts X-API-Key as an alternate credential.
	StaticAPIKey string
}

// Gate validates inbound requests.
type Gate struct {
	config   Config
	verifier Verifier
	logger   *zap.Logger
	prefixes []netip.Prefix // parsed CIDR entries from AllowedIPs
	plainIPs []string       // non-CIDR entries, matched exactly or by prefix
}

// NewGate creates a gate. CIDR entries in the IP allow-list are parsed once
// up front; unparseable entries are kept as plain prefix matches.
func NewGate(config Config, verifier Verifier, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{config: config, verifier: verifier, logger: logger}
	for _, entry := range config.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if prefix, err := netip.ParsePrefix(entry); err == nil {
				g.prefixes = append(g.prefixes, prefix)
				continue
			}
			logger.Warn("ignoring unparseable CIDR allow-list entry", zap.String("entry", entry))
			continue
		}
		g.plainIPs = append(g.plainIPs, entry)
	}
	return g
}

// Validate runs the gate's checks against the request and returns the
// caller's principal, or a DeniedError describing the first failed check.
func (g *Gate) Validate(r *http.Request) (Principal, error) {
	if err := g.checkOrigin(r); err != nil {
		return Principal{}, err
	}
	if err := g.checkIP(r); err != nil {
		return Principal{}, err
	}
	return g.checkIdentity(r)
}

// checkOrigin enforces the origin allow-list. The hostname of Origin (or
// Referer as a fallback) must equal an allow-listed hostname or be one of
// its subdomains; a missing header denies when the list is non-empty.
func (g *Gate) checkOrigin(r *http.Request) error {
	if len(g.config.AllowedOrigins) == 0 {
		return nil
	}

	raw := r.Header.Get("Origin")
	if raw == "" {
		raw = r.Header.Get("Referer")
	}
	if raw == "" {
		return &DeniedError{Reason: "origin header required"}
	}

	host := hostnameOf(raw)
	if host == "" {
		return &DeniedError{Reason: fmt.Sprintf("unparseable origin %q", raw)}
	}

	for _, allowed := range g.config.AllowedOrigins {
		allowedHost := hostnameOf(allowed)
		if allowedHost == "" {
			allowedHost = strings.ToLower(strings.TrimSpace(allowed))
		}
		if host == allowedHost || strings.HasSuffix(host, "."+allowedHost) {
			return nil
		}
	}
	return &DeniedError{Reason: fmt.Sprintf("origin %q not allowed", host)}
}

// checkIP enforces the IP allow-list against the first forwarded-for value.
// CIDR entries use real prefix containment; plain entries match exactly or
// as a textual prefix.
func (g *Gate) checkIP(r *http.Request) error {
	if len(g.config.AllowedIPs) == 0 {
		return nil
	}

	ip := clientIP(r)
	if ip == "" {
		return &DeniedError{Reason: "client ip could not be determined"}
	}

	if addr, err := netip.ParseAddr(ip); err == nil {
		for _, prefix := range g.prefixes {
			if prefix.Contains(addr) {
				return nil
			}
		}
	}
	for _, entry := range g.plainIPs {
		if ip == entry || strings.HasPrefix(ip, entry) {
			return nil
		}
	}
	return &DeniedError{Reason: fmt.Sprintf("ip %s not allowed", ip)}
}

// checkIdentity enforces the bearer-JWT / API-key requirement.
func (g *Gate) checkIdentity(r *http.Request) (Principal, error) {
	bearer := bearerToken(r)
	apiKey := r.Header.Get("X-API-Key")

	if g.config.RequireAuth {
		if bearer != "" && g.verifier != nil {
			subject, err := g.verifier.VerifyToken(r.Context(), bearer)
			if err == nil {
				return Principal{Subject: subject, Method: MethodJWT}, nil
			}
			g.logger.Debug("bearer token rejected", zap.Error(err))
		}
		if g.config.StaticAPIKey != "" && apiKey == g.config.StaticAPIKey {
			return Principal{Subject: MethodAPIKey, Method: MethodAPIKey}, nil
		}
		if bearer == "" && apiKey == "" {
			return Principal{}, &DeniedError{Reason: "missing credentials"}
		}
		return Principal{}, &DeniedError{Reason: "invalid credentials"}
	}

	// Auth not required, but a configured static key is still checked when
	// the caller presents one.
	if g.config.StaticAPIKey != "" && apiKey != "" {
		if apiKey == g.config.StaticAPIKey {
			return Principal{Subject: MethodAPIKey, Method: MethodAPIKey}, nil
		}
		return Principal{}, &DeniedError{Reason: "invalid api key"}
	}
	return Principal{Subject: "anonymous", Method: MethodNone}, nil
}

// CheckAPIKey reports whether the request carries the configured static API
// key. Used by management-style routes that are key-only.
func (g *Gate) CheckAPIKey(r *http.Request) bool {
	return g.config.StaticAPIKey != "" && r.Header.Get("X-API-Key") == g.config.StaticAPIKey
}

// bearerToken extracts the bearer credential from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

// hostnameOf extracts the lowercase hostname from an origin or referer
// value, tolerating bare hostnames.
func hostnameOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// clientIP extracts the caller's IP: first X-Forwarded-For value, then
// X-Real-IP, then the connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
