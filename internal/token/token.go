// Package token owns the lifecycle of the upstream Game API bearer token:
// acquisition, caching, persistence, and refresh ahead of expiry.
package token

import (
	"context"
	"errors"
	"time"
)

// ExpiryMarginSeconds is the safety margin applied when judging whether a
// token is still usable. It absorbs clock skew and in-flight request latency
// so a token never expires mid-call.
const ExpiryMarginSeconds = 300

// ErrNoToken is returned by stores when no token record exists.
var ErrNoToken = errors.New("no token record found")

// ErrMissingCredentials is returned when token creation is attempted without
// configured upstream credentials. This is a configuration error and is
// never retried.
var ErrMissingCredentials = errors.New("game api client id and secret are not configured")

// Record represents one upstream bearer token credential. Records are
// append-style: a refresh creates a new record, nothing is mutated or
// deleted, and the latest record by creation time wins.
type Record struct {
	// Token is the opaque bearer token string.
	Token string
	// Expiration is the absolute expiry in epoch seconds.
	Expiration int64
	// CreatedAt is when this record was created.
	CreatedAt time.Time
}

// Usable reports whether the record can still be relied on at the given
// time, honoring the safety margin.
func (r Record) Usable(now time.Time) bool {
	return r.Token != "" && r.Expiration-now.Unix() > ExpiryMarginSeconds
}

// Store is the durable, cross-instance source of truth for token records.
// Implemented by the database package.
type Store interface {
	// InsertToken appends a new token record.
	InsertToken(ctx context.Context, record Record) error
	// LatestToken returns the newest record, or ErrNoToken.
	LatestToken(ctx context.Context) (*Record, error)
}
