// Package ratelimit implements the client-side check-and-increment used to
// protect upstream Game API endpoints that carry their own quotas. The check
// is advisory across the cluster: counters are shared through Redis but no
// distributed lock is taken.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Limit describes a call budget for one endpoint: at most Max calls per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Budgets for the upstream endpoints that are rate-limited upstream. Exceeding
// these locally fails fast so upstream quota is never wasted.
var (
	// TokenCreate bounds upstream bearer-token creation.
	TokenCreate = Limit{Max: 5, Window: 30 * time.Second}
	// BettingHistoryByDate bounds the bulk betting-history endpoint.
	BettingHistoryByDate = Limit{Max: 1, Window: time.Second}
	// BatchRTP bounds the batch RTP update endpoint.
	BatchRTP = Limit{Max: 1, Window: 3 * time.Second}
)

// LimitExceededError is returned when the budget for an endpoint is exhausted
// within the current window. It carries the configured limit so callers can
// surface it.
type LimitExceededError struct {
	Endpoint string
	Limit    Limit
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: max %d per %s",
		e.Endpoint, e.Limit.Max, e.Limit.Window)
}

// IsLimitExceeded reports whether err is a rate-limit denial.
func IsLimitExceeded(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}

// Limiter is the atomic check-and-increment primitive consulted before an
// upstream call. A nil return permits the call; a *LimitExceededError denies
// it; any other error indicates the counter backend failed.
type Limiter interface {
	Allow(ctx context.Context, endpoint string, limit Limit) error
}
