// Package ratelimit caps how often a client may attempt an operation within a
// fixed time window.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultLimit is the number of login attempts allowed per window.
	DefaultLimit = 5
	// DefaultWindow is the length of a rate limit window.
	DefaultWindow = time.Minute
)

// ErrTooManyAttempts is reported to callers once a key exhausted its window.
var ErrTooManyAttempts = errors.New("too many attempts")

// Limiter decides whether another attempt for key is admitted. Implementations
// must admit at most their configured limit per window, even under concurrent calls.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
