// Package limiter counts failed attempts per action and client so repeated
// failures lock the client out for a while.
//
// A key is limited once its counter reaches the maximum and stays limited
// until the window has passed since the last recorded failure. Success should
// call Clear.
package limiter

import (
	"context"
	"time"
)

// Attempt counter namespaces. A login lockout never affects registration.
const (
	ActionLogin    = "login_attempts"
	ActionRegister = "register_attempts"
)

// Key builds the counter key for an action and a client identity, e.g.
// "login_attempts_203.0.113.7".
func Key(action, identity string) string {
	return action + "_" + identity
}

// Result is the outcome of a Check.
type Result struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}

// Limiter is implemented by the in-memory and Redis backends.
type Limiter interface {
	// Check reports whether another attempt is allowed. It never increments.
	Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (Result, error)
	// Increment records a failed attempt and restarts the window.
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
	// Clear forgets the key.
	Clear(ctx context.Context, key string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Sweeper is implemented by backends that must drop stale keys themselves.
type Sweeper interface {
	Sweep(ctx context.Context) int
}
