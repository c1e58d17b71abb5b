package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gate/pkg/httpx"
)

var (
	ErrInvalidCredentials = errors.New("invalid username/password")
	ErrRateLimited        = errors.New("too many attempts")
	ErrInviteNotFound     = errors.New("invite key not found")
	ErrInviteExhausted    = errors.New("invite key has no remaining uses")
	ErrInviteKeyExists    = errors.New("invite key already exists")
	ErrAccountTaken       = errors.New("username or email is already taken")
	ErrPasswordBreached   = errors.New("password has been found in a breach")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
	ErrResetTokenExpired  = errors.New("reset token has expired")
	ErrInvalidToken       = httpx.ErrInvalidToken
	ErrTokenNotFound      = errors.New("token not found")
)

// ValidationError is returned for bad input. Reason is safe to show to the
// caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// RateLimitError wraps ErrRateLimited with the time until the next attempt
// is allowed.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
