package http

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/gate/internal/gate/service"
	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/aussiebroadwan/gate/pkg/slogx"
)

// writeServiceError maps service errors to responses. Anything unknown is
// logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *service.ValidationError
		rerr *service.RateLimitError
	)

	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", verr.Reason)
	case errors.As(err, &rerr):
		secs := int(math.Ceil(rerr.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many attempts. Please try again later.")
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username/email or password.")
	case errors.Is(err, service.ErrPasswordBreached):
		httpx.WriteError(w, http.StatusBadRequest, "password_breached",
			"This password has appeared in a data breach. Please choose a different password.")
	case errors.Is(err, service.ErrAccountTaken):
		httpx.WriteError(w, http.StatusBadRequest, "conflict", "Username or email already exists.")
	case errors.Is(err, service.ErrInviteKeyExists):
		httpx.WriteError(w, http.StatusBadRequest, "conflict", "invite_key already exists")
	case errors.Is(err, service.ErrInviteExhausted):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invite key has no remaining uses.")
	case errors.Is(err, service.ErrInviteNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Invite key not found")
	case errors.Is(err, service.ErrResetTokenInvalid), errors.Is(err, service.ErrResetTokenExpired):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Invalid or expired reset token.")
	case errors.Is(err, service.ErrTokenNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Token not found")
	case errors.Is(err, service.ErrInvalidToken):
		httpx.WriteBearerError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}

// firstField returns the first non-empty value among names.
func firstField(f httpx.Fields, names ...string) string {
	for _, n := range names {
		if v := f.Get(n); v != "" {
			return v
		}
	}
	return ""
}
