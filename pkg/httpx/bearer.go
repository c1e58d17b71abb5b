package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gate/pkg/slogx"
)

// ErrInvalidToken is returned by a TokenValidator for a token that is unknown,
// expired or revoked. Any other error is treated as a server fault.
var ErrInvalidToken = errors.New("invalid token")

// TokenValidator resolves an opaque bearer token to its owner.
type TokenValidator interface {
	ValidateBearer(ctx context.Context, token string) (Principal, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(authz[len("Bearer "):])
	if tok == "" {
		return "", false
	}
	return tok, true
}

// BearerAuthMiddleware rejects requests without a valid bearer token. Every
// rejected token produces the same 401 so callers cannot tell a missing token
// from an expired or unknown one. A validator failure is a 500.
func BearerAuthMiddleware(v TokenValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				WriteBearerError(w)
				return
			}

			p, err := v.ValidateBearer(ctx, raw)
			switch {
			case errors.Is(err, ErrInvalidToken):
				slogx.FromContext(ctx).Debug("bearer token rejected")
				WriteBearerError(w)
				return
			case err != nil:
				slogx.FromContext(ctx).Error("bearer token lookup failed", "error", err)
				WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
				return
			}

			ctx = slogx.With(ctx, "user_id", p.UserID)
			next.ServeHTTP(w, r.WithContext(contextWithPrincipal(ctx, p, raw)))
		})
	}
}

// WriteBearerError writes the uniform RFC 6750 invalid_token response.
func WriteBearerError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid token")
}
