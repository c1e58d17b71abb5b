package http

import (
	"net/http"

	"github.com/aussiebroadwan/gate/pkg/cryptox"
	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/aussiebroadwan/gate/pkg/slogx"
)

const apiPasswordField = "api_password"

// apiPasswordFrom returns the submitted API password: query string, then
// request body, then the Bearer header.
func apiPasswordFrom(r *http.Request) string {
	f := httpx.FieldsFromRequest(r)
	if v, ok := f.Query(apiPasswordField); ok && v != "" {
		return v
	}
	if v, ok := f.Body(apiPasswordField); ok && v != "" {
		return v
	}
	tok, _ := httpx.BearerToken(r)
	return tok
}

// RequireAPIPassword guards operator endpoints with a shared secret. With no
// secret configured every request is rejected. deny writes the rejection in
// the endpoint's own response shape.
func RequireAPIPassword(secret string, deny func(w http.ResponseWriter, code int, msg string)) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			if secret == "" {
				log.Error("api password requested but not configured", "path", r.URL.Path)
				deny(w, http.StatusUnauthorized, "API_PASSWORD not configured on server")
				return
			}

			submitted := apiPasswordFrom(r)
			if submitted == "" {
				deny(w, http.StatusUnauthorized, "API password is required")
				return
			}
			if !cryptox.EqualTokens(secret, submitted) {
				log.Warn("invalid api password", "path", r.URL.Path)
				deny(w, http.StatusUnauthorized, "Invalid API password")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func denyAsError(w http.ResponseWriter, code int, msg string) {
	httpx.WriteError(w, code, "unauthorized", msg)
}
