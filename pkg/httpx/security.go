package httpx

import (
	"net/http"
	"strings"
)

const contentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"

// SecurityHeaders sets the hardening headers sent on every response. Paths
// under any of relaxCSP (the swagger UI) skip the Content-Security-Policy
// header because they serve scripts and styles.
func SecurityHeaders(relaxCSP ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			csp := true
			for _, p := range relaxCSP {
				if strings.HasPrefix(r.URL.Path, p) {
					csp = false
					break
				}
			}
			if csp {
				h.Set("Content-Security-Policy", contentSecurityPolicy)
			}

			next.ServeHTTP(w, r)
		})
	}
}
