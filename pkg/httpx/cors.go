package httpx

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/gate/pkg/slogx"
)

// DefaultAllowedOrigins are the local development origins always accepted.
var DefaultAllowedOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://localhost:5500",
	"https://localhost:5500",
	"http://127.0.0.1",
	"https://127.0.0.1",
	"http://127.0.0.1:5500",
	"https://127.0.0.1:5500",
}

const (
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-CSRF-Token, X-XSRF-Token, X-Requested-With"
	corsMaxAge       = "86400"
)

// OriginPolicy is an allow-list of browser origins.
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy builds a policy from the defaults plus extra origins.
// Trailing slashes are ignored.
func NewOriginPolicy(extra ...string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{})}
	for _, o := range append(append([]string{}, DefaultAllowedOrigins...), extra...) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			p.allowed[strings.ToLower(o)] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether origin is on the list.
func (p *OriginPolicy) Allowed(origin string) bool {
	_, ok := p.allowed[strings.ToLower(strings.TrimRight(origin, "/"))]
	return ok
}

// RequestOrigin returns the Origin header, or the scheme and host of the
// Referer when Origin is absent.
func RequestOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	ref := r.Header.Get("Referer")
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// CORSMiddleware answers preflight requests before any other handler runs
// and rejects state-changing requests from origins outside the allow-list.
// Requests with no origin information (curl, server-to-server) pass through.
func CORSMiddleware(p *OriginPolicy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := RequestOrigin(r)
			allowed := origin != "" && p.Allowed(origin)

			if r.Method == http.MethodOptions {
				if !allowed {
					slogx.FromContext(r.Context()).Warn("preflight from disallowed origin", "origin", origin)
					WriteError(w, http.StatusForbidden, "origin_not_allowed", "Origin not allowed")
					return
				}
				setCORSHeaders(w, origin)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusOK)
				return
			}

			if origin != "" && !allowed {
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					slogx.FromContext(r.Context()).Warn("request from disallowed origin", "origin", origin, "path", r.URL.Path)
					WriteError(w, http.StatusForbidden, "origin_not_allowed", "Origin not allowed")
					return
				}
			} else if allowed {
				setCORSHeaders(w, origin)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setCORSHeaders(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Add("Vary", "Origin")
}
