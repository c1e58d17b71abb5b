package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/guard"
	"github.com/aussiebroadwan/gate/internal/gate/relay"
	"github.com/aussiebroadwan/gate/internal/gate/service"
	"github.com/aussiebroadwan/gate/internal/gate/store"
	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/aussiebroadwan/gate/pkg/limiter"
	"github.com/aussiebroadwan/gate/pkg/slogx"

	_ "github.com/aussiebroadwan/gate/api/gate" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store   store.Store
	limiter limiter.Limiter

	// TrustProxy makes client identity come from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// APIPassword gates invite minting and the relay. Empty rejects everything.
	APIPassword string

	Guard         *guard.Guard
	AuthService   *service.AuthService
	TokenService  *service.TokenService
	InviteService *service.InviteService
	Relay         *relay.Relay
}

func NewRouter(
	buildVersion string,
	st store.Store,
	lim limiter.Limiter,
	origins *httpx.OriginPolicy,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		limiter:      lim,
		logger:       logger,
	}

	// Preflights are answered by CORS before fields are parsed or any
	// route-level check runs.
	r.middlewares = []httpx.Middleware{
		httpx.SecurityHeaders("/swagger/"),
		slogx.HTTPMiddleware(r.logger),
		httpx.CORSMiddleware(origins),
		httpx.FieldsMiddleware(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAccount()
	r.registerTokens()
	r.registerInvites()
	r.registerRelay()
	r.registerSystem()

	r.Mux.Handle("/swagger/",
		httpx.Chain(httpSwagger.Handler(),
			httpx.RateLimitByIP(httpx.PublicLimit, r.TrustProxy),
		),
	)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gate API
//	@version		0.1.0
//	@description	Invite-gated account service with opaque API tokens, plus a relay that runs upstream actions for a pool of stored accounts.
//	@description
//	@description				Browser flows use a session cookie and a CSRF token (GET /csrf_token, echoed as X-CSRF-Token).
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				API token, or the API password on operator endpoints. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAccount() {
	h := &AccountHandler{
		AuthService: r.AuthService,
		Guard:       r.Guard,
		TrustProxy:  r.TrustProxy,
	}
	csrf := r.Guard.RequireCSRF()

	// GET /csrf_token - lenient, pages fetch it on load
	r.Mux.Handle("GET /csrf_token",
		httpx.Chain(http.HandlerFunc(h.HandleCSRF),
			httpx.RateLimitByIP(httpx.LenientLimit, r.TrustProxy),
		),
	)

	// Credential endpoints - strict by IP, then CSRF. The per-action attempt
	// counters in AuthService are the real lockout.
	r.Mux.Handle("POST /register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit, r.TrustProxy),
			csrf,
		),
	)
	r.Mux.Handle("POST /login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndField(httpx.StrictLimit, "username_or_email", r.TrustProxy),
			csrf,
		),
	)
	r.Mux.Handle("POST /forgot_password",
		httpx.Chain(http.HandlerFunc(h.HandleForgotPassword),
			httpx.RateLimitByIP(httpx.StrictLimit, r.TrustProxy),
			csrf,
		),
	)
	r.Mux.Handle("POST /reset_password",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(httpx.StrictLimit, r.TrustProxy),
			csrf,
		),
	)

	r.Mux.Handle("POST /logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit, r.TrustProxy),
			csrf,
		),
	)
}

func (r *Router) registerTokens() {
	h := &TokensHandler{
		AuthService:  r.AuthService,
		TokenService: r.TokenService,
	}
	bearer := httpx.BearerAuthMiddleware(r.AuthService)

	// Validation is called by other services on every request - lenient
	r.Mux.Handle("POST /validate_token",
		httpx.Chain(http.HandlerFunc(h.HandleValidateToken),
			httpx.RateLimitByIP(httpx.LenientLimit, r.TrustProxy),
		),
	)

	whoami := httpx.Chain(http.HandlerFunc(h.HandleWhoAmI),
		httpx.RateLimitByIP(httpx.LenientLimit, r.TrustProxy),
		bearer,
	)
	r.Mux.Handle("GET /auth/validate", whoami)
	r.Mux.Handle("POST /auth/validate", whoami)

	// Token management - moderate by user
	r.Mux.Handle("GET /tokens",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			bearer,
			httpx.RateLimitByUser(httpx.ModerateLimit, r.TrustProxy),
		),
	)
	r.Mux.Handle("DELETE /tokens",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			bearer,
			httpx.RateLimitByUser(httpx.ModerateLimit, r.TrustProxy),
		),
	)
}

func (r *Router) registerInvites() {
	h := &InvitesHandler{InviteService: r.InviteService}

	// POST /invite_keys - operator only
	r.Mux.Handle("POST /invite_keys",
		httpx.Chain(http.HandlerFunc(h.HandleMint),
			httpx.RateLimitByIP(httpx.ModerateLimit, r.TrustProxy),
			RequireAPIPassword(r.APIPassword, denyAsError),
		),
	)

	// POST /check_invite_key - public, strict so keys cannot be enumerated
	r.Mux.Handle("POST /check_invite_key",
		httpx.Chain(http.HandlerFunc(h.HandleCheck),
			httpx.RateLimitByIP(httpx.StrictLimit, r.TrustProxy),
		),
	)

	r.Mux.Handle("GET /invites",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.BearerAuthMiddleware(r.AuthService),
			httpx.RateLimitByUser(httpx.ModerateLimit, r.TrustProxy),
		),
	)
}

func (r *Router) registerRelay() {
	for _, name := range relay.Names() {
		a, _ := relay.Lookup(name)
		h := &RelayHandler{Relay: r.Relay, Action: a}

		r.Mux.Handle("POST /roblox/"+name,
			httpx.Chain(h,
				httpx.RateLimitByIP(httpx.ModerateLimit, r.TrustProxy),
				RequireAPIPassword(r.APIPassword, denyAsRelay),
			),
		)
	}

	r.Mux.HandleFunc("POST /roblox/{action}", func(w http.ResponseWriter, req *http.Request) {
		writeRelay(w, http.StatusNotFound, "Unknown action: "+req.PathValue("action"), nil)
	})
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit, r.TrustProxy),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.limiter),
			httpx.RateLimitByIP(httpx.LenientLimit, r.TrustProxy),
		),
	)
}
