// Package guard owns the browser session: the signed session cookie that
// remembers who is logged in, and the double-submit CSRF token that every
// state-changing browser request has to echo back.
package guard

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gate/pkg/cryptox"
	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/aussiebroadwan/gate/pkg/slogx"
	"github.com/gorilla/sessions"
)

const (
	SessionName = "gate_session"
	CookieName  = "XSRF-TOKEN"
	FieldName   = "csrf_token"

	HeaderCSRF = "X-CSRF-Token"
	HeaderXSRF = "X-XSRF-Token"

	keyCSRF     = "csrf_token"
	keyUserID   = "user_id"
	keyUsername = "username"
)

var ErrNoSecret = errors.New("guard: session secret is required")

type Config struct {
	Secret []byte        // HMAC key for the session cookie
	MaxAge time.Duration // session and XSRF cookie lifetime
	Secure bool          // set the Secure attribute; disable only for plain-http local dev
}

type Guard struct {
	store  *sessions.CookieStore
	maxAge int
	secure bool
}

func New(cfg Config) (*Guard, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}

	maxAge := int(cfg.MaxAge / time.Second)
	st := sessions.NewCookieStore(cfg.Secret)
	st.MaxAge(maxAge)
	st.Options.Path = "/"
	st.Options.HttpOnly = true
	st.Options.Secure = cfg.Secure
	st.Options.SameSite = http.SameSiteStrictMode

	return &Guard{store: st, maxAge: maxAge, secure: cfg.Secure}, nil
}

// session returns the request's session. A cookie that fails to decode
// (tampered, or signed with an old secret) yields a fresh empty session.
func (g *Guard) session(r *http.Request) *sessions.Session {
	sess, err := g.store.Get(r, SessionName)
	if err != nil {
		slogx.FromContext(r.Context()).Debug("discarding undecodable session cookie", "err", err)
	}
	return sess
}

func (g *Guard) save(w http.ResponseWriter, r *http.Request, sess *sessions.Session) error {
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Issue returns the session's CSRF token, creating one if the session has
// none, and mirrors it into the script-readable XSRF-TOKEN cookie.
func (g *Guard) Issue(w http.ResponseWriter, r *http.Request) (string, error) {
	sess := g.session(r)
	if tok, ok := sess.Values[keyCSRF].(string); ok && tok != "" {
		g.setXSRFCookie(w, tok)
		return tok, nil
	}
	return g.rotate(w, r, sess)
}

// Regenerate replaces the CSRF token. It is called after every successful
// login, registration and password reset.
func (g *Guard) Regenerate(w http.ResponseWriter, r *http.Request) (string, error) {
	return g.rotate(w, r, g.session(r))
}

func (g *Guard) rotate(w http.ResponseWriter, r *http.Request, sess *sessions.Session) (string, error) {
	tok, err := cryptox.GenerateHexToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	sess.Values[keyCSRF] = tok
	if err := g.save(w, r, sess); err != nil {
		return "", err
	}
	g.setXSRFCookie(w, tok)
	return tok, nil
}

// Validate compares the submitted token against the session value in
// constant time. When the session holds no token the XSRF-TOKEN cookie is
// the expected value instead.
func (g *Guard) Validate(r *http.Request, submitted string) bool {
	expected, _ := g.session(r).Values[keyCSRF].(string)
	if expected == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			expected = c.Value
		}
	}
	return cryptox.EqualTokens(expected, submitted)
}

// Submitted returns the token the client echoed: the csrf_token field
// first, then the X-CSRF-Token and X-XSRF-Token headers.
func Submitted(r *http.Request) string {
	if v := httpx.FieldsFromRequest(r).Get(FieldName); v != "" {
		return v
	}
	if v := r.Header.Get(HeaderCSRF); v != "" {
		return v
	}
	return r.Header.Get(HeaderXSRF)
}

// Login records the user in the session and rotates the CSRF token in the
// same cookie write.
func (g *Guard) Login(w http.ResponseWriter, r *http.Request, userID, username string) (string, error) {
	sess := g.session(r)
	sess.Values[keyUserID] = userID
	sess.Values[keyUsername] = username
	return g.rotate(w, r, sess)
}

// Logout drops the identity from the session and hands out a new CSRF token.
func (g *Guard) Logout(w http.ResponseWriter, r *http.Request) (string, error) {
	sess := g.session(r)
	delete(sess.Values, keyUserID)
	delete(sess.Values, keyUsername)
	return g.rotate(w, r, sess)
}

// Identity returns the logged-in user recorded by Login.
func (g *Guard) Identity(r *http.Request) (httpx.Principal, bool) {
	sess := g.session(r)
	id, _ := sess.Values[keyUserID].(string)
	if id == "" {
		return httpx.Principal{}, false
	}
	name, _ := sess.Values[keyUsername].(string)
	return httpx.Principal{UserID: id, Username: name}, true
}

func (g *Guard) setXSRFCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   g.maxAge,
		Secure:   g.secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireCSRF rejects unsafe requests whose submitted token does not match.
// Preflights and safe methods pass through untouched.
func (g *Guard) RequireCSRF() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if !g.Validate(r, Submitted(r)) {
				slogx.FromContext(r.Context()).Warn("csrf validation failed", "path", r.URL.Path)
				httpx.WriteError(w, http.StatusForbidden, "invalid_csrf", "Invalid CSRF token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
