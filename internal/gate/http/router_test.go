package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/guard"
	"github.com/aussiebroadwan/gate/internal/gate/relay"
	"github.com/aussiebroadwan/gate/internal/gate/service"
	"github.com/aussiebroadwan/gate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/gate/pkg/authsdk"
	"github.com/aussiebroadwan/gate/pkg/cryptox"
	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/aussiebroadwan/gate/pkg/limiter"
	"github.com/aussiebroadwan/gate/pkg/mailx"
	"github.com/aussiebroadwan/gate/pkg/passwordx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "gate-http")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper.key"))
	cryptox.SetArgon2Params(cryptox.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16})

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

const (
	apiPassword  = "operator-secret"
	goodPassword = "Sup3rSecret"
)

type outbox struct {
	mu   sync.Mutex
	sent []mailx.Message
}

func (o *outbox) Send(_ context.Context, msg mailx.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last() mailx.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[len(o.sent)-1]
}

type testServer struct {
	URL  string
	mail *outbox
}

type serverOption func(*Router)

func withAPIPassword(pw string) serverOption { return func(r *Router) { r.APIPassword = pw } }

func withPool(p *relay.Pool) serverOption {
	return func(r *Router) { r.Relay = relay.New(p, relay.Config{}) }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "gate.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	lim := limiter.NewMemory()
	mail := &outbox{}
	g, err := guard.New(guard.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	tokens := &service.TokenService{Store: st, TTL: 24 * time.Hour}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewRouter("test", st, lim, httpx.NewOriginPolicy("https://gate.example"), logger)
	r.APIPassword = apiPassword
	r.Guard = g
	r.TokenService = tokens
	r.InviteService = &service.InviteService{Store: st}
	r.AuthService = &service.AuthService{
		Store:         st,
		Tokens:        tokens,
		Limiter:       lim,
		Breach:        passwordx.NopChecker{},
		Policy:        passwordx.DefaultPolicy(),
		Mailer:        mail,
		LoginLimit:    service.DefaultLoginLimit,
		RegisterLimit: service.DefaultRegisterLimit,
		ResetURL:      "http://localhost/reset_password.html",
	}
	r.Relay = relay.New(relay.NewPool(), relay.Config{})
	for _, o := range opts {
		o(r)
	}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL, mail: mail}
}

func (s *testServer) client(t *testing.T) *authsdk.Client {
	t.Helper()
	c, err := authsdk.NewClient(s.URL)
	require.NoError(t, err)
	return c
}

func (s *testServer) mint(t *testing.T, uses int) string {
	t.Helper()
	res, err := s.client(t).MintInviteKey(t.Context(), authsdk.MintInviteRequest{
		UsesRemaining: uses,
		APIPassword:   apiPassword,
	})
	require.NoError(t, err)
	return res.InviteKey
}

func register(t *testing.T, c *authsdk.Client, username, invite string) string {
	t.Helper()
	res, err := c.Register(t.Context(), authsdk.RegisterRequest{
		Username:        username,
		Email:           username + "@example.com",
		Password:        goodPassword,
		ConfirmPassword: goodPassword,
		InviteKey:       invite,
	})
	require.NoError(t, err)
	require.Len(t, res.Token, 64)
	return res.Token
}

func requireAPIError(t *testing.T, err error, status int, code string) *authsdk.APIError {
	t.Helper()
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected *APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestAccountFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	c := s.client(t)

	invite := s.mint(t, 2)
	require.Regexp(t, `^BLUE16_[0-9A-F]{8}$`, invite)

	token := register(t, c, "alice", invite)

	who, err := c.ValidateToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "alice", who.Username)

	check, err := c.CheckInviteKey(ctx, strings.ToLower(invite))
	require.NoError(t, err)
	require.Equal(t, 1, check.UsesRemaining)

	_, err = c.Login(ctx, "alice", "WrongPass1")
	wrongPassword := requireAPIError(t, err, http.StatusUnauthorized, "invalid_credentials")
	_, err = c.Login(ctx, "nobody", "WrongPass1")
	requireAPIError(t, err, http.StatusUnauthorized, "invalid_credentials")
	require.Equal(t, wrongPassword.Description, err.(*authsdk.APIError).Description)

	login, err := c.Login(ctx, "alice@example.com", goodPassword)
	require.NoError(t, err)
	require.NotEqual(t, token, login.Token)

	list, err := c.ListTokens(ctx, login.Token)
	require.NoError(t, err)
	require.Len(t, list.Tokens, 2)
	for _, tok := range list.Tokens {
		require.Len(t, tok.Prefix, 8)
		require.NotNil(t, tok.ExpiresAt)
	}

	_, err = c.RevokeToken(ctx, login.Token, authsdk.RevokeTokenRequest{Token: token})
	require.NoError(t, err)
	_, err = c.ValidateToken(ctx, token)
	requireAPIError(t, err, http.StatusUnauthorized, "invalid_token")

	out, err := c.Logout(ctx)
	require.NoError(t, err)
	require.True(t, out.Success)
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	invite := s.mint(t, 1)

	_, err := s.client(t).Register(ctx, authsdk.RegisterRequest{
		Username:        "a",
		Email:           "not-an-email",
		Password:        "short",
		ConfirmPassword: "different",
		InviteKey:       invite,
	})
	apiErr := requireAPIError(t, err, http.StatusBadRequest, "invalid_request")
	require.Contains(t, apiErr.Description, "Username must be")
	require.Contains(t, apiErr.Description, "Passwords do not match.")

	register(t, s.client(t), "bob", invite)

	_, err = s.client(t).Register(ctx, authsdk.RegisterRequest{
		Username:        "carol",
		Email:           "carol@example.com",
		Password:        goodPassword,
		ConfirmPassword: goodPassword,
		InviteKey:       invite,
	})
	apiErr = requireAPIError(t, err, http.StatusBadRequest, "invalid_request")
	require.Contains(t, apiErr.Description, "no remaining uses")

	_, err = s.client(t).Register(ctx, authsdk.RegisterRequest{
		Username:        "bob",
		Email:           "bob2@example.com",
		Password:        goodPassword,
		ConfirmPassword: goodPassword,
		InviteKey:       s.mint(t, 1),
	})
	requireAPIError(t, err, http.StatusBadRequest, "conflict")
}

func TestLogin_Lockout(t *testing.T) {
	s := newTestServer(t)
	c := s.client(t)
	register(t, c, "dave", s.mint(t, 1))

	for range 5 {
		_, err := c.Login(t.Context(), "dave", "WrongPass1")
		requireAPIError(t, err, http.StatusUnauthorized, "invalid_credentials")
	}

	// locked out even with the right password
	csrf, err := c.CSRFToken(t.Context())
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, s.URL+"/login", strings.NewReader(
		url.Values{"username_or_email": {"dave"}, "password": {goodPassword}, "csrf_token": {csrf}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestLogin_MultipartForm(t *testing.T) {
	s := newTestServer(t)
	c := s.client(t)
	register(t, c, "frank", s.mint(t, 1))

	csrf, err := c.CSRFToken(t.Context())
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("username_or_email", "frank"))
	require.NoError(t, mw.WriteField("password", goodPassword))
	require.NoError(t, mw.WriteField("csrf_token", csrf))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/login", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCSRFRequired(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/login", "/register", "/forgot_password", "/reset_password", "/logout"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Post(s.URL+path, "application/json", strings.NewReader(`{"username_or_email":"x","password":"y"}`))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusForbidden, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			require.Contains(t, string(body), "invalid_csrf")
		})
	}
}

func TestCSRFRotatesAfterLogin(t *testing.T) {
	s := newTestServer(t)
	c := s.client(t)
	register(t, c, "erin", s.mint(t, 1))

	before, err := c.CSRFToken(t.Context())
	require.NoError(t, err)

	_, err = c.Login(t.Context(), "erin", goodPassword)
	require.NoError(t, err)

	after, err := c.CSRFToken(t.Context())
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	// a stale token is rejected
	req, err := http.NewRequest(http.MethodPost, s.URL+"/logout", nil)
	require.NoError(t, err)
	req.Header.Set(guard.HeaderCSRF, before)
	resp, err := c.HTTPClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPreflightAndOrigins(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		origin string
		want   int
	}{
		{"preflight allowed", http.MethodOptions, "http://localhost:5500", http.StatusOK},
		{"preflight extra origin", http.MethodOptions, "https://gate.example", http.StatusOK},
		{"preflight disallowed", http.MethodOptions, "https://evil.example", http.StatusForbidden},
		{"post disallowed", http.MethodPost, "https://evil.example", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, s.URL+"/login", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, tt.want, resp.StatusCode)
			if tt.want == http.StatusOK {
				require.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
				require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/livez")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	require.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	c := s.client(t)
	old := register(t, c, "frank", s.mint(t, 1))

	msg, err := c.ForgotPassword(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.True(t, msg.Success)
	require.Empty(t, s.mail.sent)

	same, err := c.ForgotPassword(ctx, "frank@example.com")
	require.NoError(t, err)
	require.Equal(t, msg.Message, same.Message)

	m := regexp.MustCompile(`token=([0-9a-f]{64})`).FindStringSubmatch(s.mail.last().Text)
	require.Len(t, m, 2)

	_, err = c.ResetPassword(ctx, authsdk.ResetPasswordRequest{
		ResetToken:      strings.Repeat("0", 64),
		Password:        "N3wPassword",
		ConfirmPassword: "N3wPassword",
	})
	requireAPIError(t, err, http.StatusNotFound, "not_found")

	_, err = c.ResetPassword(ctx, authsdk.ResetPasswordRequest{
		ResetToken:      m[1],
		Password:        "N3wPassword",
		ConfirmPassword: "N3wPassword",
	})
	require.NoError(t, err)

	_, err = c.ValidateToken(ctx, old)
	requireAPIError(t, err, http.StatusUnauthorized, "invalid_token")

	_, err = c.Login(ctx, "frank", "N3wPassword")
	require.NoError(t, err)
}

func TestValidateToken_BodyAndUniform401(t *testing.T) {
	s := newTestServer(t)
	token := register(t, s.client(t), "gina", s.mint(t, 1))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"body token", `{"token":"` + token + `"}`, http.StatusOK},
		{"unknown token", `{"token":"deadbeef"}`, http.StatusUnauthorized},
		{"missing token", `{}`, http.StatusUnauthorized},
	}

	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(s.URL+"/validate_token", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tt.want, resp.StatusCode)
			if tt.want != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				bodies = append(bodies, string(b))
			}
		})
	}
	require.Len(t, bodies, 2)
	require.Equal(t, bodies[0], bodies[1])
}

func TestInvites(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	c := s.client(t)
	token := register(t, c, "hank", s.mint(t, 1))

	who, err := c.ValidateToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "hank", who.Username)

	_, err = c.CheckInviteKey(ctx, "NOPE_0000")
	requireAPIError(t, err, http.StatusNotFound, "not_found")

	custom, err := c.MintInviteKey(ctx, authsdk.MintInviteRequest{
		InviteKey:     "friends-2024",
		UsesRemaining: 999,
		APIPassword:   apiPassword,
	})
	require.NoError(t, err)
	require.Equal(t, "FRIENDS-2024", custom.InviteKey)

	_, err = c.MintInviteKey(ctx, authsdk.MintInviteRequest{
		InviteKey:     "FRIENDS-2024",
		UsesRemaining: 1,
		APIPassword:   apiPassword,
	})
	requireAPIError(t, err, http.StatusBadRequest, "conflict")

	_, err = c.MintInviteKey(ctx, authsdk.MintInviteRequest{UsesRemaining: 0, APIPassword: apiPassword})
	requireAPIError(t, err, http.StatusBadRequest, "invalid_request")

	list, err := c.ListInvites(ctx, token)
	require.NoError(t, err)
	require.Empty(t, list.Invites)
}

func TestAPIPassword(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		target     string
		header     string
		body       string
		want       int
		message    string
	}{
		{"not configured", "", "/invite_keys", "", `{"api_password":"x"}`, http.StatusUnauthorized, "API_PASSWORD not configured on server"},
		{"missing", apiPassword, "/invite_keys", "", `{}`, http.StatusUnauthorized, "API password is required"},
		{"wrong", apiPassword, "/invite_keys", "", `{"api_password":"nope"}`, http.StatusUnauthorized, "Invalid API password"},
		{"query", apiPassword, "/invite_keys?api_password=" + apiPassword, "", `{}`, http.StatusOK, ""},
		{"body", apiPassword, "/invite_keys", "", `{"api_password":"` + apiPassword + `"}`, http.StatusOK, ""},
		{"bearer", apiPassword, "/invite_keys", "Bearer " + apiPassword, `{}`, http.StatusOK, ""},
		{"relay wrong", apiPassword, "/roblox/follow", "Bearer nope", `{"user_id":1}`, http.StatusUnauthorized, "Invalid API password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, withAPIPassword(tt.configured))

			req, err := http.NewRequest(http.MethodPost, s.URL+tt.target, strings.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tt.want, resp.StatusCode)

			b, _ := io.ReadAll(resp.Body)
			if tt.message != "" {
				require.Contains(t, string(b), tt.message)
			}
		})
	}
}

func TestRelayEndpoint(t *testing.T) {
	t.Run("no cookies", func(t *testing.T) {
		s := newTestServer(t)
		_, err := s.client(t).Relay(t.Context(), "follow", authsdk.RelayRequest{TargetID: 42, APIPassword: apiPassword})
		apiErr := requireAPIError(t, err, http.StatusBadRequest, "invalid_request")
		require.Equal(t, "No cookies available or invalid JSON format", apiErr.Description)
	})

	t.Run("missing target", func(t *testing.T) {
		s := newTestServer(t)
		resp, err := http.Post(s.URL+"/roblox/join_group?api_password="+apiPassword, "application/json", strings.NewReader(`{"count":2}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		b, _ := io.ReadAll(resp.Body)
		require.Contains(t, string(b), "group_id is required")
	})

	t.Run("bad target", func(t *testing.T) {
		s := newTestServer(t)
		resp, err := http.Post(s.URL+"/roblox/favorite?api_password="+apiPassword, "application/json", strings.NewReader(`{"place_id":"-3"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown action", func(t *testing.T) {
		s := newTestServer(t)
		resp, err := http.Post(s.URL+"/roblox/unfollow", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed cookie reported per account", func(t *testing.T) {
		s := newTestServer(t, withPool(relay.NewPool(relay.Credential{Cookie: "bad;cookie"})))
		res, err := s.client(t).Relay(t.Context(), "follow", authsdk.RelayRequest{TargetID: 42, Count: 5, APIPassword: apiPassword})
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, res.Status)
		require.Equal(t, "Follow action completed", res.Message)
		require.Equal(t, 1, res.Data.TotalAccountsUsed)
		require.Equal(t, 1, res.Data.ErrorCount)
		require.Equal(t, 1, res.Data.TotalAvailableCookies)
		require.Equal(t, "Invalid cookie entry", res.Data.Results[0].Error)
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	c := s.client(t)

	live, err := c.GetLiveness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := c.GetReadiness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Limiter)
}
