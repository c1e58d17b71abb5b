package httpx_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("first"), mw("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestParseFields(t *testing.T) {
	t.Run("json scalars", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/?api_password=q", strings.NewReader(`{"count":3,"user_id":"42","flag":true,"nested":{"a":1}}`))
		req.Header.Set("Content-Type", "application/json")

		f, err := httpx.ParseFields(httptest.NewRecorder(), req)
		require.NoError(t, err)
		require.Equal(t, "3", f.Get("count"))
		require.Equal(t, "42", f.Get("user_id"))
		require.Equal(t, "true", f.Get("flag"))
		require.Empty(t, f.Get("nested"))
		require.Equal(t, "q", f.Get("api_password"))

		_, ok := f.Body("api_password")
		require.False(t, ok)
		v, ok := f.Query("api_password")
		require.True(t, ok)
		require.Equal(t, "q", v)
	})

	t.Run("urlencoded form", func(t *testing.T) {
		form := url.Values{"username": {"alice"}, "password": {"Secret123"}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		f, err := httpx.ParseFields(httptest.NewRecorder(), req)
		require.NoError(t, err)
		require.Equal(t, "alice", f.Get("username"))
		require.Equal(t, "Secret123", f.Get("password"))
	})

	t.Run("multipart form", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("csrf_token", "abc"))
		require.NoError(t, mw.WriteField("username", "alice"))
		fw, err := mw.CreateFormFile("avatar", "avatar.png")
		require.NoError(t, err)
		_, err = fw.Write([]byte("not really a png"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		f, err := httpx.ParseFields(httptest.NewRecorder(), req)
		require.NoError(t, err)
		require.Equal(t, "abc", f.Get("csrf_token"))
		require.Equal(t, "alice", f.Get("username"))
		_, ok := f.Body("avatar")
		require.False(t, ok)
	})

	t.Run("multipart without boundary", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("username=alice"))
		req.Header.Set("Content-Type", "multipart/form-data")

		_, err := httpx.ParseFields(httptest.NewRecorder(), req)
		require.ErrorIs(t, err, httpx.ErrMalformedBody)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"broken`))
		req.Header.Set("Content-Type", "application/json")

		_, err := httpx.ParseFields(httptest.NewRecorder(), req)
		require.ErrorIs(t, err, httpx.ErrMalformedBody)
	})

	t.Run("middleware rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[1,2`))
		rec := httptest.NewRecorder()
		httpx.Chain(okHandler(), httpx.FieldsMiddleware()).ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

type stubValidator map[string]httpx.Principal

func (s stubValidator) ValidateBearer(_ context.Context, token string) (httpx.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	if token == "broken" {
		return httpx.Principal{}, errors.New("database is locked")
	}
	return httpx.Principal{}, httpx.ErrInvalidToken
}

func TestBearerAuthMiddleware(t *testing.T) {
	v := stubValidator{"good": {UserID: "01U", Username: "alice"}}

	var got httpx.Principal
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = httpx.PrincipalFromContext(r.Context())
		require.Equal(t, "good", httpx.BearerTokenFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}), httpx.BearerAuthMiddleware(v))

	bodies := map[string]string{}
	for name, header := range map[string]string{
		"missing":    "",
		"wrong type": "Basic Zm9vOmJhcg==",
		"empty":      "Bearer ",
		"unknown":    "Bearer bad",
	} {
		req := httptest.NewRequest(http.MethodGet, "/tokens", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, name)
		bodies[name] = rec.Body.String()
	}
	// one body for every failure
	require.Equal(t, bodies["missing"], bodies["unknown"])
	require.Equal(t, bodies["empty"], bodies["wrong type"])

	t.Run("store failure is not a 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/tokens", nil)
		req.Header.Set("Authorization", "Bearer broken")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Empty(t, rec.Header().Get("WWW-Authenticate"))
		require.NotContains(t, rec.Body.String(), "database is locked")
	})

	req := httptest.NewRequest(http.MethodGet, "/tokens", nil)
	req.Header.Set("Authorization", "bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", got.Username)
}

func TestCORSMiddleware(t *testing.T) {
	policy := httpx.NewOriginPolicy("https://gate.example.com/")
	h := httpx.Chain(okHandler(), httpx.CORSMiddleware(policy))

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/login", nil)
		req.Header.Set("Origin", "https://gate.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "https://gate.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		require.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("preflight from unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/login", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("post from unknown referer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set("Referer", "https://evil.example/page")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("post from default local origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set("Origin", "http://127.0.0.1:5500")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "http://127.0.0.1:5500", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("no origin passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := httpx.Chain(okHandler(), httpx.SecurityHeaders("/swagger/"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/csrf_token", nil))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	require.Empty(t, rec.Header().Get("Content-Security-Policy"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
