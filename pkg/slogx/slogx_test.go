package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/gate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestNewRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "gate", Env: "test", Format: "json", Output: &buf})
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	logger.Warn("relay call failed",
		slog.String("cookie", "_|WARNING:-DO-NOT-SHARE-THIS"),
		slog.String("API_Password", "hunter2"),
		slog.Int("cookie_index", 2),
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "[REDACTED]", line["cookie"])
	require.Equal(t, "[REDACTED]", line["API_Password"])
	require.EqualValues(t, 2, line["cookie_index"])
	require.Equal(t, "gate", line["service"])
	require.NotContains(t, buf.String(), "DO-NOT-SHARE")
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var fromCtx *slog.Logger
	h := slogx.HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = slogx.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("propagates request id", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/livez", nil)
		req.Header.Set("X-Request-ID", "abc123")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		require.Equal(t, "abc123", rec.Header().Get("X-Request-ID"))
		require.NotNil(t, fromCtx)
		require.NotSame(t, slog.Default(), fromCtx)

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, "http_request", line["msg"])
		require.Equal(t, "abc123", line["req_id"])
		require.EqualValues(t, http.StatusTeapot, line["status"])
	})

	t.Run("generates request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/livez", nil)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		require.Len(t, rec.Header().Get("X-Request-ID"), 26)
	})
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	ctx := slogx.WithContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx = slogx.With(ctx, "user_id", "01J0000000000000000000000")

	slogx.FromContext(ctx).Info("token listed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "01J0000000000000000000000", line["user_id"])
}

func TestInviteKeyRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "gate", Env: "test", Format: "json", Output: &buf})
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	logger.Info("invite key minted",
		slog.String("invite_key", "BLUE16_0A1B2C3D"),
		slogx.Prefix("invite_prefix", "BLUE16_0A1B2C3D", 4),
		slogx.Prefix("short", "AB", 4),
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "[REDACTED]", line["invite_key"])
	require.Equal(t, "BLUE...", line["invite_prefix"])
	require.Equal(t, "AB", line["short"])
	require.NotContains(t, buf.String(), "0A1B2C3D")
}
