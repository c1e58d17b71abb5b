package gate_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/gate/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestRegisterLoginAndTokens(t *testing.T) {
	baseURL := setupGateContainer(t, nil)
	c := newClient(t, baseURL)
	ctx := t.Context()

	first := registerUser(t, c, "e2e_alice")

	login, err := c.Login(ctx, "E2E_ALICE@example.com", testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, login.Token)
	require.NotEqual(t, first, login.Token)

	valid, err := c.ValidateToken(ctx, login.Token)
	require.NoError(t, err)
	require.Equal(t, "e2e_alice", valid.Username)

	list, err := c.ListTokens(ctx, login.Token)
	require.NoError(t, err)
	require.Len(t, list.Tokens, 2)

	_, err = c.RevokeToken(ctx, login.Token, authsdk.RevokeTokenRequest{Token: first})
	require.NoError(t, err)

	_, err = c.ValidateToken(ctx, first)
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = c.Logout(ctx)
	require.NoError(t, err)
}

func TestRegisterRejectsUsedInvite(t *testing.T) {
	baseURL := setupGateContainer(t, nil)
	c := newClient(t, baseURL)
	ctx := t.Context()

	key := mintInvite(t, c, 1)
	check, err := c.CheckInviteKey(ctx, key)
	require.NoError(t, err)
	require.True(t, check.Success)
	require.Equal(t, 1, check.UsesRemaining)

	register := func(username string) error {
		_, err := c.Register(ctx, authsdk.RegisterRequest{
			Username:        username,
			Email:           username + "@example.com",
			Password:        testPassword,
			ConfirmPassword: testPassword,
			InviteKey:       key,
		})
		return err
	}
	require.NoError(t, register("e2e_bob"))
	requireStatus(t, register("e2e_carol"), http.StatusBadRequest)
}

func TestLoginWrongPassword(t *testing.T) {
	baseURL := setupGateContainer(t, nil)
	c := newClient(t, baseURL)

	registerUser(t, c, "e2e_dave")

	_, err := c.Login(t.Context(), "e2e_dave", "Wrong-Password1")
	apiErr := requireStatus(t, err, http.StatusUnauthorized)
	require.Equal(t, "invalid_credentials", apiErr.Code)
}

func TestForgotPasswordIsUniform(t *testing.T) {
	baseURL := setupGateContainer(t, nil)
	c := newClient(t, baseURL)
	ctx := t.Context()

	registerUser(t, c, "e2e_erin")

	known, err := c.ForgotPassword(ctx, "e2e_erin")
	require.NoError(t, err)
	unknown, err := c.ForgotPassword(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.Equal(t, known.Message, unknown.Message)
}
