package gate_test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/gate/pkg/authsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Container setup and shared flows for the gate end-to-end tests.
 */

const (
	testImageName    = "gate-test:latest"
	testImageVersion = "e2e"

	apiPassword  = "e2e-api-password"
	testPassword = "Correct-Horse9"
)

// imageBuilt records whether TestMain built the image for this run.
var imageBuilt bool

// TestMain builds the image once for the whole suite and removes it afterwards.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	fmt.Fprintf(os.Stdout, "Building gate Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")
	imageBuilt = true

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up gate Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"--build-arg", "VERSION="+testImageVersion,
		"-f", "../../../cmd/gate/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	_ = exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName).Run()
}

// baseEnv runs the container over plain http with relaxed coarse limits and
// no outbound breach lookups.
func baseEnv() map[string]string {
	return map[string]string{
		"ENV":                 "test",
		"LOG_LEVEL":           "info",
		"LOG_FORMAT":          "json",
		"SESSION_SECRET":      "e2e-session-secret-0123456789abcdef",
		"COOKIE_SECURE":       "false",
		"HIBP_ENABLED":        "false",
		"API_PASSWORD":        apiPassword,
		"ROBLOX_COOKIES_JSON": `["malformed cookie"]`,

		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_WINDOW_SEC": "60",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
	}
}

// setupGateContainer starts gate and returns its base URL. extra overrides
// entries of baseEnv.
func setupGateContainer(t *testing.T, extra map[string]string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("e2e container test skipped in -short mode")
	}
	ctx := context.Background()

	env := baseEnv()
	maps.Copy(env, extra)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          env,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func newClient(t *testing.T, baseURL string) *authsdk.Client {
	t.Helper()
	c, err := authsdk.NewClient(baseURL)
	require.NoError(t, err)
	return c
}

// mintInvite creates an invite key with the operator password.
func mintInvite(t *testing.T, c *authsdk.Client, uses int) string {
	t.Helper()
	res, err := c.MintInviteKey(t.Context(), authsdk.MintInviteRequest{
		UsesRemaining: uses,
		APIPassword:   apiPassword,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.InviteKey)
	return res.InviteKey
}

// registerUser registers username with a fresh single-use invite and returns
// the issued API token.
func registerUser(t *testing.T, c *authsdk.Client, username string) string {
	t.Helper()
	res, err := c.Register(t.Context(), authsdk.RegisterRequest{
		Username:        username,
		Email:           username + "@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		InviteKey:       mintInvite(t, c, 1),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	return res.Token
}

// requireStatus asserts err is an API error with the given status.
func requireStatus(t *testing.T, err error, status int) *authsdk.APIError {
	t.Helper()
	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected *authsdk.APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode, "unexpected error: %v", apiErr)
	return apiErr
}
