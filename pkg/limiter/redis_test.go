package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
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
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, RedisConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port())}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis(t *testing.T) {
	client := startRedis(t)
	r := NewRedis(client)

	// Redis expiry is real time, so the window is short here.
	const window = 1500 * time.Millisecond
	ctx := context.Background()
	key := Key(ActionLogin, "198.51.100.9")

	for range 5 {
		_, err := r.Increment(ctx, key, window)
		require.NoError(t, err)
	}
	res, err := r.Check(ctx, key, 5, window)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.LessOrEqual(t, res.RetryAfter, window)

	require.Eventually(t, func() bool {
		res, err := r.Check(ctx, key, 5, window)
		return err == nil && res.Allowed
	}, 5*time.Second, 100*time.Millisecond)

	_, err = r.Increment(ctx, key, window)
	require.NoError(t, err)
	require.NoError(t, r.Clear(ctx, key))
	res, err = r.Check(ctx, key, 1, window)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.NoError(t, r.Ping(ctx))
}

func TestRedis_ConcurrentIncrements(t *testing.T) {
	client := startRedis(t)
	r := NewRedis(client)
	ctx := context.Background()
	key := Key(ActionRegister, "198.51.100.10")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Increment(ctx, key, time.Minute)
		}()
	}
	wg.Wait()

	res, err := r.Check(ctx, key, 1000, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 50, res.Count)
}
