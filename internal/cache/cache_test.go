package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/kiranshivaraju/podcastgate/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns its URL.
func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return "redis://" + host + ":" + port.Port()
}

func TestConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := setupRedis(t)

	rc, err := cache.Connect(context.Background(), url)
	require.NoError(t, err)
	defer rc.Close()

	assert.NoError(t, rc.Ping(context.Background()))
	assert.NoError(t, rc.Client().Set(context.Background(), "k", "v", time.Second).Err())
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("not-a-url://")
	assert.Error(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := cache.Connect(ctx, "redis://127.0.0.1:1")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "ratelimit:minute:demo", cache.RateLimitKey("demo"))
	assert.Equal(t, "ratelimit:daily:demo", cache.DailyQuotaKey("demo"))
	assert.NotEqual(t, cache.RateLimitKey("demo"), cache.DailyQuotaKey("demo"))
}
