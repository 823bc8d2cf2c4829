package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/argos/internal/config"
)

// RedisContainer wraps a testcontainers Redis instance.
type RedisContainer struct {
	container testcontainers.Container
	Client    *redis.Client
	Config    config.RedisConfig
}

// NewRedisContainer starts a Redis container, skipping the test in -short mode.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected client, or fails the test.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container skipped in -short mode")
	}
	ctx := context.Background()
	start := time.Now()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v [%s]", err, time.Since(start))
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("getting redis endpoint: %v", err)
	}

	cfg := config.RedisConfig{Addr: endpoint}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("pinging test redis: %v [%s]", err, time.Since(start))
	}

	t.Logf("redis container started at %s [%s]", endpoint, time.Since(start))

	t.Cleanup(func() {
		client.Close()
		_ = container.Terminate(ctx)
	})

	return &RedisContainer{container: container, Client: client, Config: cfg}
}

// UnreachableRedis returns settings that point at a closed local port.
func UnreachableRedis() config.RedisConfig {
	return config.RedisConfig{Addr: "127.0.0.1:1"}
}
