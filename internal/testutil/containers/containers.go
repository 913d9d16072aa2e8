//go:build integration

// Package containers starts backing services for integration tests with
// testcontainers-go. It is gated behind the "integration" build tag so unit
// test builds do not pull in Docker dependencies:
//
//	//go:build integration
//
// # Redis
//
// [StartRedis] starts a Redis 7 container for the Redis session store:
//
//	result, err := containers.StartRedis(ctx)
//	if err != nil { ... }
//	defer result.Container.Terminate(ctx)
//
//	cfg := session.RedisConfig{URI: result.ConnString}
package containers

import (
	"context"
	"fmt"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// DefaultRedisImage is the container image used for Redis integration
// tests.
const DefaultRedisImage = "docker.io/redis:7-alpine"

// RedisResult holds a started Redis container and its redis:// URI.
type RedisResult struct {
	// Container is the started Redis testcontainer.
	Container *tcredis.RedisContainer

	// ConnString is the connection URI (e.g., "redis://localhost:55679").
	ConnString string
}

// StartRedis starts a Redis container. The caller must terminate it. If the
// connection string cannot be read the container is terminated before the
// error is returned.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get redis connection string: %w", err)
	}

	return &RedisResult{
		Container:  container,
		ConnString: connStr,
	}, nil
}
