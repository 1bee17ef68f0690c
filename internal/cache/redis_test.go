package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/config"
)

func TestOptionsCarryConfig(t *testing.T) {
	opts := Options(config.RedisConfig{Addr: "redis:6379", Password: "pw", DB: 2})

	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "bustrack", opts.ClientName)
}

func TestPingFailsWithoutServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	require.Error(t, Ping(client)(context.Background()))

	_, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
