package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/reefbot/pkg/config"
)

func TestOpenCache_NoRedisConfigured(t *testing.T) {
	cfg := config.DefaultConfig()

	cache, err := openCache(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, cache)
	cache.Close()
}

func TestOpenCache_UnreachableRedisIsFatal(t *testing.T) {
	cfg := config.DefaultConfig()
	// Port 1 is never a redis server; the ping fails immediately.
	cfg.Store.RedisAddr = "127.0.0.1:1"

	cache, err := openCache(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, cache)
}
