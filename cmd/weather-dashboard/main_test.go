package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-dashboard/internal/config"
)

func TestRun_ReturnsStoreError(t *testing.T) {
	cfg := &config.AppConfig{
		CacheBackend:    config.CacheSQLite,
		CacheSQLitePath: filepath.Join(t.TempDir(), "missing", "cache.db"),
	}

	err := run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open sqlite cache store")
}

func TestOpenStore_CleanupClosesSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.AppConfig{
		CacheBackend:    config.CacheSQLite,
		CacheSQLitePath: filepath.Join(t.TempDir(), "cache.db"),
	}

	backend, closeStore, err := openStore(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, backend.Set(ctx, "k", []byte("v")))

	closeStore()
	assert.Error(t, backend.Set(ctx, "k", []byte("v")))
}

func TestOpenStore_MemoryIsCapped(t *testing.T) {
	ctx := context.Background()
	backend, closeStore, err := openStore(ctx, &config.AppConfig{CacheBackend: config.CacheMemory, CacheMaxEntries: 2})
	require.NoError(t, err)
	defer closeStore()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, backend.Set(ctx, k, []byte("v")))
	}
	n, err := backend.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
