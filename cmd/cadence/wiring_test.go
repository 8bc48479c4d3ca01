package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/cadence/internal/config"
	"github.com/thebtf/cadence/internal/lock"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "cadence.db")
	return cfg
}

func TestNewLocker(t *testing.T) {
	cfg := testConfig(t)
	store, err := openStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	locker, closeFn, err := newLocker(cfg, store)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &lock.DBLocker{}, locker)

	lease, err := locker.Acquire(context.Background(), "refine-habits", cfg.LeaseTTL())
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))

	cfg.LockBackend = "redis"
	cfg.RedisAddr = "127.0.0.1:0"
	locker, closeRedis, err := newLocker(cfg, store)
	require.NoError(t, err)
	closeRedis()
	assert.IsType(t, &lock.RedisLocker{}, locker)

	cfg.LockBackend = "zookeeper"
	_, _, err = newLocker(cfg, store)
	assert.EqualError(t, err, `unknown lock backend "zookeeper"`)
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.EmbeddingProvider = "local"
	_, err := newProvider(context.Background(), cfg)
	assert.EqualError(t, err, `unknown embedding provider "local"`)
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = "oracle"
	_, err := openStore(cfg)
	assert.ErrorContains(t, err, "open oracle database")
}

func TestClearHabitsRequiresUser(t *testing.T) {
	clearUserID = ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"clear-habits"})
	err := rootCmd.Execute()
	assert.EqualError(t, err, "--user is required")
}
