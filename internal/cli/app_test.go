package cli

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/auth"
	"spendwise/internal/cache"
	"spendwise/internal/config"
	applog "spendwise/internal/log"
	"spendwise/internal/receipts"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.LoadFrom(func(string) string { return "" })
	cfg.SQLiteDBPath = filepath.Join(dir, "app.db")
	cfg.ReceiptsDir = filepath.Join(dir, "receipts")
	cfg.JWTSecret = "0123456789abcdef"
	return cfg
}

func TestBuildInline(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf})
	cfg := testConfig(t)
	cfg.ReceiptsPassphrase = "correct horse battery staple"

	app, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	require.NoError(t, app.Ping(context.Background()))
	assert.NotEmpty(t, app.Categories)
	assert.Nil(t, app.AMQP)
	assert.Nil(t, app.Sheets)
	assert.IsType(t, &cache.Memory{}, app.Cache)
	assert.IsType(t, &receipts.Encrypting{}, app.Receipts)
	require.NotNil(t, app.Auth)

	// Registration runs the welcome job inline through the log sender.
	_, err = app.Auth.Register(context.Background(), auth.Registration{
		Email: "grace@example.com", Name: "Grace", Password: "hopper-1906",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "grace@example.com")
}

func TestBuildRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.CacheBackend = "redis"
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.JWTSecret = ""

	app, err := Build(context.Background(), cfg, applog.New(applog.Config{Output: &bytes.Buffer{}}))
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &cache.Redis{}, app.Cache)
	assert.Nil(t, app.Auth)
	require.NoError(t, app.Ping(context.Background()))
}

func TestBuildClosesOnError(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheBackend = "redis"
	cfg.RedisURL = "not a url"

	_, err := Build(context.Background(), cfg, applog.New(applog.Config{Output: &bytes.Buffer{}}))
	assert.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogLevel = "debug"
	l := SetupLogger(cfg, applog.ComponentWorker)
	assert.Equal(t, applog.ComponentWorker, l.Component())
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
}
