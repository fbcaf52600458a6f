package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "s3cret-pass")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 10*time.Minute, cfg.PermissionSnapshotTTL)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.False(t, cfg.IsProduction())

	opts := cfg.BootstrapOptions()
	assert.Equal(t, "admin", opts.AdminUsername)
	assert.Equal(t, "s3cret-pass", opts.AdminPassword)
	assert.False(t, opts.ReaderEnabled)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("CSRF_SECRET", "csrf")

	t.Setenv("BOOTSTRAP_READER_ENABLED", "true")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "reader password")

	t.Setenv("BOOTSTRAP_READER_ENABLED", "false")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "rate limit")
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	assert.True(t, RefreshTestMode())
	assert.True(t, InTestMode())
	t.Setenv(TestModeEnv, "")
	assert.False(t, RefreshTestMode())
}
