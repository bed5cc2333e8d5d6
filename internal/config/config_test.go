package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "challenge.realtime", cfg.RealtimeExchange)
	assert.Equal(t, time.Minute, cfg.ReminderInterval)
	assert.Equal(t, 10, cfg.WriteBurst)
	assert.InDelta(t, 5.0, cfg.WriteRatePerSec, 0.0001)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DEBUG_ROUTES", "true")
	t.Setenv("REMINDER_INTERVAL", "30s")
	t.Setenv("TIMEZONE", "Europe/Berlin")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.True(t, cfg.DebugRoutes)
	assert.Equal(t, 30*time.Second, cfg.ReminderInterval)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MEDIA_UPLOAD_URL=https://media.example/upload\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MEDIA_UPLOAD_URL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://media.example/upload", cfg.MediaUploadURL)
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	t.Setenv("TIMEZONE", "Nowhere/Special")
	_, err := Load("")
	require.Error(t, err)
}
