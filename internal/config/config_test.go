package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 8, cfg.RateLimit.Quota)
	assert.Equal(t, 12, cfg.Chat.MaxTurnMessages)
	assert.Equal(t, 48*time.Hour, cfg.Session.TTL)
	assert.Equal(t, int64(65536), cfg.WS.MaxMessageSize)
	assert.Empty(t, cfg.HTTP.TrustedProxies)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GALLERYBOT_HTTP_PORT", "9090")
	t.Setenv("GALLERYBOT_RATELIMIT_WINDOW", "30s")
	t.Setenv("GALLERYBOT_LLM_MODE", "MOCK")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "MOCK", cfg.LLM.Mode)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallerybot.yaml")
	content := "database:\n  driver: postgres\n  dsn: postgres://localhost/gallery\nchat:\n  max_turn_messages: 20\nhttp:\n  trusted_proxies:\n    - 10.0.0.0/8\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/gallery", cfg.Database.DSN)
	assert.Equal(t, 20, cfg.Chat.MaxTurnMessages)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.HTTP.TrustedProxies)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("GALLERYBOT_DATABASE_DRIVER", "mongo")

	_, err := Load("")
	assert.Error(t, err)
}
