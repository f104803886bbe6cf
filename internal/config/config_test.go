package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Storage.SQLitePath = "data/kiosk.db"
	return cfg
}

func TestDefaultsApplied(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Session.TickSeconds)
	assert.Equal(t, 10, cfg.Session.BroadcastEverySeconds)
	assert.Equal(t, 600, cfg.Session.DefaultDurationSecs)
	assert.Equal(t, 5, cfg.Client.MaxReconnectAttempts)
	assert.Equal(t, 2000, cfg.Client.ReconnectDelayMs)
	assert.Equal(t, 10, cfg.Client.CommandTimeoutSecs)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = -1
	assert.Error(t, cfg.Validate())

	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresSQLitePath(t *testing.T) {
	cfg := Default()
	cfg.Storage.SQLitePath = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateGameIDs(t *testing.T) {
	cfg := validConfig()
	cfg.Games.Catalog = []GameConfig{
		{ID: "beat-saber", Title: "Beat Saber"},
		{ID: "beat-saber", Title: "Beat Saber 2"},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedDurations(t *testing.T) {
	cfg := validConfig()
	cfg.Games.Catalog = []GameConfig{
		{ID: "beat-saber", Title: "Beat Saber", MinDurationSecs: 900, MaxDurationSecs: 300},
	}
	assert.Error(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[server]
port = 9090
host = "127.0.0.1"

[logging]
level = "debug"
format = "console"

[session]
broadcast_every_seconds = 5

[storage]
sqlite_path = "data/kiosk.db"

[[games.catalog]]
id = "beat-saber"
title = "Beat Saber"
min_duration_seconds = 60
max_duration_seconds = 1800
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Session.BroadcastEverySeconds)
	require.Len(t, cfg.Games.Catalog, 1)
	assert.Equal(t, "beat-saber", cfg.Games.Catalog[0].ID)
	assert.Equal(t, 1800, cfg.Games.Catalog[0].MaxDurationSecs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadWithFallbackPrefersExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := `
[storage]
sqlite_path = "data/kiosk.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, "data/kiosk.db", cfg.Storage.SQLitePath)
}
