package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: file:test.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Gamification.DailyMissionCount)
	assert.Equal(t, 2, cfg.Gamification.RepairWindowDays)
	assert.Equal(t, 5300, cfg.App.Port)
	assert.Equal(t, "gamification.activity", cfg.AMQP.Queue)
	assert.Equal(t, 24*time.Hour, cfg.Redis.DedupeTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Gateway.AllowedOrigins)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: file:test.db\n")
	t.Setenv("LEDGER_GAMIFICATION_DAILY_MISSION_COUNT", "3")
	t.Setenv("LEDGER_GATEWAY_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Gamification.DailyMissionCount)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Gateway.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: mysql\n  dsn: x\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "database:\n  driver: sqlite\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "database:\n  driver: sqlite\n  dsn: x\napp:\n  timezone: Mars/Olympus\n"))
	assert.Error(t, err)
}
