package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 45, cfg.Scheduler.TickSeconds)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 1, cfg.Features.ForwardMonthLimit)
	assert.True(t, cfg.Features.ForwardingEnabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: db.internal
scheduler:
  tick_seconds: 30
  workers: 8
features:
  forward_month_limit: 2
`), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 30, cfg.Scheduler.TickSeconds)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 2, cfg.Features.ForwardMonthLimit)
	// Untouched keys keep defaults.
	assert.Equal(t, 90, cfg.Scheduler.HorizonDays)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: from-file\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("POSTGRES_HOST", "from-env")
	t.Setenv("FORWARD_MONTH_LIMIT", "3")
	t.Setenv("ENABLE_FORWARDING", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, 3, cfg.Features.ForwardMonthLimit)
	assert.False(t, cfg.Features.ForwardingEnabled)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "On"} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"0", "false", "No", "off", ""} {
		assert.False(t, ParseBool(v), v)
	}
	assert.True(t, ParseBool("2"))
}
