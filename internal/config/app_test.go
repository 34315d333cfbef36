package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override variable so ambient shell state cannot
// leak into assertions. t.Setenv also restores the originals afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STRATROLL_LOG_LEVEL", "STRATROLL_STATE_DIR", "STRATROLL_ARTIFACTS_DIR",
		"STRATROLL_POLICY", "PG_DSN", "PG_ENABLED", "REDIS_ADDR", "KAFKA_BROKERS",
		"HTTP_PORT",
	} {
		t.Setenv(key, "")
	}
}

func writeAppConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadAppConfig_EmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadAppConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "data/rollouts", cfg.StateDir)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Mirror.Enabled)
	assert.False(t, cfg.Notify.Enabled)
	assert.Equal(t, 8093, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.Mirror.TTL)
}

func TestLoadAppConfig_MissingFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	// A configured-but-absent path is not an error; the CLI runs with
	// defaults on a fresh checkout.
	cfg, err := LoadAppConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "data/rollouts", cfg.StateDir)
}

func TestLoadAppConfig_FileOverrides(t *testing.T) {
	clearEnv(t)

	path := writeAppConfig(t, `
log_level: debug
state_dir: /var/lib/stratroll
http:
  port: 9090
mirror:
  enabled: true
  addr: redis.internal:6379
`)
	cfg, err := LoadAppConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/lib/stratroll", cfg.StateDir)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Mirror.Addr)
	assert.Equal(t, "artifacts/rollouts", cfg.ArtifactsDir, "absent key keeps default")
}

func TestLoadAppConfig_EnvTrumpsFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRATROLL_STATE_DIR", "/env/state")
	t.Setenv("STRATROLL_LOG_LEVEL", "warn")

	path := writeAppConfig(t, `
state_dir: /file/state
log_level: debug
`)
	cfg, err := LoadAppConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/env/state", cfg.StateDir)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadAppConfig_EnvEnablesMirrorAndNotify(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadAppConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Mirror.Enabled, "REDIS_ADDR implies the mirror is wanted")
	assert.Equal(t, "cache:6379", cfg.Mirror.Addr)
	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Brokers)
}

func TestLoadAppConfig_DatabaseEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PG_DSN", "postgres://ops@db/stratroll")
	t.Setenv("PG_ENABLED", "true")

	cfg, err := LoadAppConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "postgres://ops@db/stratroll", cfg.Database.DSN)
}

func TestLoadAppConfig_BadPortEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "not-a-port")

	cfg, err := LoadAppConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8093, cfg.HTTP.Port)
}

func TestLoadAppConfig_InvalidLogLevelRejected(t *testing.T) {
	clearEnv(t)

	_, err := LoadAppConfig(writeAppConfig(t, "log_level: verbose"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
