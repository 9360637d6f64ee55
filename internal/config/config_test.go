package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DATA_DIR", "REALTIME_DEBUG_LOGS", "GO_ENV"} {
		val, ok := os.LookupEnv(k)
		if ok {
			t.Cleanup(func() { os.Setenv(k, val) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, defaultDataDir, cfg.DataDir)
	assert.False(t, cfg.DebugLogs)
	assert.False(t, cfg.Development, "defaults to production unless GO_ENV=development")
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv(t)
	os.Setenv("PORT", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_PortOutOfRange(t *testing.T) {
	clearEnv(t)
	os.Setenv("PORT", "70000")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_DevelopmentFlag(t *testing.T) {
	clearEnv(t)
	os.Setenv("GO_ENV", "development")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Development)
}

func TestLoad_DebugLogsFlag(t *testing.T) {
	clearEnv(t)
	os.Setenv("REALTIME_DEBUG_LOGS", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DebugLogs)
}
