package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 8*time.Hour, cfg.SessionTTL)
	require.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	require.Equal(t, 8, cfg.ReportConcurrency)
	require.Equal(t, LockBackendMemory, cfg.PayrollLockBackend)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		SessionSecret:      "s3cret",
		SessionTTL:         time.Hour,
		SessionIdleTimeout: time.Minute,
		ReportConcurrency:  1,
		PayrollLockBackend: LockBackendRedis,
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.ReportConcurrency = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.PayrollLockBackend = "etcd"
	require.Error(t, bad.Validate())

	bad = base
	bad.SessionIdleTimeout = 0
	require.Error(t, bad.Validate())
}

func TestInTestModeFollowsEnvironment(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
