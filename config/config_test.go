package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qq-farm-runtime/gate"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, gate.DefaultGatewayURL, cfg.Gateway.URL)
	assert.Equal(t, "qq", cfg.Gateway.Platform)
	assert.Equal(t, "iOS", cfg.Gateway.OS)
	assert.Equal(t, 15, cfg.Gateway.RPCTimeoutSec)
	assert.Equal(t, 25, cfg.Gateway.HeartbeatSec)

	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, "docs", cfg.Data.DocsRoot)

	assert.Equal(t, 1000, cfg.RateLimit.ReadCooldownMs)
	assert.Equal(t, 2000, cfg.RateLimit.WriteCooldownMs)
	assert.Equal(t, 20, cfg.RateLimit.GlobalConcurrency)
	assert.True(t, cfg.RateLimit.AccountWriteSerialized)
	assert.Equal(t, 1, cfg.RateLimit.PerUserInFlight)

	assert.Equal(t, 3, cfg.Runtime.StartRetryMaxAttempts)
	assert.True(t, cfg.Logs.Persist)
	assert.Equal(t, 3000, cfg.Logs.MaxEntries)
	assert.Empty(t, cfg.Access.SuperAdmins)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farmd.yaml")
	content := `
gateway:
  platform: wx
  rpc_timeout_sec: 30
data:
  dir: /tmp/farm-data
ratelimit:
  global_concurrency: 3
access:
  super_admins: ["10001", "10002"]
  whitelist_users: ["20001"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "wx", cfg.Gateway.Platform)
	assert.Equal(t, 30, cfg.Gateway.RPCTimeoutSec)
	assert.Equal(t, "/tmp/farm-data", cfg.Data.Dir)
	assert.Equal(t, 3, cfg.RateLimit.GlobalConcurrency)
	assert.Equal(t, []string{"10001", "10002"}, cfg.Access.SuperAdmins)
	assert.Equal(t, []string{"20001"}, cfg.Access.WhitelistUsers)
	// Untouched sections keep their defaults.
	assert.Equal(t, gate.DefaultGatewayURL, cfg.Gateway.URL)
	assert.Equal(t, 3, cfg.Runtime.StartRetryMaxAttempts)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSessionConfig(t *testing.T) {
	cfg := defaultConfig(t)
	sc := cfg.SessionConfig()
	assert.Equal(t, gate.DefaultGatewayURL, sc.GatewayURL)
	assert.Equal(t, "qq", sc.Platform)
	assert.Equal(t, 15*time.Second, sc.RPCTimeout)
	// WithDefaults fills what the config leaves empty.
	assert.NotEmpty(t, sc.UserAgent)
}

func TestLimiterConfig(t *testing.T) {
	cfg := defaultConfig(t)
	lc := cfg.LimiterConfig()
	assert.Equal(t, time.Second, lc.ReadCooldown)
	assert.Equal(t, 2*time.Second, lc.WriteCooldown)
	assert.Equal(t, 20, lc.GlobalConcurrency)
	assert.True(t, lc.AccountWriteSerialized)
}

func TestManagerOptions(t *testing.T) {
	cfg := defaultConfig(t)
	opts := cfg.ManagerOptions()
	assert.Equal(t, "data", opts.DataDir)
	assert.Equal(t, "docs", opts.DocsRoot)
	assert.Equal(t, 25*time.Second, opts.HeartbeatInterval)
	assert.Equal(t, time.Second, opts.StartRetryBaseDelay)
	assert.Equal(t, 8*time.Second, opts.StartRetryMaxDelay)
	assert.True(t, opts.PersistRuntimeLogs)
	assert.Equal(t, 80, opts.RuntimeLogFlushBatch)
}

func TestIsSuperAdmin(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Access.SuperAdmins = []string{" 10001 ", "10002"}

	assert.True(t, cfg.IsSuperAdmin("10001"))
	assert.True(t, cfg.IsSuperAdmin(" 10002 "))
	assert.False(t, cfg.IsSuperAdmin("10003"))
	assert.False(t, cfg.IsSuperAdmin(""))
}
