// Package config loads the farmd configuration using Viper: defaults,
// then farmd.yaml (cwd or ~/.farmd), then FARMD_* environment
// variables, highest last.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"qq-farm-runtime/errors"
	"qq-farm-runtime/gate"
	"qq-farm-runtime/ratelimit"
	"qq-farm-runtime/runtime"
)

// Config is the full farmd configuration tree.
type Config struct {
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Data      DataConfig      `mapstructure:"data"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Logs      LogsConfig      `mapstructure:"logs"`
	Access    AccessConfig    `mapstructure:"access"`
}

// GatewayConfig is the gate connection identity.
type GatewayConfig struct {
	URL            string `mapstructure:"url"`
	Platform       string `mapstructure:"platform"`
	OS             string `mapstructure:"os"`
	ClientVersion  string `mapstructure:"client_version"`
	RPCTimeoutSec  int    `mapstructure:"rpc_timeout_sec"`
	UserAgent      string `mapstructure:"user_agent"`
	Origin         string `mapstructure:"origin"`
	HeartbeatSec   int    `mapstructure:"heartbeat_sec"`
}

// DataConfig locates the persisted JSON state and the static tables.
type DataConfig struct {
	Dir      string `mapstructure:"dir"`
	DocsRoot string `mapstructure:"docs_root"`
}

// RateLimitConfig carries the command limiter knobs.
type RateLimitConfig struct {
	ReadCooldownMs         int  `mapstructure:"read_cooldown_ms"`
	WriteCooldownMs        int  `mapstructure:"write_cooldown_ms"`
	GlobalConcurrency      int  `mapstructure:"global_concurrency"`
	AccountWriteSerialized bool `mapstructure:"account_write_serialized"`
	PerUserInFlight        int  `mapstructure:"per_user_inflight"`
}

// RuntimeConfig carries account start behavior.
type RuntimeConfig struct {
	StartRetryMaxAttempts int `mapstructure:"start_retry_max_attempts"`
	StartRetryBaseMs      int `mapstructure:"start_retry_base_ms"`
	StartRetryMaxMs       int `mapstructure:"start_retry_max_ms"`
	AutoStartConcurrency  int `mapstructure:"auto_start_concurrency"`
}

// LogsConfig carries runtime-log persistence knobs.
type LogsConfig struct {
	Persist        bool `mapstructure:"persist"`
	MaxEntries     int  `mapstructure:"max_entries"`
	FlushIntervalS int  `mapstructure:"flush_interval_sec"`
	FlushBatch     int  `mapstructure:"flush_batch"`
}

// AccessConfig seeds the access-control lists. Whitelist entries merge
// with the ones managed at runtime through the whitelist command.
type AccessConfig struct {
	SuperAdmins     []string `mapstructure:"super_admins"`
	WhitelistUsers  []string `mapstructure:"whitelist_users"`
	WhitelistGroups []string `mapstructure:"whitelist_groups"`
}

// SetDefaults installs the stock value for every knob.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("gateway.url", gate.DefaultGatewayURL)
	v.SetDefault("gateway.platform", "qq")
	v.SetDefault("gateway.os", "iOS")
	v.SetDefault("gateway.client_version", "1.6.0.5_20251224")
	v.SetDefault("gateway.rpc_timeout_sec", 15)
	v.SetDefault("gateway.user_agent", "")
	v.SetDefault("gateway.origin", "")
	v.SetDefault("gateway.heartbeat_sec", 25)

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.docs_root", "docs")

	v.SetDefault("ratelimit.read_cooldown_ms", 1000)
	v.SetDefault("ratelimit.write_cooldown_ms", 2000)
	v.SetDefault("ratelimit.global_concurrency", 20)
	v.SetDefault("ratelimit.account_write_serialized", true)
	v.SetDefault("ratelimit.per_user_inflight", 1)

	v.SetDefault("runtime.start_retry_max_attempts", 3)
	v.SetDefault("runtime.start_retry_base_ms", 1000)
	v.SetDefault("runtime.start_retry_max_ms", 8000)
	v.SetDefault("runtime.auto_start_concurrency", 5)

	v.SetDefault("logs.persist", true)
	v.SetDefault("logs.max_entries", 3000)
	v.SetDefault("logs.flush_interval_sec", 2)
	v.SetDefault("logs.flush_batch", 80)

	v.SetDefault("access.super_admins", []string{})
	v.SetDefault("access.whitelist_users", []string{})
	v.SetDefault("access.whitelist_groups", []string{})
}

// Load reads farmd.yaml from the working directory or ~/.farmd plus
// FARMD_* environment variables. A missing config file is fine.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("farmd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.farmd")

	v.SetEnvPrefix("FARMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}
	return LoadWithViper(v)
}

// LoadFromFile reads one explicit config file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	return LoadWithViper(v)
}

// LoadWithViper unmarshals a prepared Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// SessionConfig converts the gateway section for the gate dialer.
func (c *Config) SessionConfig() gate.Config {
	return gate.Config{
		GatewayURL:    c.Gateway.URL,
		Platform:      c.Gateway.Platform,
		OS:            c.Gateway.OS,
		ClientVersion: c.Gateway.ClientVersion,
		RPCTimeout:    time.Duration(c.Gateway.RPCTimeoutSec) * time.Second,
		UserAgent:     c.Gateway.UserAgent,
		Origin:        c.Gateway.Origin,
	}.WithDefaults()
}

// LimiterConfig converts the ratelimit section.
func (c *Config) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		ReadCooldown:           time.Duration(c.RateLimit.ReadCooldownMs) * time.Millisecond,
		WriteCooldown:          time.Duration(c.RateLimit.WriteCooldownMs) * time.Millisecond,
		GlobalConcurrency:      c.RateLimit.GlobalConcurrency,
		AccountWriteSerialized: c.RateLimit.AccountWriteSerialized,
	}
}

// ManagerOptions converts the data/runtime/logs sections.
func (c *Config) ManagerOptions() runtime.ManagerOptions {
	return runtime.ManagerOptions{
		DocsRoot:                c.Data.DocsRoot,
		DataDir:                 c.Data.Dir,
		SessionConfig:           c.SessionConfig(),
		HeartbeatInterval:       time.Duration(c.Gateway.HeartbeatSec) * time.Second,
		StartRetryMaxAttempts:   c.Runtime.StartRetryMaxAttempts,
		StartRetryBaseDelay:     time.Duration(c.Runtime.StartRetryBaseMs) * time.Millisecond,
		StartRetryMaxDelay:      time.Duration(c.Runtime.StartRetryMaxMs) * time.Millisecond,
		AutoStartConcurrency:    c.Runtime.AutoStartConcurrency,
		PersistRuntimeLogs:      c.Logs.Persist,
		RuntimeLogMaxEntries:    c.Logs.MaxEntries,
		RuntimeLogFlushInterval: time.Duration(c.Logs.FlushIntervalS) * time.Second,
		RuntimeLogFlushBatch:    c.Logs.FlushBatch,
	}
}

// IsSuperAdmin reports whether the user id is configured as a super
// admin.
func (c *Config) IsSuperAdmin(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	for _, admin := range c.Access.SuperAdmins {
		if strings.TrimSpace(admin) == userID {
			return true
		}
	}
	return false
}
