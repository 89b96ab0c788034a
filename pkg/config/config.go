// Package config loads reefbot configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so identity lists can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Gateway     GatewayConfig     `json:"gateway"`
	Pipeline    PipelineConfig    `json:"pipeline"`
	Security    SecurityConfig    `json:"security"`
	Session     SessionConfig     `json:"session"`
	Store       StoreConfig       `json:"store"`
	Provider    ProviderConfig    `json:"provider"`
	Channels    ChannelsConfig    `json:"channels"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

type GatewayConfig struct {
	Host string `env:"REEFBOT_GATEWAY_HOST" json:"host"`
	Port int    `env:"REEFBOT_GATEWAY_PORT" json:"port"`
}

type PipelineConfig struct {
	RateWindowSeconds      int `env:"REEFBOT_PIPELINE_RATE_WINDOW_SECONDS"      json:"rate_window_seconds"`
	RateMaxEvents          int `env:"REEFBOT_PIPELINE_RATE_MAX_EVENTS"          json:"rate_max_events"`
	HandlerTimeoutSeconds  int `env:"REEFBOT_PIPELINE_HANDLER_TIMEOUT_SECONDS"  json:"handler_timeout_seconds"`
	ShutdownGraceSeconds   int `env:"REEFBOT_PIPELINE_SHUTDOWN_GRACE_SECONDS"   json:"shutdown_grace_seconds"`
	DefaultCooldownSeconds int `env:"REEFBOT_PIPELINE_DEFAULT_COOLDOWN_SECONDS" json:"default_cooldown_seconds"`
}

func (p PipelineConfig) RateWindow() time.Duration {
	return time.Duration(p.RateWindowSeconds) * time.Second
}

func (p PipelineConfig) HandlerTimeout() time.Duration {
	return time.Duration(p.HandlerTimeoutSeconds) * time.Second
}

func (p PipelineConfig) ShutdownGrace() time.Duration {
	return time.Duration(p.ShutdownGraceSeconds) * time.Second
}

func (p PipelineConfig) DefaultCooldown() time.Duration {
	return time.Duration(p.DefaultCooldownSeconds) * time.Second
}

type SecurityConfig struct {
	Blacklist     FlexibleStringSlice `env:"REEFBOT_SECURITY_BLACKLIST"       json:"blacklist"`
	Whitelist     FlexibleStringSlice `env:"REEFBOT_SECURITY_WHITELIST"       json:"whitelist"`
	WhitelistOnly bool                `env:"REEFBOT_SECURITY_WHITELIST_ONLY"  json:"whitelist_only"`
	AdminOnly     bool                `env:"REEFBOT_SECURITY_ADMIN_ONLY"      json:"admin_only"`
	Admins        FlexibleStringSlice `env:"REEFBOT_SECURITY_ADMINS"          json:"admins"`
	MaxBodyLength int                 `env:"REEFBOT_SECURITY_MAX_BODY_LENGTH" json:"max_body_length"`
}

type SessionConfig struct {
	MaxTurns          int    `env:"REEFBOT_SESSION_MAX_TURNS"           json:"max_turns"`
	SessionTTLMinutes int    `env:"REEFBOT_SESSION_TTL_MINUTES"         json:"ttl_minutes"`
	PendingTTLMinutes int    `env:"REEFBOT_SESSION_PENDING_TTL_MINUTES" json:"pending_ttl_minutes"`
	SystemPrompt      string `env:"REEFBOT_SESSION_SYSTEM_PROMPT"       json:"system_prompt"`
}

func (s SessionConfig) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}

func (s SessionConfig) PendingTTL() time.Duration {
	return time.Duration(s.PendingTTLMinutes) * time.Minute
}

type StoreConfig struct {
	RedisAddr     string `env:"REEFBOT_STORE_REDIS_ADDR"     json:"redis_addr"`
	RedisPassword string `env:"REEFBOT_STORE_REDIS_PASSWORD" json:"redis_password"`
	RedisDB       int    `env:"REEFBOT_STORE_REDIS_DB"       json:"redis_db"`
	KeyPrefix     string `env:"REEFBOT_STORE_KEY_PREFIX"     json:"key_prefix"`
}

type ProviderConfig struct {
	Name        string   `env:"REEFBOT_PROVIDER_NAME"        json:"name"` // "anthropic" or "openai"
	APIKey      string   `env:"REEFBOT_PROVIDER_API_KEY"     json:"api_key"`
	APIBase     string   `env:"REEFBOT_PROVIDER_API_BASE"    json:"api_base,omitempty"`
	Model       string   `env:"REEFBOT_PROVIDER_MODEL"       json:"model,omitempty"`
	MaxTokens   int      `env:"REEFBOT_PROVIDER_MAX_TOKENS"  json:"max_tokens"`
	Temperature *float64 `env:"REEFBOT_PROVIDER_TEMPERATURE" json:"temperature,omitempty"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
	Bridge  BridgeConfig  `json:"bridge"`
}

type DiscordConfig struct {
	Enabled bool   `env:"REEFBOT_CHANNELS_DISCORD_ENABLED" json:"enabled"`
	Token   string `env:"REEFBOT_CHANNELS_DISCORD_TOKEN"   json:"token"`
}

type BridgeConfig struct {
	Enabled bool   `env:"REEFBOT_CHANNELS_BRIDGE_ENABLED" json:"enabled"`
	URL     string `env:"REEFBOT_CHANNELS_BRIDGE_URL"     json:"url"`
}

type MaintenanceConfig struct {
	// StatsSchedule is a cron expression for the stats snapshot task.
	StatsSchedule          string `env:"REEFBOT_MAINTENANCE_STATS_SCHEDULE"           json:"stats_schedule"`
	HealthIntervalSeconds  int    `env:"REEFBOT_MAINTENANCE_HEALTH_INTERVAL_SECONDS"  json:"health_interval_seconds"`
	CleanupIntervalSeconds int    `env:"REEFBOT_MAINTENANCE_CLEANUP_INTERVAL_SECONDS" json:"cleanup_interval_seconds"`
}

func (m MaintenanceConfig) HealthInterval() time.Duration {
	return time.Duration(m.HealthIntervalSeconds) * time.Second
}

func (m MaintenanceConfig) CleanupInterval() time.Duration {
	return time.Duration(m.CleanupIntervalSeconds) * time.Second
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18790,
		},
		Pipeline: PipelineConfig{
			RateWindowSeconds:      60,
			RateMaxEvents:          10,
			HandlerTimeoutSeconds:  120,
			ShutdownGraceSeconds:   10,
			DefaultCooldownSeconds: 0,
		},
		Security: SecurityConfig{
			MaxBodyLength: 4000,
		},
		Session: SessionConfig{
			MaxTurns:          40,
			SessionTTLMinutes: 60,
			PendingTTLMinutes: 60,
			SystemPrompt:      "You are a helpful assistant in a group chat. Keep replies concise.",
		},
		Store: StoreConfig{
			KeyPrefix: "reefbot",
		},
		Provider: ProviderConfig{
			Name:      "anthropic",
			MaxTokens: 4096,
		},
		Maintenance: MaintenanceConfig{
			StatsSchedule:          "* * * * *",
			HealthIntervalSeconds:  30,
			CleanupIntervalSeconds: 300,
		},
	}
}

// LoadConfig reads path, overlaying the file and then the environment on
// top of the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
