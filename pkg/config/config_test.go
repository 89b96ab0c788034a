package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFlexibleStringSlice(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["123", 456, "alice"]`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"123", "456", "alice"}
	if len(f) != len(want) {
		t.Fatalf("length: got %d, want %d", len(f), len(want))
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, f[i], want[i])
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Pipeline.RateWindow() != time.Minute {
		t.Errorf("rate window: got %v", cfg.Pipeline.RateWindow())
	}
	if cfg.Pipeline.RateMaxEvents != 10 {
		t.Errorf("rate max events: got %d", cfg.Pipeline.RateMaxEvents)
	}
	if cfg.Session.MaxTurns != 40 {
		t.Errorf("max turns: got %d", cfg.Session.MaxTurns)
	}
	if cfg.Session.SessionTTL() != time.Hour {
		t.Errorf("session ttl: got %v", cfg.Session.SessionTTL())
	}
	if cfg.Provider.Name != "anthropic" {
		t.Errorf("provider: got %q", cfg.Provider.Name)
	}
	if cfg.Security.MaxBodyLength != 4000 {
		t.Errorf("max body length: got %d", cfg.Security.MaxBodyLength)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Port != 18790 {
		t.Errorf("port: got %d, want default 18790", cfg.Gateway.Port)
	}
}

func TestLoadConfig_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"pipeline": {"rate_max_events": 3},
		"security": {"admins": ["123", 456]},
		"provider": {"name": "openai", "api_key": "sk-test"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.RateMaxEvents != 3 {
		t.Errorf("rate max events: got %d, want 3", cfg.Pipeline.RateMaxEvents)
	}
	// Untouched sections keep defaults.
	if cfg.Pipeline.RateWindowSeconds != 60 {
		t.Errorf("rate window seconds: got %d, want 60", cfg.Pipeline.RateWindowSeconds)
	}
	if cfg.Provider.Name != "openai" || cfg.Provider.APIKey != "sk-test" {
		t.Errorf("provider: got %+v", cfg.Provider)
	}
	if len(cfg.Security.Admins) != 2 || cfg.Security.Admins[1] != "456" {
		t.Errorf("admins: got %v", cfg.Security.Admins)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"provider": {"model": "from-file"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REEFBOT_PROVIDER_MODEL", "from-env")
	t.Setenv("REEFBOT_PIPELINE_RATE_MAX_EVENTS", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider.Model != "from-env" {
		t.Errorf("model: got %q, want env value", cfg.Provider.Model)
	}
	if cfg.Pipeline.RateMaxEvents != 7 {
		t.Errorf("rate max events: got %d, want 7", cfg.Pipeline.RateMaxEvents)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Channels.Discord.Enabled = true
	cfg.Channels.Discord.Token = "tok"
	cfg.Security.Blacklist = FlexibleStringSlice{"666"}

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Channels.Discord.Enabled || got.Channels.Discord.Token != "tok" {
		t.Errorf("discord config: got %+v", got.Channels.Discord)
	}
	if len(got.Security.Blacklist) != 1 || got.Security.Blacklist[0] != "666" {
		t.Errorf("blacklist: got %v", got.Security.Blacklist)
	}
}
