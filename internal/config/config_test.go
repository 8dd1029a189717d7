package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Handoff.StaffWindowSeconds != 20 {
		t.Errorf("default staff window = %d, want 20", cfg.Handoff.StaffWindowSeconds)
	}
	if cfg.Provider.Model != "gpt-4o" {
		t.Errorf("default model = %q", cfg.Provider.Model)
	}
}

func TestLoadParsesJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	content := `{
		// staff workspace lives in this supergroup
		handoff: { staff_window_seconds: 45 },
		channels: {
			telegram: { enabled: true, token: "tg-token", staff_group_id: -100123 },
		},
		provider: { api_key: "sk-test" },
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Handoff.StaffWindowSeconds != 45 {
		t.Errorf("staff window = %d, want 45", cfg.Handoff.StaffWindowSeconds)
	}
	if cfg.Channels.Telegram.StaffGroupID != -100123 {
		t.Errorf("staff group = %d", cfg.Channels.Telegram.StaffGroupID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SUPPORTBOT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("SUPPORTBOT_STAFF_WINDOW_SECONDS", "30")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.Telegram.Token != "env-token" {
		t.Errorf("token = %q", cfg.Channels.Telegram.Token)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("telegram not auto-enabled by env token")
	}
	if cfg.Handoff.StaffWindowSeconds != 30 {
		t.Errorf("staff window = %d, want 30", cfg.Handoff.StaffWindowSeconds)
	}
}

func TestValidateCatchesProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			"no channel",
			func(c *Config) {},
			"no channel enabled",
		},
		{
			"both channels",
			func(c *Config) {
				c.Channels.Telegram.Enabled = true
				c.Channels.Telegram.StaffGroupID = 1
				c.Channels.Discord.Enabled = true
				c.Channels.Discord.StaffChannelID = "x"
			},
			"exactly one",
		},
		{
			"telegram without group",
			func(c *Config) { c.Channels.Telegram.Enabled = true },
			"staff_group_id",
		},
		{
			"zero window",
			func(c *Config) { c.Handoff.StaffWindowSeconds = 0 },
			"staff_window_seconds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Provider.APIKey = "sk"
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
