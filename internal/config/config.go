// Package config loads the bot configuration from a JSON5 file with
// env-var overrides, and watches the file for hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// Config is the full bot configuration.
type Config struct {
	DataDir string `json:"data_dir"`

	Handoff   HandoffConfig   `json:"handoff"`
	Provider  ProviderConfig  `json:"provider"`
	Channels  ChannelsConfig  `json:"channels"`
	Payments  PaymentsConfig  `json:"payments"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Digest    DigestConfig    `json:"digest"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// HandoffConfig tunes the staff takeover behavior.
type HandoffConfig struct {
	// StaffWindowSeconds is how long after staff activity the bot holds
	// back automated replies.
	StaffWindowSeconds int `json:"staff_window_seconds"`
}

// StaffWindow returns the window as a duration.
func (h HandoffConfig) StaffWindow() time.Duration {
	return time.Duration(h.StaffWindowSeconds) * time.Second
}

// ProviderConfig selects and configures the completion backend.
type ProviderConfig struct {
	Name    string `json:"name"` // "openai" or any compatible API
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
	Model   string `json:"model"`
}

// ChannelsConfig holds the transport settings. Exactly one channel
// carries the staff workspace.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// TelegramConfig configures the Telegram transport. The staff
// workspace is a supergroup with forum topics enabled.
type TelegramConfig struct {
	Enabled      bool   `json:"enabled"`
	Token        string `json:"token"`
	StaffGroupID int64  `json:"staff_group_id"`
}

// DiscordConfig configures the Discord transport. Threads under the
// staff channel play the role of forum topics.
type DiscordConfig struct {
	Enabled        bool   `json:"enabled"`
	Token          string `json:"token"`
	StaffChannelID string `json:"staff_channel_id"`
}

// PaymentsConfig configures the OxaPay merchant integration.
type PaymentsConfig struct {
	Enabled     bool   `json:"enabled"`
	MerchantKey string `json:"merchant_key"`
}

// KnowledgeConfig configures the site crawler.
type KnowledgeConfig struct {
	SiteURL  string `json:"site_url"`
	MaxPages int    `json:"max_pages"`
}

// DigestConfig configures the daily staff summary.
type DigestConfig struct {
	Enabled bool   `json:"enabled"`
	Cron    string `json:"cron"` // gronx expression
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	ServiceName string `json:"service_name"`
	Insecure    bool   `json:"insecure"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Handoff: HandoffConfig{StaffWindowSeconds: 20},
		Provider: ProviderConfig{
			Name:  "openai",
			Model: "gpt-4o",
		},
		Knowledge: KnowledgeConfig{MaxPages: 30},
		Digest: DigestConfig{
			Cron: "0 9 * * *",
		},
		Telemetry: TelemetryConfig{ServiceName: "supportbot"},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("SUPPORTBOT_DATA_DIR", &c.DataDir)
	envStr("SUPPORTBOT_PROVIDER_API_KEY", &c.Provider.APIKey)
	envStr("SUPPORTBOT_PROVIDER_API_BASE", &c.Provider.APIBase)
	envStr("SUPPORTBOT_MODEL", &c.Provider.Model)
	envStr("SUPPORTBOT_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("SUPPORTBOT_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("SUPPORTBOT_OXAPAY_MERCHANT_KEY", &c.Payments.MerchantKey)
	envStr("SUPPORTBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)

	if v := os.Getenv("SUPPORTBOT_STAFF_GROUP_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Channels.Telegram.StaffGroupID = id
		}
	}
	if v := os.Getenv("SUPPORTBOT_STAFF_WINDOW_SECONDS"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Handoff.StaffWindowSeconds = sec
		}
	}

	// Auto-enable channels when credentials arrive via env.
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	if c.Payments.MerchantKey != "" {
		c.Payments.Enabled = true
	}
}

// Validate rejects configurations the bot cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Handoff.StaffWindowSeconds <= 0 {
		problems = append(problems, "handoff.staff_window_seconds must be positive")
	}
	if !c.Channels.Telegram.Enabled && !c.Channels.Discord.Enabled {
		problems = append(problems, "no channel enabled: set channels.telegram or channels.discord")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Discord.Enabled {
		problems = append(problems, "enable exactly one staff workspace channel")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.StaffGroupID == 0 {
		problems = append(problems, "channels.telegram.staff_group_id is required")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.StaffChannelID == "" {
		problems = append(problems, "channels.discord.staff_channel_id is required")
	}
	if c.Provider.APIKey == "" {
		problems = append(problems, "provider.api_key is required")
	}
	if c.Payments.Enabled && c.Payments.MerchantKey == "" {
		problems = append(problems, "payments.merchant_key is required when payments are enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
