// Package config loads service configuration from a JSON5 file with
// environment overrides. Secrets only ever come from the environment.
package config

import (
	"fmt"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Line         LineConfig         `json:"line"`
	Backends     []BackendConfig    `json:"backends"`
	ContentStore ContentStoreConfig `json:"content_store"`
	Database     DatabaseConfig     `json:"database"`
	Debounce     DebounceConfig     `json:"debounce"`
	Dispatch     DispatchConfig     `json:"dispatch"`
	Stores       StoresConfig       `json:"stores"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// PublicBaseURL is what temp-image links are minted against.
	PublicBaseURL string `json:"public_base_url"`
	// WebhookRatePerMinute caps webhook deliveries per source address.
	WebhookRatePerMinute int `json:"webhook_rate_per_minute"`
}

type LineConfig struct {
	ChannelSecret string `json:"-"`
	ChannelToken  string `json:"-"`
}

// BackendConfig names one worker backend. Role selects which event
// classes reach it: ai, recipe or record.
type BackendConfig struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	URL    string `json:"url"`
	APIKey string `json:"-"`
}

type ContentStoreConfig struct {
	URL string `json:"url"`
}

type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

type DebounceConfig struct {
	WindowMS      int `json:"window_ms"`
	MaxConcurrent int `json:"max_concurrent"`
}

type DispatchConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

type StoresConfig struct {
	ModeTTLMinutes         int `json:"mode_ttl_minutes"`
	ContentTTLMinutes      int `json:"content_ttl_minutes"`
	ImageTTLMinutes        int `json:"image_ttl_minutes"`
	ConversationTTLMinutes int `json:"conversation_ttl_minutes"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 5000,
			WebhookRatePerMinute: 30,
		},
		Debounce: DebounceConfig{
			WindowMS:      1500,
			MaxConcurrent: 4,
		},
		Dispatch: DispatchConfig{
			TimeoutSeconds: 110,
		},
		Stores: StoresConfig{
			ModeTTLMinutes:         720,
			ContentTTLMinutes:      60,
			ImageTTLMinutes:        1440,
			ConversationTTLMinutes: 1440,
		},
	}
}

// Validate checks what serve cannot run without.
func (c *Config) Validate() error {
	if c.Line.ChannelSecret == "" {
		return fmt.Errorf("FRIDGELINE_LINE_CHANNEL_SECRET is not set")
	}
	if c.Line.ChannelToken == "" {
		return fmt.Errorf("FRIDGELINE_LINE_CHANNEL_TOKEN is not set")
	}
	for _, b := range c.Backends {
		if b.Name == "" || b.URL == "" {
			return fmt.Errorf("backend entries need both name and url")
		}
		switch b.Role {
		case "ai", "recipe", "record":
		default:
			return fmt.Errorf("backend %s: unknown role %q", b.Name, b.Role)
		}
	}
	return nil
}

func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Debounce.WindowMS) * time.Millisecond
}

func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.TimeoutSeconds) * time.Second
}

func (s StoresConfig) ModeTTL() time.Duration {
	return time.Duration(s.ModeTTLMinutes) * time.Minute
}

func (s StoresConfig) ContentTTL() time.Duration {
	return time.Duration(s.ContentTTLMinutes) * time.Minute
}

func (s StoresConfig) ImageTTL() time.Duration {
	return time.Duration(s.ImageTTLMinutes) * time.Minute
}

func (s StoresConfig) ConversationTTL() time.Duration {
	return time.Duration(s.ConversationTTLMinutes) * time.Minute
}
