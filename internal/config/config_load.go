package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is fine; env-only deployments are supported.
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

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets: env only, never read from the file.
	envStr("FRIDGELINE_LINE_CHANNEL_SECRET", &c.Line.ChannelSecret)
	envStr("FRIDGELINE_LINE_CHANNEL_TOKEN", &c.Line.ChannelToken)
	envStr("FRIDGELINE_POSTGRES_DSN", &c.Database.PostgresDSN)

	envStr("FRIDGELINE_HOST", &c.Server.Host)
	if v := os.Getenv("FRIDGELINE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	envStr("FRIDGELINE_PUBLIC_BASE_URL", &c.Server.PublicBaseURL)
	envStr("FRIDGELINE_CONTENT_STORE_URL", &c.ContentStore.URL)

	// Per-backend API keys: FRIDGELINE_BACKEND_<NAME>_API_KEY.
	for i := range c.Backends {
		key := "FRIDGELINE_BACKEND_" + envName(c.Backends[i].Name) + "_API_KEY"
		envStr(key, &c.Backends[i].APIKey)
	}
}

func envName(name string) string {
	name = strings.ToUpper(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
}
