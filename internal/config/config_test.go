package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 5000 || cfg.Debounce.WindowMS != 1500 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Dispatch.TimeoutSeconds != 110 {
		t.Errorf("dispatch timeout = %d", cfg.Dispatch.TimeoutSeconds)
	}
	if cfg.Server.WebhookRatePerMinute != 30 {
		t.Errorf("webhook rate = %d", cfg.Server.WebhookRatePerMinute)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `{
		// comments are fine, this is json5
		server: { host: "127.0.0.1", port: 8080 },
		backends: [
			{ name: "dify", role: "ai", url: "http://ai.internal" },
		],
	}`)

	t.Setenv("FRIDGELINE_PORT", "9999")
	t.Setenv("FRIDGELINE_LINE_CHANNEL_SECRET", "sec")
	t.Setenv("FRIDGELINE_LINE_CHANNEL_TOKEN", "tok")
	t.Setenv("FRIDGELINE_BACKEND_DIFY_API_KEY", "app-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, env must win", cfg.Server.Port)
	}
	if len(cfg.Backends) != 1 || cfg.Backends[0].APIKey != "app-key" {
		t.Errorf("backends = %+v", cfg.Backends)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error with no credentials")
	}

	cfg.Line.ChannelSecret = "s"
	cfg.Line.ChannelToken = "t"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	cfg.Backends = []BackendConfig{{Name: "x", Role: "weird", URL: "http://x"}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown role")
	}
}
