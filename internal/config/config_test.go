package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	if c.LLM.Provider != "openai" {
		t.Fatalf("expected openai, got %s", c.LLM.Provider)
	}
	if c.Server.Port != 3000 {
		t.Fatalf("expected port 3000")
	}
	if c.Throttle.MaxRequests != 3 || c.Throttle.Window != time.Minute || c.Throttle.Cooldown != time.Minute {
		t.Fatalf("unexpected throttle defaults %+v", c.Throttle)
	}
	if c.Server.RateLimit.MaxRequests != 20 {
		t.Fatalf("expected server rate limit of 20")
	}
	if c.LLM.Retry.MaxAttempts != 3 || c.LLM.Retry.BaseDelay != 2*time.Second {
		t.Fatalf("unexpected retry defaults %+v", c.LLM.Retry)
	}
	if c.Log.Level != "info" || c.Log.Format != "text" {
		t.Fatalf("unexpected log defaults")
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	data := "llm:\n  model: gemini-2.5-pro\n  language: TH\nserver:\n  port: 8080\nthrottle:\n  cooldown: 90s\n"
	if err := os.WriteFile(cfgPath, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Model != "gemini-2.5-pro" || cfg.LLM.Language != "TH" {
		t.Fatalf("unexpected llm %+v", cfg.LLM)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
	if cfg.Throttle.Cooldown != 90*time.Second {
		t.Fatalf("unexpected cooldown %v", cfg.Throttle.Cooldown)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("expected default host")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-gemini")
	t.Setenv("FOUNDRY_SERVER_PORT", "9090")
	t.Setenv("FOUNDRY_THROTTLE_WINDOW", "30s")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "from-gemini" {
		t.Fatalf("expected GEMINI_API_KEY alias, got %q", cfg.LLM.APIKey)
	}
	if cfg.Server.Port != 9090 || cfg.Throttle.Window != 30*time.Second {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}

	t.Setenv("FOUNDRY_LLM_API_KEY", "explicit")
	cfg, _ = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.LLM.APIKey != "explicit" {
		t.Fatalf("FOUNDRY_LLM_API_KEY must win, got %q", cfg.LLM.APIKey)
	}
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	c.Store.Path = filepath.Join(t.TempDir(), "db", "foundry.db")
	if err := c.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	c.LLM.APIKey = ""
	if err := c.ValidateServe(); err == nil {
		t.Fatalf("expected serve validation error")
	}
	c.LLM.Provider = "ollama"
	if err := c.ValidateServe(); err != nil {
		t.Fatalf("ollama needs no api key: %v", err)
	}

	c.Throttle.Cooldown = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected throttle validation error")
	}
	c.SetDefaults()
	c.Log.Format = "xml"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected log format error")
	}
}
