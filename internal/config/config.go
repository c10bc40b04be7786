package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDirName  = ".foundry"
	defaultFileName = "config.yaml"
	defaultDBName   = "foundry.db"
)

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	// Language is EN or TH.
	Language      string        `yaml:"language"`
	HistoryTokens int           `yaml:"history_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	Retry         RetryConfig   `yaml:"retry"`
}

type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type ServerConfig struct {
	Host       string          `yaml:"host"`
	Port       int             `yaml:"port"`
	CORSOrigin string          `yaml:"cors_origin"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

// ThrottleConfig is the client-side request throttle.
type ThrottleConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	AdminEmail string `yaml:"admin_email"`
}

type SanitizeConfig struct {
	Headers     []string `yaml:"headers"`
	BodyFields  []string `yaml:"body_fields"`
	Replacement string   `yaml:"replacement"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Server   ServerConfig   `yaml:"server"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Client   ClientConfig   `yaml:"client"`
	Store    StoreConfig    `yaml:"store"`
	Auth     AuthConfig     `yaml:"auth"`
	Sanitize SanitizeConfig `yaml:"sanitize"`
	Log      LogConfig      `yaml:"log"`
}

// DefaultDir returns ~/.foundry.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultDirName), nil
}

// DefaultPath returns ~/.foundry/config.yaml.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultFileName), nil
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Language == "" {
		c.LLM.Language = "EN"
	}
	if c.LLM.HistoryTokens == 0 {
		c.LLM.HistoryTokens = 16000
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120 * time.Second
	}
	if c.LLM.Retry.MaxAttempts == 0 {
		c.LLM.Retry.MaxAttempts = 3
	}
	if c.LLM.Retry.BaseDelay == 0 {
		c.LLM.Retry.BaseDelay = 2 * time.Second
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.RateLimit.MaxRequests == 0 {
		c.Server.RateLimit.MaxRequests = 20
	}
	if c.Server.RateLimit.Window == 0 {
		c.Server.RateLimit.Window = time.Minute
	}
	if c.Throttle.MaxRequests == 0 {
		c.Throttle.MaxRequests = 3
	}
	if c.Throttle.Window == 0 {
		c.Throttle.Window = 60 * time.Second
	}
	if c.Throttle.Cooldown == 0 {
		c.Throttle.Cooldown = 60 * time.Second
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = "http://127.0.0.1:3000"
	}
	if c.Store.Path == "" {
		if dir, err := DefaultDir(); err == nil {
			c.Store.Path = filepath.Join(dir, defaultDBName)
		}
	}
	if len(c.Sanitize.Headers) == 0 {
		c.Sanitize.Headers = []string{"Authorization", "Cookie", "Set-Cookie", "X-Api-Key", "X-Goog-Api-Key"}
	}
	if len(c.Sanitize.BodyFields) == 0 {
		c.Sanitize.BodyFields = []string{"password", "secret", "token", "api_key", "access_token", "refresh_token", "image"}
	}
	if c.Sanitize.Replacement == "" {
		c.Sanitize.Replacement = "***REDACTED***"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("llm.provider must be openai, anthropic or ollama, got %q", c.LLM.Provider)
	}
	switch strings.ToUpper(c.LLM.Language) {
	case "EN", "TH":
	default:
		return fmt.Errorf("llm.language must be EN or TH, got %q", c.LLM.Language)
	}
	if c.LLM.Retry.MaxAttempts < 1 {
		return errors.New("llm.retry.max_attempts must be at least 1")
	}
	if c.Throttle.MaxRequests < 1 || c.Throttle.Window <= 0 || c.Throttle.Cooldown <= 0 {
		return errors.New("throttle.max_requests, window and cooldown must be positive")
	}
	if c.Server.RateLimit.MaxRequests < 1 || c.Server.RateLimit.Window <= 0 {
		return errors.New("server.rate_limit.max_requests and window must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ValidateServe enforces serve-specific requirements.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.LLM.Provider != "ollama" && strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.api_key cannot be empty")
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return errors.New("store.path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(c.Store.Path), 0o755); err != nil {
		return fmt.Errorf("store.path not writable: %w", err)
	}
	return nil
}

func applyEnvOverrides(c *Config) {
	setString(&c.LLM.Provider, "FOUNDRY_LLM_PROVIDER")
	setString(&c.LLM.APIKey, "GEMINI_API_KEY")
	setString(&c.LLM.APIKey, "FOUNDRY_LLM_API_KEY")
	setString(&c.LLM.BaseURL, "FOUNDRY_LLM_BASE_URL")
	setString(&c.LLM.Model, "FOUNDRY_LLM_MODEL")
	setString(&c.LLM.Language, "FOUNDRY_LLM_LANGUAGE")
	setInt(&c.LLM.Retry.MaxAttempts, "FOUNDRY_LLM_RETRY_MAX_ATTEMPTS")
	setDuration(&c.LLM.Retry.BaseDelay, "FOUNDRY_LLM_RETRY_BASE_DELAY")
	setString(&c.Server.Host, "FOUNDRY_SERVER_HOST")
	setInt(&c.Server.Port, "FOUNDRY_SERVER_PORT")
	setString(&c.Server.CORSOrigin, "FOUNDRY_SERVER_CORS_ORIGIN")
	setInt(&c.Throttle.MaxRequests, "FOUNDRY_THROTTLE_MAX_REQUESTS")
	setDuration(&c.Throttle.Window, "FOUNDRY_THROTTLE_WINDOW")
	setDuration(&c.Throttle.Cooldown, "FOUNDRY_THROTTLE_COOLDOWN")
	setString(&c.Client.ServerURL, "FOUNDRY_CLIENT_SERVER_URL")
	setString(&c.Client.Token, "FOUNDRY_CLIENT_TOKEN")
	setString(&c.Store.Path, "FOUNDRY_STORE_PATH")
	setString(&c.Auth.JWTSecret, "FOUNDRY_AUTH_JWT_SECRET")
	setString(&c.Auth.AdminEmail, "FOUNDRY_AUTH_ADMIN_EMAIL")
	setString(&c.Log.Level, "FOUNDRY_LOG_LEVEL")
	setString(&c.Log.Format, "FOUNDRY_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
