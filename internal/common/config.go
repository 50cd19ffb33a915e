// Package common provides shared utilities for mfdesk
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// DefaultSessionSecret is the development signing secret. It is rejected in production.
const DefaultSessionSecret = "dev-session-secret-change-in-production"

// Config holds all configuration for mfdesk
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Auth        AuthConfig    `toml:"auth"`
	Optimizer   ProcessConfig `toml:"optimizer"`
	Chat        ChatConfig    `toml:"chat"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	StaticDir     string `toml:"static_dir"`     // SPA build output; embedded shell when empty
	AllowedOrigin string `toml:"allowed_origin"` // CORS origin for a separately hosted SPA
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend   string `toml:"backend"` // "memory" (default) or "surrealdb"
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// AuthConfig holds session and login configuration.
type AuthConfig struct {
	SessionSecret string  `toml:"session_secret"`
	SessionTTL    string  `toml:"session_ttl"`   // duration string, default "24h"
	SessionSweep  string  `toml:"session_sweep"` // duration string, default "10m"
	CookieName    string  `toml:"cookie_name"`
	LoginRate     float64 `toml:"login_rate"` // attempts per second per client IP
	LoginBurst    int     `toml:"login_burst"`
}

// GetSessionTTL parses and returns the session lifetime.
func (c *AuthConfig) GetSessionTTL() time.Duration {
	return parseDurationOr(c.SessionTTL, 24*time.Hour)
}

// GetSessionSweep parses and returns the expired-session sweep interval.
func (c *AuthConfig) GetSessionSweep() time.Duration {
	return parseDurationOr(c.SessionSweep, 10*time.Minute)
}

// ProcessConfig configures an external process bridge.
type ProcessConfig struct {
	Command       []string `toml:"command"`
	MaxConcurrent int      `toml:"max_concurrent"`
	Timeout       string   `toml:"timeout"`
	QueueTimeout  string   `toml:"queue_timeout"`
}

// GetTimeout parses and returns the per-call timeout
func (c *ProcessConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 60*time.Second)
}

// GetQueueTimeout parses and returns how long a call may wait for a free slot
func (c *ProcessConfig) GetQueueTimeout() time.Duration {
	return parseDurationOr(c.QueueTimeout, 10*time.Second)
}

// GetMaxConcurrent returns the process slot count, at least 1.
func (c *ProcessConfig) GetMaxConcurrent() int {
	if c.MaxConcurrent <= 0 {
		return 4
	}
	return c.MaxConcurrent
}

// ChatConfig configures the support chat bridge.
type ChatConfig struct {
	Provider     string        `toml:"provider"` // "knowledge" (default), "process" or "gemini"
	Process      ProcessConfig `toml:"process"`
	KnowledgeDir string        `toml:"knowledge_dir"`
	Gemini       GeminiConfig  `toml:"gemini"`
	RateLimit    float64       `toml:"rate_limit"` // messages per second per client IP
	RateBurst    int           `toml:"rate_burst"`
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "text"
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Storage: StorageConfig{
			Backend:   "memory",
			Address:   "ws://localhost:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "mfdesk",
			Database:  "mfdesk",
		},
		Auth: AuthConfig{
			SessionSecret: DefaultSessionSecret,
			SessionTTL:    "24h",
			SessionSweep:  "10m",
			CookieName:    "mfdesk_session",
			LoginRate:     1,
			LoginBurst:    10,
		},
		Optimizer: ProcessConfig{
			Command:       []string{"python3", "server/portfolio_optimizer.py"},
			MaxConcurrent: 4,
			Timeout:       "60s",
			QueueTimeout:  "10s",
		},
		Chat: ChatConfig{
			Provider: "knowledge",
			Process: ProcessConfig{
				Command:       []string{"python3", "server/chat_processor.py"},
				MaxConcurrent: 2,
				Timeout:       "30s",
				QueueTimeout:  "5s",
			},
			KnowledgeDir: "knowledge",
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
			RateLimit: 1,
			RateBurst: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MFDESK_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("MFDESK_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("MFDESK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if dir := os.Getenv("MFDESK_STATIC_DIR"); dir != "" {
		config.Server.StaticDir = dir
	}

	if level := os.Getenv("MFDESK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("MFDESK_SESSION_SECRET"); v != "" {
		config.Auth.SessionSecret = v
	}

	if v := os.Getenv("MFDESK_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("MFDESK_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}

	if v := os.Getenv("MFDESK_OPTIMIZER_COMMAND"); v != "" {
		config.Optimizer.Command = strings.Fields(v)
	}

	if v := os.Getenv("MFDESK_CHAT_PROVIDER"); v != "" {
		config.Chat.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("MFDESK_KNOWLEDGE_DIR"); v != "" {
		config.Chat.KnowledgeDir = v
	}

	for _, name := range []string{"GEMINI_API_KEY", "MFDESK_GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			config.Chat.Gemini.APIKey = v
			break
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Validate returns a list of configuration problems. An empty list means the
// configuration is usable.
func (c *Config) Validate() []string {
	var problems []string

	if c.IsProduction() && (c.Auth.SessionSecret == "" || c.Auth.SessionSecret == DefaultSessionSecret) {
		problems = append(problems, "auth.session_secret must be set in production")
	}

	switch c.Storage.Backend {
	case "", "memory", "surrealdb":
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q is not supported", c.Storage.Backend))
	}

	if len(c.Optimizer.Command) == 0 {
		problems = append(problems, "optimizer.command is required")
	}

	switch c.Chat.Provider {
	case "", "knowledge":
	case "process":
		if len(c.Chat.Process.Command) == 0 {
			problems = append(problems, "chat.process.command is required for the process provider")
		}
	case "gemini":
		if c.Chat.Gemini.APIKey == "" {
			problems = append(problems, "chat.gemini.api_key is required for the gemini provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("chat.provider %q is not supported", c.Chat.Provider))
	}

	return problems
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
