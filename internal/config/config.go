// Package config describes the server configuration and loads it with koanf.
//
// Sources, later ones override earlier:
//  1. built-in defaults
//  2. YAML file
//  3. bare aliases API_KEY, GEMINI_API_KEY, SECRET_KEY
//  4. GOPHCHAT_* environment, e.g. GOPHCHAT_AUTH_TOKEN_TTL=30m
//  5. command line flags
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/gophchat/internal/chat"
)

// Драйверы хранилища учетных данных
const (
	DriverStatic   = "static"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Провайдеры LLM
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

// Config is the complete server configuration.
type Config struct {
	Log         LogConfig         `koanf:"log"`
	Server      ServerConfig      `koanf:"server"`
	LLM         LLMConfig         `koanf:"llm"`
	Auth        AuthConfig        `koanf:"auth"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Sessions    SessionsConfig    `koanf:"sessions"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type AuthConfig struct {
	SecretKey         string        `koanf:"secret_key"`
	Issuer            string        `koanf:"issuer"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	RequireForSession bool          `koanf:"require_for_session"`
	RequireForChat    bool          `koanf:"require_for_chat"`
}

// UserEntry is an inline credential, password_hash is argon2id or bcrypt.
type UserEntry struct {
	Username     string `koanf:"username"`
	PasswordHash string `koanf:"password_hash"`
}

type CredentialsConfig struct {
	Driver string      `koanf:"driver"`
	File   string      `koanf:"file"`
	DSN    string      `koanf:"dsn"`
	Users  []UserEntry `koanf:"users"`
}

type SessionsConfig struct {
	ContextTurns  int           `koanf:"context_turns"`
	MaxSessions   int           `koanf:"max_sessions"`
	IdleTTL       time.Duration `koanf:"idle_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type LLMConfig struct {
	Provider          string        `koanf:"provider"`
	Model             string        `koanf:"model"`
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	SystemInstruction string        `koanf:"system_instruction"`
	Temperature       float64       `koanf:"temperature"`
	MaxTokens         int           `koanf:"max_tokens"`
	ThinkingBudget    int           `koanf:"thinking_budget"`
	Timeout           time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaults returns built-in values as a flat koanf map.
func defaults() map[string]any {
	return map[string]any{
		"server.addr":             ":8080",
		"server.read_timeout":     10 * time.Second,
		"server.write_timeout":    90 * time.Second,
		"server.shutdown_timeout": 15 * time.Second,

		"auth.issuer":              "gophchat",
		"auth.token_ttl":           360 * time.Minute,
		"auth.require_for_session": false,
		"auth.require_for_chat":    true,

		"credentials.driver": DriverStatic,

		"sessions.context_turns":  chat.DefaultContextTurns,
		"sessions.max_sessions":   0,
		"sessions.idle_ttl":       24 * time.Hour,
		"sessions.sweep_interval": time.Minute,

		"llm.provider":           ProviderGoogleAI,
		"llm.model":              "gemini-2.5-flash",
		"llm.system_instruction": chat.DefaultSystemInstruction,
		"llm.temperature":        1.0,
		"llm.max_tokens":         1024,
		"llm.thinking_budget":    0,
		"llm.timeout":            chat.DefaultUpstreamTimeout,

		"log.level":  "info",
		"log.format": "text",
	}
}

// Verify checks the configuration and reports every problem at once.
func (c *Config) Verify() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	if c.Auth.SecretKey == "" {
		errs = append(errs, errors.New("auth.secret_key is required (set SECRET_KEY)"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL))
	}

	switch c.Credentials.Driver {
	case DriverStatic:
		if c.Credentials.File == "" && len(c.Credentials.Users) == 0 {
			errs = append(errs, errors.New("static credentials need credentials.file or credentials.users"))
		}
	case DriverSQLite, DriverPostgres:
		if c.Credentials.DSN == "" {
			errs = append(errs, fmt.Errorf("credentials.dsn is required for driver %q", c.Credentials.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown credentials.driver %q", c.Credentials.Driver))
	}

	if c.Sessions.MaxSessions < 0 {
		errs = append(errs, errors.New("sessions.max_sessions must not be negative"))
	}
	if c.Sessions.IdleTTL < 0 {
		errs = append(errs, errors.New("sessions.idle_ttl must not be negative"))
	}
	if c.Sessions.IdleTTL > 0 && c.Sessions.SweepInterval <= 0 {
		errs = append(errs, errors.New("sessions.sweep_interval must be positive when idle_ttl is set"))
	}

	switch c.LLM.Provider {
	case ProviderGoogleAI, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
