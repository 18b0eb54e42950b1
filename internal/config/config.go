// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/jeranaias/cardiochat/internal/generator"
	"github.com/jeranaias/cardiochat/internal/session"
	"github.com/jeranaias/cardiochat/internal/storage"
	"github.com/jeranaias/cardiochat/internal/tools"
	"github.com/jeranaias/cardiochat/internal/util"
)

// =============================================================================
// CONFIG TYPES
// =============================================================================

// Config is the main configuration structure for cardiochat.
type Config struct {
	Model     ModelConfig     `toml:"model"`
	Generator GeneratorConfig `toml:"generator"`
	Storage   StorageConfig   `toml:"storage"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Log       LogConfig       `toml:"log"`
}

// ModelConfig selects the Ollama model that answers questions.
type ModelConfig struct {
	OllamaURL       string        `toml:"ollama_url"`
	Name            string        `toml:"name"`
	MaxOutputTokens int           `toml:"max_output_tokens"`
	StreamTimeout   time.Duration `toml:"stream_timeout"` // 0 disables
}

// GeneratorConfig tunes the streaming response generator.
type GeneratorConfig struct {
	SystemPrompt string        `toml:"system_prompt"`
	ToolDelay    time.Duration `toml:"tool_delay"`
}

// StorageConfig selects where conversations are saved.
type StorageConfig struct {
	Backend string `toml:"backend"` // file, sqlite or badger
	Dir     string `toml:"dir"`
}

// ServerConfig holds the HTTP host settings.
type ServerConfig struct {
	Host          string  `toml:"host"`
	Port          int     `toml:"port"`
	RateLimit     float64 `toml:"rate_limit"` // requests per second per client
	RateBurst     int     `toml:"rate_burst"`
	AllowedOrigin string  `toml:"allowed_origin"`
}

// AuthConfig holds the session token settings.
type AuthConfig struct {
	JWTSecret   string        `toml:"jwt_secret"`
	TokenTTL    time.Duration `toml:"token_ttl"`
	IdleTimeout time.Duration `toml:"idle_timeout"`
	LocalUser   string        `toml:"local_user"` // identity of the terminal client
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	dir := ".cardiochat"
	if configDir, err := ConfigDir(); err == nil {
		dir = configDir
	}

	return &Config{
		Model: ModelConfig{
			OllamaURL:       "http://127.0.0.1:11434",
			Name:            "llama3.1:8b",
			MaxOutputTokens: generator.DefaultMaxOutputTokens,
		},
		Generator: GeneratorConfig{
			SystemPrompt: tools.SystemInstruction,
			ToolDelay:    generator.DefaultToolDelay,
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
			Dir:     dir,
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			RateLimit: 5,
			RateBurst: 10,
		},
		Auth: AuthConfig{
			TokenTTL:    24 * time.Hour,
			IdleTimeout: 15 * time.Minute,
			LocalUser:   defaultLocalUser(),
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

func defaultLocalUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "local"
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Model.OllamaURL == "" {
		cfg.Model.OllamaURL = defaults.Model.OllamaURL
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = defaults.Model.Name
	}
	if cfg.Model.MaxOutputTokens == 0 {
		cfg.Model.MaxOutputTokens = defaults.Model.MaxOutputTokens
	}

	if cfg.Generator.SystemPrompt == "" {
		cfg.Generator.SystemPrompt = defaults.Generator.SystemPrompt
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = defaults.Storage.Dir
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = defaults.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = defaults.Server.RateLimit
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = defaults.Server.RateBurst
	}

	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = defaults.Auth.TokenTTL
	}
	if cfg.Auth.LocalUser == "" {
		cfg.Auth.LocalUser = defaults.Auth.LocalUser
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the cardiochat configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".cardiochat"), nil
}

// ConfigPath returns the default configuration file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions resets the file mode to 0600 if it is wider.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the default configuration file if it exists, then applies
// .env and environment overrides.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file. The file must exist.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadTOML decodes a TOML file into cfg and fills missing values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions on config file",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		slog.Warn("unknown config keys ignored", slog.String("keys", strings.Join(keys, ", ")))
	}

	fillDefaults(cfg)
	return nil
}

func finish(cfg *Config) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveTOML writes the configuration to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	err := util.WriteAtomic(path, 0o600, func(w io.Writer) error {
		if _, err := io.WriteString(w, "# cardiochat configuration file\n\n"); err != nil {
			return err
		}
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// envOverrides lists the variables that override file settings. Unset
// variables leave the pointer nil.
type envOverrides struct {
	OllamaURL       *string        `env:"CARDIOCHAT_OLLAMA_URL"`
	Model           *string        `env:"CARDIOCHAT_MODEL"`
	MaxOutputTokens *int           `env:"CARDIOCHAT_MAX_OUTPUT_TOKENS"`
	StreamTimeout   *time.Duration `env:"CARDIOCHAT_STREAM_TIMEOUT"`
	SystemPrompt    *string        `env:"CARDIOCHAT_SYSTEM_PROMPT"`
	ToolDelay       *time.Duration `env:"CARDIOCHAT_TOOL_DELAY"`
	StorageBackend  *string        `env:"CARDIOCHAT_STORAGE_BACKEND"`
	StorageDir      *string        `env:"CARDIOCHAT_STORAGE_DIR"`
	Host            *string        `env:"CARDIOCHAT_HOST"`
	Port            *int           `env:"CARDIOCHAT_PORT"`
	RateLimit       *float64       `env:"CARDIOCHAT_RATE_LIMIT"`
	RateBurst       *int           `env:"CARDIOCHAT_RATE_BURST"`
	AllowedOrigin   *string        `env:"CARDIOCHAT_ALLOWED_ORIGIN"`
	JWTSecret       *string        `env:"CARDIOCHAT_JWT_SECRET"`
	TokenTTL        *time.Duration `env:"CARDIOCHAT_TOKEN_TTL"`
	IdleTimeout     *time.Duration `env:"CARDIOCHAT_IDLE_TIMEOUT"`
	LocalUser       *string        `env:"CARDIOCHAT_LOCAL_USER"`
	LogLevel        *string        `env:"CARDIOCHAT_LOG_LEVEL"`
}

// ApplyEnvOverrides overlays CARDIOCHAT_* environment variables.
func (c *Config) ApplyEnvOverrides() error {
	var o envOverrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	setString(&c.Model.OllamaURL, o.OllamaURL)
	setString(&c.Model.Name, o.Model)
	setValue(&c.Model.MaxOutputTokens, o.MaxOutputTokens)
	setValue(&c.Model.StreamTimeout, o.StreamTimeout)
	setString(&c.Generator.SystemPrompt, o.SystemPrompt)
	setValue(&c.Generator.ToolDelay, o.ToolDelay)
	setString(&c.Storage.Backend, o.StorageBackend)
	setString(&c.Storage.Dir, o.StorageDir)
	setString(&c.Server.Host, o.Host)
	setValue(&c.Server.Port, o.Port)
	setValue(&c.Server.RateLimit, o.RateLimit)
	setValue(&c.Server.RateBurst, o.RateBurst)
	setValue(&c.Server.AllowedOrigin, o.AllowedOrigin)
	setValue(&c.Auth.JWTSecret, o.JWTSecret)
	setValue(&c.Auth.TokenTTL, o.TokenTTL)
	setValue(&c.Auth.IdleTimeout, o.IdleTimeout)
	setString(&c.Auth.LocalUser, o.LocalUser)
	setString(&c.Log.Level, o.LogLevel)
	return nil
}

// setString ignores empty values so a blank variable cannot clear a
// required setting.
func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setValue[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.Model.OllamaURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("model.ollama_url", "invalid URL '%s'", c.Model.OllamaURL)
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		add("model.name", "must not be empty")
	}
	if c.Model.MaxOutputTokens < 0 {
		add("model.max_output_tokens", "must not be negative, got %d", c.Model.MaxOutputTokens)
	}
	if c.Model.StreamTimeout < 0 {
		add("model.stream_timeout", "must not be negative, got %s", c.Model.StreamTimeout)
	}
	if c.Generator.ToolDelay < 0 {
		add("generator.tool_delay", "must not be negative, got %s", c.Generator.ToolDelay)
	}

	switch c.Storage.Backend {
	case storage.BackendFile, storage.BackendSQLite, storage.BackendBadger:
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite, badger", c.Storage.Backend)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative, got %g", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1, got %d", c.Server.RateBurst)
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		add("auth.jwt_secret", "must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		add("auth.token_ttl", "must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.Auth.IdleTimeout < 0 {
		add("auth.idle_timeout", "must not be negative, got %s", c.Auth.IdleTimeout)
	}

	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		add("log.level", "invalid level '%s', must be one of: DEBUG, INFO, WARN, ERROR", c.Log.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// COMPONENT CONFIGS
// =============================================================================

// GeneratorSettings returns the generator settings.
func (c *Config) GeneratorSettings() generator.Config {
	return generator.Config{
		SystemInstruction: c.Generator.SystemPrompt,
		MaxOutputTokens:   c.Model.MaxOutputTokens,
		ToolDelay:         c.Generator.ToolDelay,
		StreamTimeout:     c.Model.StreamTimeout,
	}
}

// StorageSettings returns the store settings.
func (c *Config) StorageSettings() storage.Config {
	return storage.Config{Backend: c.Storage.Backend, Dir: c.Storage.Dir}
}

// SessionSettings returns the token manager settings. An empty secret is
// left empty; the server refuses to start without one.
func (c *Config) SessionSettings() session.Config {
	return session.Config{
		Secret:      []byte(c.Auth.JWTSecret),
		TokenTTL:    c.Auth.TokenTTL,
		IdleTimeout: c.Auth.IdleTimeout,
		Issuer:      session.DefaultConfig().Issuer,
	}
}

// ServerAddr returns host:port for the HTTP listener.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
