package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Auth      AuthConfig       `toml:"auth"`
	Quota     QuotaConfig      `toml:"quota"`
	Render    RenderConfig     `toml:"render"`
	Paths     PathsConfig      `toml:"paths"`
	Server    ServerConfig     `toml:"server"`
	Providers []ProviderConfig `toml:"providers"`
}

// AuthConfig controls bearer token validation.
// Required should only be disabled for local development.
type AuthConfig struct {
	Required     bool     `toml:"required"`
	Tokens       []string `toml:"tokens"`
	ExemptOwners []string `toml:"exempt_owners"`
}

// QuotaConfig controls per-owner daily usage accounting.
// Backend selects the counter store: "memory", "sqlite" or "redis".
type QuotaConfig struct {
	DailyLimit int    `toml:"daily_limit"`
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
	RedisAddr  string `toml:"redis_addr"`
}

// RenderConfig bounds task execution.
type RenderConfig struct {
	Concurrency   int  `toml:"concurrency"`
	RetryAttempts int  `toml:"retry_attempts"`
	AllowSync     bool `toml:"allow_sync"`
}

// PathsConfig lists the directories the Path Guard permits.
// OutputDir is where rendered audio and uploaded MIDI are written.
type PathsConfig struct {
	OutputDir    string   `toml:"output_dir"`
	AllowedRoots []string `toml:"allowed_roots"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string  `toml:"host"`
	Port         int     `toml:"port"`
	RateLimitRPS float64 `toml:"rate_limit_rps"`
}

// ProviderConfig describes one audio rendering provider.
// Kind is one of "local", "hf" or "replicate"; descriptors are loaded once
// at process start and never mutated.
type ProviderConfig struct {
	Name       string `toml:"name"`
	Kind       string `toml:"kind"`
	Endpoint   string `toml:"endpoint"`
	Token      string `toml:"token"`
	Model      string `toml:"model"`
	TimeoutSec int    `toml:"timeout_sec"`
	MaxSeconds int    `toml:"max_seconds"`
	Fallback   bool   `toml:"fallback"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the invariants the rest of the process relies on.
func (c *Config) Validate() error {
	if c.Render.Concurrency < 1 {
		return fmt.Errorf("%w: render concurrency must be at least 1", ErrInvalidConfig)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("%w: at least one provider is required", ErrInvalidConfig)
	}
	for _, p := range c.Providers {
		switch p.Kind {
		case "local", "hf", "replicate":
		default:
			return fmt.Errorf("%w: unknown provider kind %q", ErrInvalidConfig, p.Kind)
		}
	}
	switch c.Quota.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("%w: unknown quota backend %q", ErrInvalidConfig, c.Quota.Backend)
	}
	return nil
}

// ActiveProvider returns the provider descriptor selected for rendering,
// preferring the first non-fallback entry and falling back to the first entry.
func (c *Config) ActiveProvider() ProviderConfig {
	for _, p := range c.Providers {
		if !p.Fallback {
			return p
		}
	}
	return c.Providers[0]
}
