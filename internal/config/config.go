package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHost       = "127.0.0.1"
	defaultPort       = 3000
	defaultConfigPath = "config.toml"
	configPathEnv     = "LLMUX_CONFIG"
)

type Config struct {
	Server    ServerConfig     `toml:"server"`
	Providers []ProviderConfig `toml:"providers"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ProviderConfig is the identity of one executor family. The limit fields are
// the provider-level defaults used for auto-model requests; model entries
// fully override them, they are never merged.
type ProviderConfig struct {
	Name              string        `toml:"name"`
	SupportsAutoModel *bool         `toml:"supports_auto_model"`
	RPS               int           `toml:"rps"`
	RPM               int           `toml:"rpm"`
	Concurrent        int           `toml:"concurrent"`
	TimeoutSecs       int           `toml:"timeout_secs"`
	Models            []ModelConfig `toml:"models"`
}

// AutoModelAllowed reports whether requests may omit the model. Defaults to
// true when the field is absent from the config file.
func (p ProviderConfig) AutoModelAllowed() bool {
	return p.SupportsAutoModel == nil || *p.SupportsAutoModel
}

type ModelConfig struct {
	Name        string `toml:"name"`
	RPS         int    `toml:"rps"`
	RPM         int    `toml:"rpm"`
	Concurrent  int    `toml:"concurrent"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// Load reads and parses the TOML config at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	conf := defaults()
	if err := toml.Unmarshal(content, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return conf, nil
}

// ReadConfig loads the config from the path in LLMUX_CONFIG (falling back to
// config.toml). A missing or broken file is not fatal: the server starts with
// defaults and no providers, matching an empty config.
func ReadConfig() *Config {
	path := getEnvOrDefault(configPathEnv, defaultConfigPath)

	conf, err := Load(path)
	if err != nil {
		slog.Warn("Unable to load config, using defaults", slog.String("path", path), slog.Any("error", err))
		return defaults()
	}

	return conf
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: defaultHost,
			Port: defaultPort,
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
