// Package config loads the rxlens configuration: a YAML file overlaid
// with RXLENS_* environment variables. The vision API key deliberately
// stays out of the file; it is read from the environment at client
// construction.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Config is the top-level rxlens configuration, corresponding to .rxlens.yml.
type Config struct {
	Model   string `yaml:"model" koanf:"model"`
	APIBase string `yaml:"api_base" koanf:"api_base"`
	Port    int    `yaml:"port" koanf:"port"`
	DataDir string `yaml:"data_dir" koanf:"data_dir"`

	Chat ChatConfig `yaml:"chat" koanf:"chat"`
}

// ChatConfig holds the default sampling parameters for chat turns.
// Pipeline stages use their own pinned parameters.
type ChatConfig struct {
	Temperature float64 `yaml:"temperature" koanf:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" koanf:"max_tokens"`
	TopP        float64 `yaml:"top_p" koanf:"top_p"`
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (RXLENS_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: RXLENS_MODEL -> model, etc.
	if err := k.Load(env.Provider("RXLENS_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "RXLENS_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.APIBase == "" {
		return fmt.Errorf("api_base is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Chat.MaxTokens <= 0 {
		return fmt.Errorf("chat.max_tokens must be positive")
	}
	return nil
}

// APIKey returns the vision API key from the environment, preferring
// RXLENS_API_KEY with VISION_API_KEY as the legacy alias. Empty means
// unset; the vision client treats that as a fatal configuration error.
func APIKey() string {
	if key := os.Getenv("RXLENS_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("VISION_API_KEY")
}
