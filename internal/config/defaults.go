package config

import "github.com/rxlens/rxlens/internal/vision"

// DefaultConfigFile is the conventional config file name.
const DefaultConfigFile = ".rxlens.yml"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	p := vision.DefaultParams()
	return &Config{
		Model:   vision.DefaultModel,
		APIBase: vision.DefaultAPIBase,
		Port:    8740,
		DataDir: ".rxlens",
		Chat: ChatConfig{
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
			TopP:        p.TopP,
		},
	}
}
