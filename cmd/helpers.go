package cmd

import (
	"fmt"

	"github.com/rxlens/rxlens/internal/config"
	"github.com/rxlens/rxlens/internal/vision"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `rxlens init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildClient creates the vision client from config plus the API key in
// the environment.
func buildClient(cfg *config.Config) (*vision.Client, error) {
	client, err := vision.NewClient(config.APIKey(), cfg.APIBase, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w\nSet RXLENS_API_KEY in your environment", err)
	}
	return client, nil
}
