package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .rxlens.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to rxlens! Let's configure your analyzer.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Model selection.
	modelPrompt := promptui.Select{
		Label: "Select vision model",
		Items: []string{cfg.Model, "other (enter manually)"},
	}
	idx, model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model selection: %w", err)
	}
	if idx == 1 {
		customPrompt := promptui.Prompt{
			Label: "Model identifier",
			Validate: func(s string) error {
				if s == "" {
					return fmt.Errorf("model must not be empty")
				}
				return nil
			},
		}
		if model, err = customPrompt.Run(); err != nil {
			return nil, fmt.Errorf("model entry: %w", err)
		}
	}
	cfg.Model = model

	// 2. API base.
	basePrompt := promptui.Prompt{
		Label:   "Vision API base URL",
		Default: cfg.APIBase,
	}
	if cfg.APIBase, err = basePrompt.Run(); err != nil {
		return nil, fmt.Errorf("api base entry: %w", err)
	}

	// 3. Server port.
	portPrompt := promptui.Prompt{
		Label:   "HTTP server port",
		Default: strconv.Itoa(cfg.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port entry: %w", err)
	}
	cfg.Port, _ = strconv.Atoi(portStr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(DefaultConfigFile); err != nil {
		return nil, err
	}

	fmt.Println()
	fmt.Printf("Saved %s.\n", DefaultConfigFile)
	if APIKey() == "" {
		fmt.Println("Remember to export RXLENS_API_KEY before running analyses.")
	}
	return cfg, nil
}
