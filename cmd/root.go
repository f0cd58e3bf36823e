package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "rxlens",
	Short: "AI-powered handwritten prescription analysis",
	Long: `Rxlens reads handwritten doctor's prescriptions with a vision model,
extracts structured medication data through a staged safety pipeline,
and serves a constrained chat for follow-up questions. Ambiguous
handwriting is surfaced for human resolution instead of being guessed.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".rxlens.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
