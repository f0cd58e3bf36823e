package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rxlens/rxlens/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize rxlens configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the vision model and server, and generates a .rxlens.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
