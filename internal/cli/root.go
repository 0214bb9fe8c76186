// Package cli holds the havi-knowledge command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "havi-knowledge",
	Short:         "Household knowledge and inference engine",
	Long:          "havi-knowledge turns facts detected in caregiver messages into deduplicated, confirmable household knowledge.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(detectCmd)
}
