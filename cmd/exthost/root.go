package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "exthost",
	Short:         "Extension host runtime",
	SilenceErrors: true,
	SilenceUsage:  true,
	Long: `exthost runs third-party extensions in isolated sandboxes and serves
the developer console API.

Commands:
  serve     Run the host and its console API
  validate  Check a manifest file
  catalog   Inspect a directory catalog`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(catalogCmd)
}
