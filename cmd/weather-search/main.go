/*
Package main is the entry point for the weather-search CLI.

Usage:

	weather-search [command]

Available Commands:

	serve       Run the JSON HTTP adapter over one search session
	lookup      Look up current weather for a city once
	version     Show version information
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "weather-search",
		Short: "Current weather lookup with suggestions and search history",
		Long: `weather-search looks up current weather for a city (optionally narrowed by
country), suggests city and country completions while typing, and keeps the
five most recent successful searches.

Configuration is read from config/{ENV_NAME}.yaml, config/secrets.yaml and an
optional .env file in the working directory.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLookupCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
