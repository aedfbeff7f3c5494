// Package cmd contains the CLI commands for hubctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// defaultDBPath is the default database path, can be overridden via COLLABHUB_DATABASE_PATH env var
var defaultDBPath = "./data/collabhub.db"

func init() {
	if envPath := os.Getenv("COLLABHUB_DATABASE_PATH"); envPath != "" {
		defaultDBPath = envPath
	}
}

var (
	// Used for flags
	verbose bool
	output  string
	dbPath  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hubctl",
	Short: "hubctl - collabhub administration",
	Long: `hubctl manages a collabhub database directly: users, projects,
API tokens and the notification outbox.

Examples:
  # Create a researcher and mint a token for them
  hubctl user create --username marie --email marie@example.org
  hubctl token --username marie

  # Show who collaborates on a project
  hubctl project collaborators --name "Coral Reef Survey"

  # Retry notifications that exhausted their attempts
  hubctl outbox list --status failed
  hubctl outbox retry --all`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath, "path to SQLite database file")
}

// printVerbose prints a message only if verbose mode is enabled.
func printVerbose(cmd *cobra.Command, format string, args ...any) {
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}
}
