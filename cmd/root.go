package cmd

import (
	"github.com/spf13/cobra"

	"fsindex/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "fsindex",
	Short: "Filesystem indexing and monitoring engine",
	Long: `fsindex builds a queryable metadata index of a directory tree and keeps it
synchronized with live filesystem changes.

Configuration is environment-driven (optionally via a .env file in the
working directory). The most important options:

  ROOT_DIR    subtree to index (default ".")
  INDEX_DIR   where the index database lives (default "./index")
  PATH_MODE   "relative" or "absolute" path storage
  LOG_LEVEL   DEBUG, INFO, WARN, ERROR`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. It is the only entry point main uses.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Fatal("%v", err)
	}
}
