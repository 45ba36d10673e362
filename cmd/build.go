package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var buildForce bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the index for ROOT_DIR",
	Long: `Build crawls ROOT_DIR and populates the index. Without --force it is a
no-op when a complete index for the same root and path mode already exists.
An interrupted build leaves the index marked incomplete so the next run
starts over.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		e.cfg.LogSummary()
		return e.idx.Build(ctx, buildForce)
	},
}

func init() {
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false,
		"rebuild even if a complete index exists")
	rootCmd.AddCommand(buildCmd)
}
