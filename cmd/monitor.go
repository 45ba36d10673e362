package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fsindex/internal/logging"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch ROOT_DIR and keep the index synchronized",
	Long: `Monitor watches ROOT_DIR for filesystem changes and applies them to the
index. A missing or incomplete index is built first; an existing complete
index is reused as-is.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		e.cfg.LogSummary()

		// Reuses a complete index, builds one otherwise.
		if err := e.idx.Build(ctx, false); err != nil {
			return err
		}

		mon := e.newMonitor()
		if err := mon.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		logging.Info("Shutting down")
		mon.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
