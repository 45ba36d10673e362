package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fsindex/internal/logging"
)

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Rebuild the index, then monitor for changes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		e.cfg.LogSummary()

		if err := e.idx.Build(ctx, true); err != nil {
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
	rootCmd.AddCommand(fullCmd)
}
