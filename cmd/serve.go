package cmd

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"fsindex/internal/logging"
	"fsindex/internal/monitor"
	"fsindex/internal/query"
	"fsindex/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build if needed, monitor, and serve the query API",
	Long: `Serve runs the whole engine: the HTTP API starts immediately (readiness
gated on a complete index), the index is built in the background when
missing or when REBUILD_ON_START is set, and the change monitor keeps it
synchronized afterwards.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		e.cfg.LogSummary()

		svc := query.New(e.st, e.idx)
		srv := server.New(svc, server.Config{
			Port:           e.cfg.Port,
			MetricsPort:    e.cfg.MetricsPort,
			MetricsEnabled: e.cfg.MetricsEnabled,
		})

		// The build runs behind the server so probes and status answer from
		// the first moment; the monitor attaches once the index is complete.
		var mon atomic.Pointer[monitor.Monitor]
		go func() {
			if err := e.idx.Build(ctx, e.cfg.RebuildOnStart); err != nil {
				logging.Error("Index build failed: %v", err)
				return
			}
			if !e.cfg.WatchEnabled {
				return
			}
			m := e.newMonitor()
			if err := m.Start(ctx); err != nil {
				logging.Error("Failed to start monitor: %v", err)
				return
			}
			mon.Store(m)
		}()

		err = srv.Run(ctx)

		if m := mon.Load(); m != nil {
			m.Stop()
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
