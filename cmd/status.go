package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fsindex/internal/query"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report index counts and build state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, st, err := openReadSide(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		status, err := query.New(st, nil).Status(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Entries:      %d (%d files, %d dirs)\n",
			status.TotalEntries, status.TotalFiles, status.TotalDirs)
		fmt.Printf("Media:        %d images, %d videos, %d audio\n",
			status.TotalImages, status.TotalVideos, status.TotalAudio)
		if status.IndexedRoot != "" {
			fmt.Printf("Indexed root: %s (%s paths)\n", status.IndexedRoot, status.PathMode)
		}
		switch {
		case status.BuildInProgress:
			fmt.Println("Last built:   build in progress")
		case status.LastBuilt.IsZero():
			fmt.Println("Last built:   never")
		default:
			fmt.Printf("Last built:   %s\n", status.LastBuilt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
