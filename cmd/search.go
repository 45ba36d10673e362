package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fsindex/internal/filetypes"
	"fsindex/internal/query"
	"fsindex/internal/store"
)

var (
	searchLimit int
	searchScope string
	searchType  string
	searchFlat  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the index by name substring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, st, err := openReadSide(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := query.New(st, nil)
		result, err := svc.Search(ctx, store.SearchOptions{
			Term:      args[0],
			Scope:     searchScope,
			Recursive: !searchFlat,
			Category:  filetypes.Category(searchType),
			PageSize:  searchLimit,
		})
		if err != nil {
			return err
		}

		for _, e := range result.Items {
			kind := string(e.Type)
			if e.IsDir {
				kind = "dir"
			}
			fmt.Printf("%-9s %10d  %s\n", kind, e.Size, e.Path)
		}
		fmt.Printf("\n%d of %d matches for %q\n", len(result.Items), result.TotalItems, result.Term)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "maximum results to print")
	searchCmd.Flags().StringVar(&searchScope, "scope", "", "restrict to a subtree (canonical path)")
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "", "filter by category (image, video, audio, ...)")
	searchCmd.Flags().BoolVar(&searchFlat, "flat", false, "match only the scope's immediate children")
	rootCmd.AddCommand(searchCmd)
}
