package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newSearchCmd creates the 'search' subcommand, which queries the persisted index.
func newSearchCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search the persisted index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			idx, err := appInstance.LoadIndex(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := idx.Close(); cerr != nil {
					appInstance.Logger().Warn("close index failed", zap.Error(cerr))
				}
			}()

			query := strings.Join(args, " ")
			results, err := idx.Search(cmd.Context(), query)
			if err != nil {
				return fmt.Errorf("search %q: %w", query, err)
			}
			total := len(results)
			if limit > 0 && limit < total {
				results = results[:limit]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"query": query, "total": total, "results": results})
			}
			if total == 0 {
				fmt.Fprintf(out, "no results for %q\n", query)
				return nil
			}
			fmt.Fprintf(out, "%d results for %q\n", total, query)
			for i, r := range results {
				fmt.Fprintf(out, "%2d. %s (score %d)\n    %s\n    %s\n", i+1, r.Title, r.Score, r.URL, r.Preview)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results to print (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
