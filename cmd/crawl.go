package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand: crawl, build, persist, notify.
func newCrawlCmd() *cobra.Command {
	var (
		seed        string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a site and build its search index",
		Long: `Crawls every same-origin page reachable from the seed URL, builds the
configured index backend from the pages' visible text, persists it, and
publishes an index-built notification when a topic is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if seed == "" {
				seed = cfg.Crawler.SeedURL
			}
			if seed == "" {
				return fmt.Errorf("a seed URL is required (--seed or crawler.seed_url)")
			}
			if concurrency == 0 {
				concurrency = cfg.Crawler.Concurrency
			}

			res, err := appInstance.Crawl(cmd.Context(), seed, concurrency)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := res.Index.Close(); cerr != nil {
					appInstance.Logger().Warn("close index failed", zap.Error(cerr))
				}
			}()

			stats := res.Index.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d pages indexed, %d skipped, %d failed, %d out-of-scope links in %s\n",
				res.Stats.RunID, res.Stats.Indexed, res.Stats.Skipped, res.Stats.Failed,
				res.Stats.OutOfScope, res.Stats.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "index %q: %d documents, %d terms, saved to %s\n",
				cfg.Index.Name, stats.Documents, stats.Terms, res.Snapshot.URI)
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "seed URL (defaults to crawler.seed_url)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum concurrent fetches (defaults to crawler.concurrency)")
	return cmd
}
