package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/site-search/internal/api"
	"github.com/JakeFAU/site-search/internal/index"
)

const shutdownTimeout = 10 * time.Second

// listen opens the API listener. It's a variable so tests can bind an ephemeral port.
var listen = net.Listen

// newServeCmd creates the 'serve' subcommand, which answers queries over HTTP.
func newServeCmd() *cobra.Command {
	var (
		crawl       bool
		seed        string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API",
		Long: `Serves the JSON search API over the persisted index. With --crawl the
server starts immediately, reports not-ready, and begins answering queries
once a fresh crawl has been built. A failed crawl stops the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.Logger()
			ctx := cmd.Context()

			server := api.NewServer(nil, appInstance.RequestIDs(),
				api.Options{RequestTimeout: cfg.RequestTimeout()}, logger.Named("api"))

			// current is written by the crawl goroutine and read after Wait.
			var (
				mu      sync.Mutex
				current index.Index
			)
			defer func() {
				mu.Lock()
				defer mu.Unlock()
				if current != nil {
					if cerr := current.Close(); cerr != nil {
						logger.Warn("close index failed", zap.Error(cerr))
					}
				}
			}()

			if !crawl {
				idx, err := appInstance.LoadIndex(ctx)
				if err != nil {
					return err
				}
				current = idx
				server.SetSearcher(idx)
			}

			ln, err := listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			srv := &http.Server{
				Handler:           server.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			if crawl {
				if seed == "" {
					seed = cfg.Crawler.SeedURL
				}
				if concurrency == 0 {
					concurrency = cfg.Crawler.Concurrency
				}
				g.Go(func() error {
					res, err := appInstance.Crawl(gctx, seed, concurrency)
					if err != nil {
						return err
					}
					mu.Lock()
					current = res.Index
					mu.Unlock()
					server.SetSearcher(res.Index)
					logger.Info("index ready", zap.Int("documents", res.Index.Stats().Documents))
					return nil
				})
			}
			g.Go(func() error {
				logger.Info("http server started", zap.String("addr", ln.Addr().String()))
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutdown initiated")
				shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
				defer stop()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server shutdown: %w", err)
				}
				return nil
			})

			err = g.Wait()
			// A signal-initiated shutdown is a clean exit even if it interrupted the crawl.
			if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&crawl, "crawl", false, "crawl and build a fresh index instead of loading the persisted one")
	cmd.Flags().StringVar(&seed, "seed", "", "seed URL for --crawl (defaults to crawler.seed_url)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum concurrent fetches for --crawl")
	return cmd
}
