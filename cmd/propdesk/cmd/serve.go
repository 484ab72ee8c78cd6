package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/propdesk/api"
	"github.com/rustyeddy/propdesk/pricing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger over HTTP",
	Long: `Start the HTTP API, the mock quote feed and, when a remote store is
configured, the replication worker.

The API lives under /api/v1, quotes stream on /ws/quotes and prometheus
metrics on /metrics.

Example:
  propdesk serve -c propdesk.yaml --addr :9090`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	interval, err := a.cfg.Pricing.ParseInterval()
	if err != nil {
		return err
	}

	feed := pricing.NewMockFeed(a.cfg.Pricing.Seeds, a.cfg.Pricing.Volatility, a.cfg.Pricing.Seed)
	hub := api.NewHub(a.log)
	quotes := feed.Subscribe(64)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		feed.Run(ctx, interval)
	}()
	go func() {
		defer wg.Done()
		hub.Run(ctx, quotes)
	}()
	if a.outbox != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("replication worker stopped", zap.Error(err))
			}
		}()
	}

	deps := api.Dependencies{
		Ledger: a.ledger,
		Quotes: feed.Store(),
		Hub:    hub,
		Logger: a.log,
	}
	if a.outbox != nil {
		deps.Replication = a.outbox
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Sugar().Infof("propdesk %s listening on %s", buildVersion(), addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()

	// One last push for anything queued after the worker stopped.
	a.flush(context.Background())
	return nil
}
