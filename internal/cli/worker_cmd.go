package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexanderramin/treeflow/internal/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newWorkerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Background job processing",
	}
	cmd.AddCommand(newWorkerRunCmd(app))
	return cmd
}

func newWorkerRunCmd(app *App) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drain the cascade queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Worker == nil {
				return fmt.Errorf("no job worker configured")
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = app.MetricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(cmd.OutOrStdout(), "Worker running; press Ctrl+C to stop.")
			return runWorker(ctx, app.Worker, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics on this address (empty disables)")
	return cmd
}

// runWorker runs the worker and, when addr is set, the metrics endpoint.
// Either failing stops both.
func runWorker(ctx context.Context, w WorkerRunner, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if addr != "" {
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
