package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/lockerindex/internal/config"
	"github.com/Aman-CERP/lockerindex/internal/coordinator"
	"github.com/Aman-CERP/lockerindex/internal/logging"
	"github.com/Aman-CERP/lockerindex/internal/mcp"
)

const metricsShutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over MCP",
		Long: `Start an MCP server on stdio exposing the search, index_status and
get_record tools. stdout carries the JSON-RPC stream, so logs go to the
log file only.

With --metrics-addr (or server.metrics_addr) Prometheus metrics are served
at /metrics on that address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Server.MetricsAddr = metricsAddr
			}
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if !debugMode {
		cleanup, err := logging.SetupDefault(logging.ServeConfig(cfg.Server.LogLevel))
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
	}

	metrics := coordinator.NewMetrics(prometheus.DefaultRegisterer)
	coord, err := openCoordinator(cfg, coordinator.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer func() { _ = coord.Close() }()

	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	var records mcp.RecordStore
	if journal != nil {
		defer func() { _ = journal.Close() }()
		records = journal
	}

	server, err := mcp.NewServer(coord, records)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The MCP session ends when the client closes stdin.
		defer cancel()
		return server.Serve(gctx, cfg.Server.Transport)
	})

	if cfg.Server.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			slog.Info("metrics_server_starting", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", coordinator.Handler())
	return mux
}
