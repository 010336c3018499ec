// Command aegis-orchestrator runs the fleet backbone: ingress from the
// telemetry/alert/heartbeat topics, the fleet state machine, the staleness
// reaper, the dispatcher, a Prometheus metrics endpoint, and the REST/WS
// façade.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aegis-fleet/orchestrator/internal/config"
	"github.com/aegis-fleet/orchestrator/internal/dispatch"
	"github.com/aegis-fleet/orchestrator/internal/fleet"
	"github.com/aegis-fleet/orchestrator/internal/metrics"
	"github.com/aegis-fleet/orchestrator/internal/pubsub/membroker"
	"github.com/aegis-fleet/orchestrator/internal/restapi"
)

var (
	Version = "dev"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:     "aegis-orchestrator",
	Short:   "AEGIS fleet coordination backbone",
	Long:    "Orchestrates emergency dispatch across a fleet of vehicles: ingests telemetry and alerts, tracks fleet state, and dispatches the nearest available units.",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to orchestrator config YAML")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadOrchestratorConfig(configPath, os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "aegis-orchestrator").Logger()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(reg)

	broker := membroker.New(logger)
	defer broker.Close()

	store := fleet.NewStore(logger)
	dispatcher := dispatch.New(store, broker, logger, metricsReg)
	reaper := fleet.NewStalenessReaper(store, cfg.StalenessBound, cfg.StalenessSweepPeriod)
	api := restapi.New(store, dispatcher, broker, logger, []string{"*"})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return store.Run(ctx) })
	g.Go(func() error { return fleet.Listen(ctx, broker, store) })
	g.Go(func() error { return reaper.Run(ctx) })
	g.Go(func() error { return api.RunWebSocketBridge(ctx) })

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: api}
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("starting REST/WS listener")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics listener")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = metricsServer.Shutdown(shutdownCtx)
		return nil
	})

	logger.Info().Str("fleet", cfg.Fleet).Str("version", Version).Msg("aegis-orchestrator started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
