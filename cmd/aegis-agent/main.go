// Command aegis-agent simulates one vehicle's telemetry tick loop and
// command handler. The shipped transport (internal/pubsub/membroker) is an
// in-process reference implementation, so this binary is a self-contained
// single-vehicle harness: it runs its own in-process broker and the agent's
// tick loop and command listener against it (no fleet store or dispatcher),
// useful for exercising the telemetry pipeline in isolation. Only publish
// and decode failures are logged, not each tick or alert.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aegis-fleet/orchestrator/internal/config"
	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
	"github.com/aegis-fleet/orchestrator/internal/pubsub/membroker"
	"github.com/aegis-fleet/orchestrator/internal/telemetry"
)

var (
	Version = "dev"

	configPath string
	vehicleID  string
	fleetName  string
	frequency  float64
	originLat  float64
	originLon  float64
)

var rootCmd = &cobra.Command{
	Use:     "aegis-agent",
	Short:   "Simulates one vehicle's telemetry tick loop and command handler",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to agent config YAML")
	rootCmd.Flags().StringVar(&vehicleID, "vehicle-id", "", "vehicle identifier, e.g. AMB-001")
	rootCmd.Flags().StringVar(&fleetName, "fleet", "", "fleet name the vehicle belongs to")
	rootCmd.Flags().Float64Var(&frequency, "frequency-hz", 0, "telemetry tick frequency in Hz")
	rootCmd.Flags().Float64Var(&originLat, "origin-lat", 0, "starting latitude")
	rootCmd.Flags().Float64Var(&originLon, "origin-lon", 0, "starting longitude")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadAgentConfig(configPath, os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if vehicleID != "" {
		cfg.VehicleID = vehicleID
	}
	if fleetName != "" {
		cfg.Fleet = fleetName
	}
	if frequency != 0 {
		cfg.FrequencyHz = frequency
	}
	if cfg.VehicleID == "" {
		return fmt.Errorf("vehicle-id is required")
	}
	if cfg.FrequencyHz < 0.1 || cfg.FrequencyHz > 10.0 {
		return fmt.Errorf("frequency-hz %.3f out of declared range [0.1, 10.0]", cfg.FrequencyHz)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "aegis-agent").Logger()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	broker := membroker.New(logger)
	defer broker.Close()

	origin := fleetmodel.GeoLocation{Latitude: cfg.OriginLat, Longitude: cfg.OriginLon}
	if originLat != 0 || originLon != 0 {
		origin = fleetmodel.GeoLocation{Latitude: originLat, Longitude: originLon}
	}

	agent := telemetry.NewAgent(telemetry.AgentConfig{
		VehicleID:   cfg.VehicleID,
		Fleet:       cfg.Fleet,
		FrequencyHz: cfg.FrequencyHz,
		Transport:   broker,
		Logger:      logger,
		Origin:      origin,
		Rng:         rand.New(rand.NewSource(1)),
	})

	logger.Info().
		Str("vehicle_id", cfg.VehicleID).
		Str("fleet", cfg.Fleet).
		Float64("frequency_hz", cfg.FrequencyHz).
		Msg("aegis-agent started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return agent.Run(ctx) })
	g.Go(func() error { return agent.ListenCommands(ctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
