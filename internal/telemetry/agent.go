package telemetry

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
	"github.com/aegis-fleet/orchestrator/internal/metrics"
	"github.com/aegis-fleet/orchestrator/internal/pubsub"
)

// heartbeatInterval is the tick count between heartbeat publishes.
const heartbeatInterval = 10

// AgentConfig bundles what one vehicle's tick loop needs.
type AgentConfig struct {
	VehicleID   string
	Fleet       string
	FrequencyHz float64
	Transport   pubsub.Transport
	Logger      zerolog.Logger
	Origin      fleetmodel.GeoLocation
	Rng         *rand.Rand
	// Metrics is optional; when nil, tick/alert counters are skipped.
	Metrics *metrics.Registry
}

// Agent runs one vehicle's telemetry tick loop and command handler.
type Agent struct {
	vehicleID string
	fleet     string
	freqHz    float64
	transport pubsub.Transport
	logger    zerolog.Logger
	generator *Generator
	injector  *FailureInjector
	location  fleetmodel.GeoLocation
	rng       *rand.Rand
	tickCount uint64
	metrics   *metrics.Registry

	operationalStatus  fleetmodel.OperationalStatus
	currentEmergencyID string
}

// NewAgent constructs an Agent idle at cfg.Origin. FrequencyHz is clamped
// to [0.1, 10.0] so a caller that skips config validation can't produce a
// degenerate tick interval.
func NewAgent(cfg AgentConfig) *Agent {
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	freqHz := cfg.FrequencyHz
	switch {
	case freqHz < 0.1:
		freqHz = 0.1
	case freqHz > 10.0:
		freqHz = 10.0
	}
	return &Agent{
		vehicleID:         cfg.VehicleID,
		fleet:             cfg.Fleet,
		freqHz:            freqHz,
		transport:         cfg.Transport,
		logger:            cfg.Logger.With().Str("vehicle_id", cfg.VehicleID).Logger(),
		generator:         NewGenerator(cfg.VehicleID, DefaultBaselines(), rng),
		injector:          NewFailureInjector(),
		location:          cfg.Origin,
		rng:               rng,
		operationalStatus: fleetmodel.StatusIdle,
		metrics:           cfg.Metrics,
	}
}

// Injector exposes the failure injector so scenario activation/deactivation
// can be driven externally (operator tooling, tests).
func (a *Agent) Injector() *FailureInjector { return a.injector }

// Tick generates one telemetry record, applies active failure scenarios,
// runs anomaly detection, and publishes the results. A publish failure is
// logged and does not abort the tick.
func (a *Agent) Tick(ctx context.Context) error {
	a.tickCount++
	a.location.Timestamp = time.Now().UTC()

	reading := a.generator.Next(a.location)
	reading = a.injector.Apply(reading.Timestamp, reading)

	if a.metrics != nil {
		a.metrics.TelemetryTicksTotal.WithLabelValues(a.vehicleID).Inc()
	}

	payload, err := json.Marshal(reading)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to marshal telemetry record")
	} else if err := a.transport.Publish(ctx, pubsub.TelemetryTopic(a.fleet, a.vehicleID), payload); err != nil {
		a.logger.Warn().Err(err).Msg("telemetry publish failed")
	}

	for _, alert := range DetectAnomalies(reading) {
		if a.metrics != nil {
			a.metrics.AlertsTotal.WithLabelValues(string(alert.Severity), string(alert.Category)).Inc()
		}
		ap, err := json.Marshal(alert)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to marshal alert")
			continue
		}
		if err := a.transport.Publish(ctx, pubsub.AlertsTopic(a.fleet, a.vehicleID), ap); err != nil {
			a.logger.Warn().Err(err).Str("alert_id", alert.AlertID).Msg("alert publish failed")
		}
	}

	if a.tickCount%heartbeatInterval == 0 {
		hb, _ := json.Marshal(map[string]interface{}{
			"vehicle_id": a.vehicleID,
			"timestamp":  reading.Timestamp,
		})
		if err := a.transport.Publish(ctx, pubsub.HeartbeatTopic(a.fleet, a.vehicleID), hb); err != nil {
			a.logger.Warn().Err(err).Msg("heartbeat publish failed")
		}
	}

	return nil
}

// Run invokes Tick at the configured frequency with a drift-compensating
// sleep, exiting when ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / a.freqHz)
	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := a.Tick(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("tick error")
		}

		next = next.Add(interval)
		sleep := time.Until(next)
		if sleep < 0 {
			next = time.Now()
			continue
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// dispatchCommand mirrors the orchestrator's command-topic payload shape.
type dispatchCommand struct {
	Command       string                   `json:"command"`
	EmergencyID   string                   `json:"emergency_id"`
	EmergencyType fleetmodel.EmergencyType `json:"emergency_type"`
	DispatchID    string                   `json:"dispatch_id"`
}

type resolutionBroadcast struct {
	EmergencyID      string   `json:"emergency_id"`
	ReleasedVehicles []string `json:"released_vehicles"`
}

// HandleCommand applies one command-topic payload to local state. Unknown
// command keys are ignored; malformed JSON is logged and dropped.
func (a *Agent) HandleCommand(payload []byte) {
	var cmd dispatchCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		a.logger.Warn().Err(err).Msg("malformed command payload")
		return
	}
	switch cmd.Command {
	case "dispatch":
		a.operationalStatus = fleetmodel.StatusEnRoute
		a.currentEmergencyID = cmd.EmergencyID
	default:
		a.logger.Debug().Str("command", cmd.Command).Msg("ignoring unknown command")
	}
}

// HandleResolution applies a resolution broadcast, returning this vehicle
// to idle if it is among the released vehicles.
func (a *Agent) HandleResolution(payload []byte) {
	var res resolutionBroadcast
	if err := json.Unmarshal(payload, &res); err != nil {
		a.logger.Warn().Err(err).Msg("malformed resolution payload")
		return
	}
	for _, id := range res.ReleasedVehicles {
		if id == a.vehicleID {
			a.operationalStatus = fleetmodel.StatusIdle
			a.currentEmergencyID = ""
			return
		}
	}
}

// ListenCommands subscribes to this vehicle's command topic and every
// dispatch-resolution broadcast, applying each message until ctx is
// cancelled. Subscriptions are released on every exit path.
func (a *Agent) ListenCommands(ctx context.Context) error {
	cmdSub, err := a.transport.Subscribe(ctx, pubsub.CommandTopic(a.fleet, a.vehicleID))
	if err != nil {
		return err
	}
	defer cmdSub.Unsubscribe()

	resolvedSub, err := a.transport.PSubscribe(ctx, pubsub.PatternDispatchResolved)
	if err != nil {
		return err
	}
	defer resolvedSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-cmdSub.C():
			if !ok {
				return nil
			}
			a.HandleCommand(msg.Payload)
		case msg, ok := <-resolvedSub.C():
			if !ok {
				return nil
			}
			a.HandleResolution(msg.Payload)
		}
	}
}

// OperationalStatus returns the agent's locally tracked status, for tests
// and diagnostics.
func (a *Agent) OperationalStatus() fleetmodel.OperationalStatus { return a.operationalStatus }

// CurrentEmergencyID returns the agent's locally tracked emergency
// assignment, empty when none.
func (a *Agent) CurrentEmergencyID() string { return a.currentEmergencyID }
