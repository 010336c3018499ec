// Package fleet implements the orchestrator-side fleet state machine. All
// mutation of the fleet map happens on a single owner goroutine that
// drains a command channel, which serializes mutations coming from the
// ingress listener and the dispatcher without a mutex.
package fleet

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
)

// FleetMap is the mutable map a command closure operates on. Only code
// running on the owner goroutine (i.e. inside a submitted closure) may
// touch it.
type FleetMap map[string]*fleetmodel.VehicleStatusSnapshot

// Store owns the fleet map and exposes it only through serialized
// closures submitted over a channel.
type Store struct {
	commands chan func(FleetMap)
	logger   zerolog.Logger
}

// NewStore constructs a Store. Run must be called on a dedicated goroutine
// before any mutating method is used.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		commands: make(chan func(FleetMap)),
		logger:   logger.With().Str("component", "fleet_store").Logger(),
	}
}

// Run is the owner goroutine: it drains commands until ctx is cancelled.
// Every exit path leaves the fleet map consistent since no other goroutine
// ever reads or writes it directly.
func (s *Store) Run(ctx context.Context) error {
	fleet := make(FleetMap)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.commands:
			cmd(fleet)
		}
	}
}

// submit runs fn on the owner goroutine and blocks until it completes,
// giving the caller serialized, exclusive access to the fleet map for the
// duration of fn. This is how the dispatcher's compound
// filter-sort-reserve sequence stays atomic with respect to ingress
// updates and other dispatch calls.
func (s *Store) submit(ctx context.Context, fn func(FleetMap)) error {
	done := make(chan struct{})
	wrapped := func(fleet FleetMap) {
		defer close(done)
		fn(fleet)
	}
	select {
	case s.commands <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func registerIfUnknown(fleet FleetMap, vehicleID string, logger zerolog.Logger) *fleetmodel.VehicleStatusSnapshot {
	if snap, ok := fleet[vehicleID]; ok {
		return snap
	}
	vt, matched := fleetmodel.InferVehicleType(vehicleID)
	if !matched {
		logger.Warn().Str("vehicle_id", vehicleID).Msg("unknown vehicle_id prefix, defaulting to ambulance")
	}
	snap := &fleetmodel.VehicleStatusSnapshot{
		VehicleID:         vehicleID,
		VehicleType:       vt,
		OperationalStatus: fleetmodel.StatusIdle,
	}
	fleet[vehicleID] = snap
	return snap
}

// IngestTelemetry auto-registers an unknown vehicle_id and updates
// last_seen_at, location, battery_voltage and fuel_level_percent. A
// malformed (out-of-range) location leaves the prior value.
func (s *Store) IngestTelemetry(ctx context.Context, t fleetmodel.VehicleTelemetry) error {
	return s.submit(ctx, func(fleet FleetMap) {
		snap := registerIfUnknown(fleet, t.VehicleID, s.logger)
		snap.LastSeenAt = t.Timestamp
		snap.BatteryVoltage = t.Electrical.BatteryVoltage
		snap.FuelLevelPercent = t.FuelLevelPercent
		if t.Location.Valid() {
			loc := t.Location
			snap.Location = &loc
		} else {
			s.logger.Warn().Str("vehicle_id", t.VehicleID).Msg("dropping malformed location, keeping prior value")
		}
	})
}

// IngestHeartbeat updates last_seen_at for a known vehicle; unknown
// vehicles are silently ignored.
func (s *Store) IngestHeartbeat(ctx context.Context, vehicleID string, at time.Time) error {
	return s.submit(ctx, func(fleet FleetMap) {
		if snap, ok := fleet[vehicleID]; ok {
			snap.LastSeenAt = at
		}
	})
}

// IngestAlert sets has_active_alert sticky-true for a known vehicle;
// unknown vehicles are silently ignored.
func (s *Store) IngestAlert(ctx context.Context, vehicleID string) error {
	return s.submit(ctx, func(fleet FleetMap) {
		if snap, ok := fleet[vehicleID]; ok {
			snap.HasActiveAlert = true
		}
	})
}

// Acknowledge clears has_active_alert. The sticky flag is only cleared by
// an explicit call, never by a subsequent normal-band telemetry record.
func (s *Store) Acknowledge(ctx context.Context, vehicleID string) error {
	return s.submit(ctx, func(fleet FleetMap) {
		if snap, ok := fleet[vehicleID]; ok {
			snap.HasActiveAlert = false
		}
	})
}

// Snapshot returns a deep copy of one vehicle's record, or false if
// unknown.
func (s *Store) Snapshot(ctx context.Context, vehicleID string) (fleetmodel.VehicleStatusSnapshot, bool, error) {
	var out fleetmodel.VehicleStatusSnapshot
	var found bool
	err := s.submit(ctx, func(fleet FleetMap) {
		if snap, ok := fleet[vehicleID]; ok {
			out = snap.Clone()
			found = true
		}
	})
	return out, found, err
}

// ListSnapshots returns a deep copy of every vehicle's record, ordered by
// vehicle_id for deterministic output.
func (s *Store) ListSnapshots(ctx context.Context) ([]fleetmodel.VehicleStatusSnapshot, error) {
	var out []fleetmodel.VehicleStatusSnapshot
	err := s.submit(ctx, func(fleet FleetMap) {
		out = make([]fleetmodel.VehicleStatusSnapshot, 0, len(fleet))
		for _, snap := range fleet {
			out = append(out, snap.Clone())
		}
		sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	})
	return out, err
}

// WithFleet runs fn with exclusive access to the live fleet map on the
// owner goroutine. It is the primitive the dispatcher uses to make its
// multi-step filter/sort/reserve sequence atomic; fn must not retain
// references to the map or its snapshots beyond its own invocation.
func (s *Store) WithFleet(ctx context.Context, fn func(FleetMap)) error {
	return s.submit(ctx, fn)
}

// Logger exposes the store's logger for components that share its
// lifecycle (the ingress listeners).
func (s *Store) Logger() zerolog.Logger { return s.logger }
