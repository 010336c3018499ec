// Package dispatch implements the orchestrator's emergency-to-unit
// routing: selecting the nearest available units for an emergency and
// releasing them back to the fleet on resolution. Selection and
// reservation run as one atomic closure on the fleet store's owner
// goroutine so two concurrent dispatches can never double-assign a
// vehicle.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aegis-fleet/orchestrator/internal/fleet"
	"github.com/aegis-fleet/orchestrator/internal/fleeterrors"
	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
	"github.com/aegis-fleet/orchestrator/internal/geo"
	"github.com/aegis-fleet/orchestrator/internal/metrics"
	"github.com/aegis-fleet/orchestrator/internal/pubsub"
)

// candidate pairs a snapshot with its distance from the emergency for
// sorting.
type candidate struct {
	snapshot   *fleetmodel.VehicleStatusSnapshot
	distanceKm float64
}

// typeQuota is one (vehicle type, required count) pair, iterated in a
// fixed order so selection is deterministic across runs.
type typeQuota struct {
	vehicleType VehicleTypeKey
	count       int
}

// VehicleTypeKey aliases fleetmodel.VehicleType for readability at call
// sites that build a typeQuota list.
type VehicleTypeKey = fleetmodel.VehicleType

// Dispatcher routes emergencies to the nearest available units and tracks
// them to resolution. It owns the emergencies and dispatches maps
// exclusively; all fleet snapshot mutation runs inside fleet.Store.WithFleet
// so it is serialized with ingress.
type Dispatcher struct {
	store     *fleet.Store
	transport pubsub.Transport
	logger    zerolog.Logger
	metrics   *metrics.Registry

	mu          sync.Mutex
	emergencies map[string]*fleetmodel.Emergency
	dispatches  map[string]*fleetmodel.Dispatch
}

// New constructs a Dispatcher bound to store and transport. metricsReg may
// be nil to skip metrics recording.
func New(store *fleet.Store, transport pubsub.Transport, logger zerolog.Logger, metricsReg *metrics.Registry) *Dispatcher {
	return &Dispatcher{
		store:       store,
		transport:   transport,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
		metrics:     metricsReg,
		emergencies: make(map[string]*fleetmodel.Emergency),
		dispatches:  make(map[string]*fleetmodel.Dispatch),
	}
}

func quotas(req fleetmodel.UnitsRequired) []typeQuota {
	return []typeQuota{
		{fleetmodel.VehicleAmbulance, req.Ambulances},
		{fleetmodel.VehicleFireTruck, req.FireTrucks},
		{fleetmodel.VehiclePolice, req.Police},
	}
}

// ProcessEmergency stores the emergency, selects nearest-available units
// per required vehicle type, atomically reserves them, and publishes the
// resulting commands and broadcast.
func (d *Dispatcher) ProcessEmergency(ctx context.Context, fleetName string, emergency fleetmodel.Emergency) (fleetmodel.Dispatch, error) {
	d.mu.Lock()
	d.emergencies[emergency.EmergencyID] = &emergency
	d.mu.Unlock()

	var units []fleetmodel.DispatchedUnit
	now := time.Now().UTC()

	err := d.store.WithFleet(ctx, func(fm fleet.FleetMap) {
		for _, q := range quotas(emergency.UnitsRequired) {
			if q.count == 0 {
				continue
			}
			candidates := candidatesOfType(fm, q.vehicleType, emergency.Location)
			if len(candidates) < q.count {
				d.logger.Warn().
					Str("emergency_id", emergency.EmergencyID).
					Str("vehicle_type", string(q.vehicleType)).
					Int("required", q.count).
					Int("available", len(candidates)).
					Msg("insufficient_units")
				if d.metrics != nil {
					d.metrics.InsufficientUnitsTotal.WithLabelValues(string(q.vehicleType)).Inc()
				}
			}
			take := q.count
			if take > len(candidates) {
				take = len(candidates)
			}
			for i := 0; i < take; i++ {
				snap := candidates[i].snapshot
				snap.OperationalStatus = fleetmodel.StatusEnRoute
				snap.CurrentEmergencyID = emergency.EmergencyID
				units = append(units, fleetmodel.DispatchedUnit{
					VehicleID:   snap.VehicleID,
					VehicleType: snap.VehicleType,
					AssignedAt:  now,
				})
			}
		}
	})
	if err != nil {
		return fleetmodel.Dispatch{}, err
	}

	disp := fleetmodel.Dispatch{
		DispatchID:        uuid.NewString(),
		EmergencyID:       emergency.EmergencyID,
		Units:             units,
		DispatchedAt:      now,
		SelectionCriteria: "nearest_available",
	}

	d.mu.Lock()
	stored := d.emergencies[emergency.EmergencyID]
	if len(units) > 0 {
		stored.Status = fleetmodel.EmergencyDispatched
		stored.DispatchedAt = &now
	} else {
		stored.Status = fleetmodel.EmergencyDispatching
	}
	d.dispatches[disp.DispatchID] = &disp
	d.mu.Unlock()

	if d.metrics != nil && len(units) > 0 {
		d.metrics.ActiveDispatches.Inc()
		d.metrics.DispatchLatencySeconds.Observe(now.Sub(emergency.CreatedAt).Seconds())
	}

	d.publishDispatch(ctx, fleetName, emergency, disp)

	return disp, nil
}

// candidatesOfType filters snapshots of vehicleType that are available and
// have a known location, then sorts them ascending by Haversine distance
// from origin, breaking ties by vehicle_id lexicographic order.
func candidatesOfType(fm fleet.FleetMap, vehicleType fleetmodel.VehicleType, origin fleetmodel.GeoLocation) []candidate {
	var out []candidate
	for _, snap := range fm {
		if snap.VehicleType != vehicleType {
			continue
		}
		if !snap.IsAvailable() {
			continue
		}
		d := geo.HaversineKm(
			geo.Point{Latitude: origin.Latitude, Longitude: origin.Longitude},
			geo.Point{Latitude: snap.Location.Latitude, Longitude: snap.Location.Longitude},
		)
		out = append(out, candidate{snapshot: snap, distanceKm: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].distanceKm != out[j].distanceKm {
			return out[i].distanceKm < out[j].distanceKm
		}
		return out[i].snapshot.VehicleID < out[j].snapshot.VehicleID
	})
	return out
}

type dispatchCommandPayload struct {
	Command       string                   `json:"command"`
	EmergencyID   string                   `json:"emergency_id"`
	EmergencyType fleetmodel.EmergencyType `json:"emergency_type"`
	Location      fleetmodel.GeoLocation   `json:"location"`
	DispatchID    string                   `json:"dispatch_id"`
}

type assignedBroadcast struct {
	EmergencyID      string   `json:"emergency_id"`
	DispatchID       string   `json:"dispatch_id"`
	AssignedVehicles []string `json:"assigned_vehicles"`
}

func (d *Dispatcher) publishDispatch(ctx context.Context, fleetName string, emergency fleetmodel.Emergency, disp fleetmodel.Dispatch) {
	for _, u := range disp.Units {
		payload := dispatchCommandPayload{
			Command:       "dispatch",
			EmergencyID:   emergency.EmergencyID,
			EmergencyType: emergency.EmergencyType,
			Location:      emergency.Location,
			DispatchID:    disp.DispatchID,
		}
		if err := publishJSON(ctx, d.transport, pubsub.CommandTopic(fleetName, u.VehicleID), payload); err != nil {
			d.logger.Warn().Err(err).Str("vehicle_id", u.VehicleID).Msg("dispatch command publish failed")
		}
	}

	broadcast := assignedBroadcast{
		EmergencyID:      emergency.EmergencyID,
		DispatchID:       disp.DispatchID,
		AssignedVehicles: disp.VehicleIDs(),
	}
	if err := publishJSON(ctx, d.transport, pubsub.DispatchAssignedTopic(emergency.EmergencyID), broadcast); err != nil {
		d.logger.Warn().Err(err).Str("emergency_id", emergency.EmergencyID).Msg("assigned broadcast publish failed")
	}
}

type resolvedBroadcast struct {
	EmergencyID      string   `json:"emergency_id"`
	ReleasedVehicles []string `json:"released_vehicles"`
}

// ResolveEmergency releases every vehicle reserved for emergencyID back to
// idle, marks the emergency resolved, and publishes a best-effort
// resolution broadcast.
func (d *Dispatcher) ResolveEmergency(ctx context.Context, emergencyID string) ([]string, error) {
	d.mu.Lock()
	emergency, ok := d.emergencies[emergencyID]
	if !ok {
		d.mu.Unlock()
		return nil, fleeterrors.NotFound("resolve_emergency", errEmergencyUnknown(emergencyID))
	}
	if emergency.Status == fleetmodel.EmergencyResolved {
		d.mu.Unlock()
		return nil, fleeterrors.Conflict("resolve_emergency", errAlreadyResolved(emergencyID))
	}
	d.mu.Unlock()

	var released []string
	err := d.store.WithFleet(ctx, func(fm fleet.FleetMap) {
		ids := make([]string, 0, len(fm))
		for id := range fm {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			snap := fm[id]
			if snap.CurrentEmergencyID != emergencyID {
				continue
			}
			snap.OperationalStatus = fleetmodel.StatusIdle
			snap.CurrentEmergencyID = ""
			released = append(released, snap.VehicleID)
		}
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d.mu.Lock()
	wasDispatched := emergency.Status == fleetmodel.EmergencyDispatched
	emergency.Status = fleetmodel.EmergencyResolved
	emergency.ResolvedAt = &now
	d.mu.Unlock()

	if d.metrics != nil && wasDispatched {
		d.metrics.ActiveDispatches.Dec()
	}

	broadcast := resolvedBroadcast{EmergencyID: emergencyID, ReleasedVehicles: released}
	if err := publishJSON(ctx, d.transport, pubsub.DispatchResolvedTopic(emergencyID), broadcast); err != nil {
		d.logger.Warn().Err(err).Str("emergency_id", emergencyID).Msg("resolved broadcast publish failed")
	}

	if released == nil {
		released = []string{}
	}
	return released, nil
}

// Emergency returns a copy of the stored emergency, or NotFound.
func (d *Dispatcher) Emergency(emergencyID string) (fleetmodel.Emergency, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.emergencies[emergencyID]
	if !ok {
		return fleetmodel.Emergency{}, fleeterrors.NotFound("get_emergency", errEmergencyUnknown(emergencyID))
	}
	return *e, nil
}

// ListEmergencies returns a copy of every stored emergency, optionally
// filtered by status ("" means no filter).
func (d *Dispatcher) ListEmergencies(status fleetmodel.EmergencyStatus) []fleetmodel.Emergency {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]fleetmodel.Emergency, 0, len(d.emergencies))
	for _, e := range d.emergencies {
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
