package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aegis-fleet/orchestrator/internal/fleet"
	"github.com/aegis-fleet/orchestrator/internal/fleeterrors"
	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
	"github.com/aegis-fleet/orchestrator/internal/pubsub"
	"github.com/aegis-fleet/orchestrator/internal/pubsub/membroker"
)

const testFleet = "city1"

func setup(t *testing.T) (*fleet.Store, *Dispatcher, *membroker.Broker, context.Context, func()) {
	t.Helper()
	broker := membroker.New(zerolog.Nop())
	store := fleet.NewStore(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return store.Run(gctx) })
	d := New(store, broker, zerolog.Nop(), nil)
	return store, d, broker, ctx, func() { cancel(); broker.Close() }
}

func seedVehicle(t *testing.T, ctx context.Context, store *fleet.Store, id string, vt fleetmodel.VehicleType, lat, lon float64, status fleetmodel.OperationalStatus, hasAlert bool) {
	t.Helper()
	require.NoError(t, store.IngestTelemetry(ctx, fleetmodel.VehicleTelemetry{
		VehicleID: id,
		Timestamp: time.Now(),
		Location:  fleetmodel.GeoLocation{Latitude: lat, Longitude: lon},
	}))
	require.NoError(t, store.WithFleet(ctx, func(fm fleet.FleetMap) {
		fm[id].VehicleType = vt
		fm[id].OperationalStatus = status
		fm[id].HasActiveAlert = hasAlert
	}))
}

func newEmergency(etype fleetmodel.EmergencyType, lat, lon float64, req fleetmodel.UnitsRequired) fleetmodel.Emergency {
	return fleetmodel.Emergency{
		EmergencyID:   uuid.NewString(),
		EmergencyType: etype,
		Status:        fleetmodel.EmergencyPending,
		Severity:      3,
		Location:      fleetmodel.GeoLocation{Latitude: lat, Longitude: lon},
		UnitsRequired: req,
		CreatedAt:     time.Now(),
	}
}

// S1 — Nearest-ambulance dispatch.
func TestProcessEmergency_NearestAmbulanceDispatch(t *testing.T) {
	store, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	seedVehicle(t, ctx, store, "AMB-001", fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusIdle, false)
	seedVehicle(t, ctx, store, "AMB-002", fleetmodel.VehicleAmbulance, 19.50, -99.20, fleetmodel.StatusIdle, false)

	em := newEmergency(fleetmodel.EmergencyMedical, 19.43, -99.13, fleetmodel.UnitsRequired{Ambulances: 1})
	disp, err := d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)

	require.Len(t, disp.Units, 1)
	assert.Equal(t, "AMB-001", disp.Units[0].VehicleID)

	snap1, _, err := store.Snapshot(ctx, "AMB-001")
	require.NoError(t, err)
	assert.Equal(t, fleetmodel.StatusEnRoute, snap1.OperationalStatus)

	snap2, _, err := store.Snapshot(ctx, "AMB-002")
	require.NoError(t, err)
	assert.Equal(t, fleetmodel.StatusIdle, snap2.OperationalStatus)

	stored, err := d.Emergency(em.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, fleetmodel.EmergencyDispatched, stored.Status)
}

// S2 — Partial dispatch.
func TestProcessEmergency_PartialDispatchWithInsufficientUnits(t *testing.T) {
	store, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	seedVehicle(t, ctx, store, "AMB-001", fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusIdle, false)

	em := newEmergency(fleetmodel.EmergencyAccident, 19.43, -99.13, fleetmodel.UnitsRequired{Ambulances: 2})
	disp, err := d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)

	require.Len(t, disp.Units, 1)
	stored, err := d.Emergency(em.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, fleetmodel.EmergencyDispatched, stored.Status)
}

// S3 — Unavailable vehicles.
func TestProcessEmergency_NoAvailableUnitsStaysDispatching(t *testing.T) {
	store, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	seedVehicle(t, ctx, store, "AMB-001", fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusEnRoute, false)
	seedVehicle(t, ctx, store, "AMB-002", fleetmodel.VehicleAmbulance, 19.50, -99.20, fleetmodel.StatusEnRoute, false)

	em := newEmergency(fleetmodel.EmergencyMedical, 19.43, -99.13, fleetmodel.UnitsRequired{Ambulances: 1})
	disp, err := d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)

	assert.Empty(t, disp.Units)
	stored, err := d.Emergency(em.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, fleetmodel.EmergencyDispatching, stored.Status)
}

// S4 — Resolution round trip.
func TestResolveEmergency_RoundTrip(t *testing.T) {
	store, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	seedVehicle(t, ctx, store, "AMB-001", fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusIdle, false)

	em := newEmergency(fleetmodel.EmergencyMedical, 19.43, -99.13, fleetmodel.UnitsRequired{Ambulances: 1})
	_, err := d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)

	released, err := d.ResolveEmergency(ctx, em.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, []string{"AMB-001"}, released)

	snap, _, err := store.Snapshot(ctx, "AMB-001")
	require.NoError(t, err)
	assert.Equal(t, fleetmodel.StatusIdle, snap.OperationalStatus)
	assert.Equal(t, "", snap.CurrentEmergencyID)

	stored, err := d.Emergency(em.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, fleetmodel.EmergencyResolved, stored.Status)
	require.NotNil(t, stored.ResolvedAt)
}

func TestResolveEmergency_UnknownIsNotFound(t *testing.T) {
	_, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	_, err := d.ResolveEmergency(ctx, "missing")
	assert.ErrorIs(t, err, fleeterrors.ErrNotFound)
}

func TestResolveEmergency_AlreadyResolvedIsConflict(t *testing.T) {
	store, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	seedVehicle(t, ctx, store, "AMB-001", fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusIdle, false)
	em := newEmergency(fleetmodel.EmergencyMedical, 19.43, -99.13, fleetmodel.UnitsRequired{Ambulances: 1})
	_, err := d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)

	_, err = d.ResolveEmergency(ctx, em.EmergencyID)
	require.NoError(t, err)

	_, err = d.ResolveEmergency(ctx, em.EmergencyID)
	assert.ErrorIs(t, err, fleeterrors.ErrConflict)
}

func TestResolveEmergency_ZeroUnitsYieldsEmptySlice(t *testing.T) {
	_, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	em := newEmergency(fleetmodel.EmergencyMedical, 19.43, -99.13, fleetmodel.UnitsRequired{})
	_, err := d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)

	released, err := d.ResolveEmergency(ctx, em.EmergencyID)
	require.NoError(t, err)
	assert.Equal(t, []string{}, released)
}

func TestProcessEmergency_ExcludesVehiclesWithActiveAlert(t *testing.T) {
	store, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	seedVehicle(t, ctx, store, "AMB-001", fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusIdle, true)
	seedVehicle(t, ctx, store, "AMB-002", fleetmodel.VehicleAmbulance, 19.60, -99.30, fleetmodel.StatusIdle, false)

	em := newEmergency(fleetmodel.EmergencyMedical, 19.43, -99.13, fleetmodel.UnitsRequired{Ambulances: 1})
	disp, err := d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)
	require.Len(t, disp.Units, 1)
	assert.Equal(t, "AMB-002", disp.Units[0].VehicleID)
}

func TestProcessEmergency_TieBreaksByVehicleIDLexicographically(t *testing.T) {
	store, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	seedVehicle(t, ctx, store, "AMB-002", fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusIdle, false)
	seedVehicle(t, ctx, store, "AMB-001", fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusIdle, false)

	em := newEmergency(fleetmodel.EmergencyMedical, 19.44, -99.14, fleetmodel.UnitsRequired{Ambulances: 1})
	disp, err := d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)
	require.Len(t, disp.Units, 1)
	assert.Equal(t, "AMB-001", disp.Units[0].VehicleID)
}

func TestProcessEmergency_ZeroRequiredTypeSkipsEntirely(t *testing.T) {
	_, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	em := newEmergency(fleetmodel.EmergencyMedical, 19.44, -99.14, fleetmodel.UnitsRequired{Ambulances: 0, Police: 0})
	disp, err := d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)
	assert.Empty(t, disp.Units)
}

func TestProcessEmergency_PublishesCommandAndBroadcast(t *testing.T) {
	store, d, broker, ctx, cleanup := setup(t)
	defer cleanup()

	cmdSub, err := broker.Subscribe(ctx, pubsub.CommandTopic(testFleet, "AMB-001"))
	require.NoError(t, err)
	defer cmdSub.Unsubscribe()

	seedVehicle(t, ctx, store, "AMB-001", fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusIdle, false)
	em := newEmergency(fleetmodel.EmergencyMedical, 19.43, -99.13, fleetmodel.UnitsRequired{Ambulances: 1})

	_, err = d.ProcessEmergency(ctx, testFleet, em)
	require.NoError(t, err)

	select {
	case msg := <-cmdSub.C():
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, "dispatch", payload["command"])
	case <-time.After(time.Second):
		t.Fatal("expected dispatch command publish")
	}
}

// Testable property 6: two concurrent process_emergency calls never select
// the same vehicle_id for both.
func TestProcessEmergency_ConcurrentCallsNeverDoubleAssign(t *testing.T) {
	store, d, _, ctx, cleanup := setup(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		seedVehicle(t, ctx, store, fmtVehicleID(i), fleetmodel.VehicleAmbulance, 19.44, -99.14, fleetmodel.StatusIdle, false)
	}

	var wg sync.WaitGroup
	results := make([]fleetmodel.Dispatch, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			em := newEmergency(fleetmodel.EmergencyMedical, 19.44, -99.14, fleetmodel.UnitsRequired{Ambulances: 1})
			disp, err := d.ProcessEmergency(ctx, testFleet, em)
			require.NoError(t, err)
			results[i] = disp
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, disp := range results {
		require.Len(t, disp.Units, 1)
		id := disp.Units[0].VehicleID
		assert.False(t, seen[id], "vehicle %s double-assigned", id)
		seen[id] = true
	}
}

func fmtVehicleID(i int) string {
	return "AMB-" + string(rune('A'+i))
}
