// Package fleetmodel defines the shared data model for the AEGIS fleet:
// vehicle identity, telemetry, live status snapshots, predictive alerts,
// emergencies, and dispatches.
package fleetmodel

import "strings"

// VehicleType is the class of emergency vehicle.
type VehicleType string

const (
	VehicleAmbulance VehicleType = "ambulance"
	VehicleFireTruck VehicleType = "fire_truck"
	VehiclePolice    VehicleType = "police"
)

// OperationalStatus is the finite set of states a vehicle cycles through.
type OperationalStatus string

const (
	StatusOffline      OperationalStatus = "offline"
	StatusIdle         OperationalStatus = "idle"
	StatusEnRoute      OperationalStatus = "en_route"
	StatusOnScene      OperationalStatus = "on_scene"
	StatusReturning    OperationalStatus = "returning"
	StatusMaintenance  OperationalStatus = "maintenance"
	StatusOutOfService OperationalStatus = "out_of_service"
)

// AlertSeverity is the severity band of a PredictiveAlert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// FailureCategory groups a PredictiveAlert by the subsystem it concerns.
// Brakes and tires sit alongside engine, electrical and fuel since the
// anomaly detector emits alerts tagged with all five.
type FailureCategory string

const (
	CategoryEngine     FailureCategory = "engine"
	CategoryElectrical FailureCategory = "electrical"
	CategoryFuel       FailureCategory = "fuel"
	CategoryBrakes     FailureCategory = "brakes"
	CategoryTires      FailureCategory = "tires"
	CategoryOther      FailureCategory = "other"
)

// FailureScenario names a deterministic, time-parameterized telemetry
// override used to simulate a degrading vehicle.
type FailureScenario string

const (
	ScenarioEngineOverheat     FailureScenario = "engine_overheat"
	ScenarioAlternatorFailure  FailureScenario = "alternator_failure"
	ScenarioBrakePadWear       FailureScenario = "brake_pad_wear"
	ScenarioTirePressureLow    FailureScenario = "tire_pressure_low"
	ScenarioBatteryDegradation FailureScenario = "battery_degradation"
	ScenarioFuelLeak           FailureScenario = "fuel_leak"
)

// EmergencyType categorizes an incident.
type EmergencyType string

const (
	EmergencyMedical         EmergencyType = "medical"
	EmergencyFire            EmergencyType = "fire"
	EmergencyCrime           EmergencyType = "crime"
	EmergencyAccident        EmergencyType = "accident"
	EmergencyHazmat          EmergencyType = "hazmat"
	EmergencyRescue          EmergencyType = "rescue"
	EmergencyNaturalDisaster EmergencyType = "natural_disaster"
)

// EmergencyStatus is the lifecycle state of an Emergency.
type EmergencyStatus string

const (
	EmergencyPending     EmergencyStatus = "pending"
	EmergencyDispatching EmergencyStatus = "dispatching"
	EmergencyDispatched  EmergencyStatus = "dispatched"
	EmergencyInProgress  EmergencyStatus = "in_progress"
	EmergencyResolved    EmergencyStatus = "resolved"
	EmergencyCancelled   EmergencyStatus = "cancelled"
)

// WheelPosition names one of the four wheel positions carried in
// per-wheel telemetry maps (tire pressure, brake pad thickness).
type WheelPosition string

const (
	WheelFrontLeft  WheelPosition = "front_left"
	WheelFrontRight WheelPosition = "front_right"
	WheelRearLeft   WheelPosition = "rear_left"
	WheelRearRight  WheelPosition = "rear_right"
)

// AllWheels lists the four wheel positions in a stable order, used
// wherever per-wheel telemetry needs deterministic iteration (alert
// generation, test fixtures).
var AllWheels = []WheelPosition{WheelFrontLeft, WheelFrontRight, WheelRearLeft, WheelRearRight}

// InferVehicleType derives a vehicle's type from its ID prefix:
// AMB/FIRE/POL prefixes (case-insensitive) map to their respective types;
// anything else defaults to ambulance. Callers are expected to log a
// warning on the default-fallback path.
func InferVehicleType(vehicleID string) (vt VehicleType, matched bool) {
	upper := strings.ToUpper(vehicleID)
	switch {
	case strings.HasPrefix(upper, "AMB"):
		return VehicleAmbulance, true
	case strings.HasPrefix(upper, "FIRE"):
		return VehicleFireTruck, true
	case strings.HasPrefix(upper, "POL"):
		return VehiclePolice, true
	default:
		return VehicleAmbulance, false
	}
}
