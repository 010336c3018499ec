package fleetmodel

import "time"

// GeoLocation is a GPS fix with heading and speed.
type GeoLocation struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Heading   float64   `json:"heading"`
	SpeedKmh  float64   `json:"speed_kmh"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the location's numeric fields fall inside their
// declared physical ranges.
func (g GeoLocation) Valid() bool {
	return g.Latitude >= -90 && g.Latitude <= 90 &&
		g.Longitude >= -180 && g.Longitude <= 180 &&
		g.Heading >= 0 && g.Heading <= 360 &&
		g.SpeedKmh >= 0
}

// ElectricalReadings groups the alternator/battery subsystem metrics that
// make up the rich telemetry variant.
type ElectricalReadings struct {
	AlternatorVoltage float64 `json:"alternator_voltage"`
	BatteryVoltage    float64 `json:"battery_voltage"`
	BatterySOCPercent float64 `json:"battery_soc_percent"`
}

// VehicleTelemetry is one immutable per-tick snapshot published by an
// agent. sequence_number is monotonically increasing per agent.
type VehicleTelemetry struct {
	VehicleID          string                     `json:"vehicle_id"`
	SequenceNumber     uint64                     `json:"sequence_number"`
	Timestamp          time.Time                  `json:"timestamp"`
	Location           GeoLocation                `json:"location"`
	EngineTempCelsius  float64                    `json:"engine_temp_celsius"`
	CoolantTempCelsius float64                    `json:"coolant_temp_celsius"`
	EngineRPM          float64                    `json:"engine_rpm"`
	FuelLevelPercent   float64                    `json:"fuel_level_percent"`
	Electrical         ElectricalReadings         `json:"electrical"`
	TirePressurePSI    map[WheelPosition]float64  `json:"tire_pressure_psi"`
	BrakePadMM         map[WheelPosition]float64  `json:"brake_pad_thickness_mm"`
	BrakeTempCelsius   float64                    `json:"brake_temp_celsius"`
	VibrationZ         float64                    `json:"vibration_z"`
	OdometerKm         float64                    `json:"odometer_km"`
}

// InRange reports whether every numeric field falls inside its declared
// physical range.
func (t VehicleTelemetry) InRange() bool {
	if !t.Location.Valid() {
		return false
	}
	if t.EngineTempCelsius < -40 || t.EngineTempCelsius > 150 {
		return false
	}
	if t.FuelLevelPercent < 0 || t.FuelLevelPercent > 100 {
		return false
	}
	if t.Electrical.BatteryVoltage < 0 || t.Electrical.BatteryVoltage > 30 {
		return false
	}
	if t.Electrical.BatterySOCPercent < 0 || t.Electrical.BatterySOCPercent > 100 {
		return false
	}
	if t.OdometerKm < 0 {
		return false
	}
	for _, v := range t.TirePressurePSI {
		if v < 0 {
			return false
		}
	}
	for _, v := range t.BrakePadMM {
		if v < 0 {
			return false
		}
	}
	return true
}

// VehicleStatusSnapshot is the orchestrator's live, mutable per-vehicle
// record. Created lazily on first telemetry from an unknown vehicle_id and
// never destroyed.
type VehicleStatusSnapshot struct {
	VehicleID          string            `json:"vehicle_id"`
	VehicleType        VehicleType       `json:"vehicle_type"`
	OperationalStatus  OperationalStatus `json:"operational_status"`
	Location           *GeoLocation      `json:"location,omitempty"`
	LastSeenAt         time.Time         `json:"last_seen_at"`
	BatteryVoltage     float64           `json:"battery_voltage"`
	FuelLevelPercent   float64           `json:"fuel_level_percent"`
	HasActiveAlert     bool              `json:"has_active_alert"`
	CurrentEmergencyID string            `json:"current_emergency_id,omitempty"`
}

// IsAvailable reports the derived availability predicate:
// idle, no active alert, and a known location.
func (s VehicleStatusSnapshot) IsAvailable() bool {
	return s.OperationalStatus == StatusIdle && !s.HasActiveAlert && s.Location != nil
}

// Clone returns a deep copy so a snapshot handed to a reader (e.g. the
// dispatcher's candidate list) can't be mutated by a later ingress event.
func (s VehicleStatusSnapshot) Clone() VehicleStatusSnapshot {
	out := s
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	return out
}

// PredictiveAlert is an immutable alert record emitted by anomaly
// detection.
type PredictiveAlert struct {
	AlertID                     string             `json:"alert_id"`
	VehicleID                   string             `json:"vehicle_id"`
	Timestamp                   time.Time          `json:"timestamp"`
	Severity                    AlertSeverity      `json:"severity"`
	Category                    FailureCategory    `json:"category"`
	Component                   string             `json:"component"`
	FailureProbability          float64            `json:"failure_probability"`
	Confidence                  float64            `json:"confidence"`
	PredictedFailureMinHours    float64            `json:"predicted_failure_min_hours"`
	PredictedFailureLikelyHours float64            `json:"predicted_failure_likely_hours"`
	PredictedFailureMaxHours    float64            `json:"predicted_failure_max_hours"`
	CanCompleteCurrentMission   bool               `json:"can_complete_current_mission"`
	SafeToOperate               bool               `json:"safe_to_operate"`
	RecommendedAction           string             `json:"recommended_action"`
	ContributingFactors         []string           `json:"contributing_factors,omitempty"`
	RelatedTelemetry            map[string]float64 `json:"related_telemetry,omitempty"`
}

// UnitsRequired is the per-vehicle-type unit count an emergency needs.
type UnitsRequired struct {
	Ambulances int `json:"ambulances"`
	FireTrucks int `json:"fire_trucks"`
	Police     int `json:"police"`
}

// Total returns the sum across all vehicle types.
func (u UnitsRequired) Total() int {
	return u.Ambulances + u.FireTrucks + u.Police
}

// OfType returns the required count for a given vehicle type.
func (u UnitsRequired) OfType(vt VehicleType) int {
	switch vt {
	case VehicleAmbulance:
		return u.Ambulances
	case VehicleFireTruck:
		return u.FireTrucks
	case VehiclePolice:
		return u.Police
	default:
		return 0
	}
}

// EmergencyUnitDefaults gives the default UnitsRequired per emergency type.
var EmergencyUnitDefaults = map[EmergencyType]UnitsRequired{
	EmergencyMedical:         {Ambulances: 1},
	EmergencyFire:            {Ambulances: 1, FireTrucks: 2},
	EmergencyCrime:           {Police: 2},
	EmergencyAccident:        {Ambulances: 2, Police: 1},
	EmergencyHazmat:          {Ambulances: 1, FireTrucks: 2, Police: 1},
	EmergencyRescue:          {Ambulances: 1, FireTrucks: 1},
	EmergencyNaturalDisaster: {Ambulances: 2, FireTrucks: 2, Police: 2},
}

// Emergency is an incident requiring unit dispatch.
type Emergency struct {
	EmergencyID    string          `json:"emergency_id"`
	EmergencyType  EmergencyType   `json:"emergency_type"`
	Status         EmergencyStatus `json:"status"`
	Severity       int             `json:"severity"`
	Location       GeoLocation     `json:"location"`
	Description    string          `json:"description"`
	UnitsRequired  UnitsRequired   `json:"units_required"`
	CreatedAt      time.Time       `json:"created_at"`
	DispatchedAt   *time.Time      `json:"dispatched_at,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	Notes          []string        `json:"notes,omitempty"`
}

// DispatchedUnit is one vehicle assigned to an emergency.
type DispatchedUnit struct {
	VehicleID      string      `json:"vehicle_id"`
	VehicleType    VehicleType `json:"vehicle_type"`
	AssignedAt     time.Time   `json:"assigned_at"`
	Acknowledged   bool        `json:"acknowledged"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
}

// Dispatch is the record of units assigned to one emergency.
type Dispatch struct {
	DispatchID        string           `json:"dispatch_id"`
	EmergencyID       string           `json:"emergency_id"`
	Units             []DispatchedUnit `json:"units"`
	DispatchedAt      time.Time        `json:"dispatched_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	SelectionCriteria string           `json:"selection_criteria"`
	Notes             []string         `json:"notes,omitempty"`
}

// VehicleIDs lists the vehicle IDs of every assigned unit.
func (d Dispatch) VehicleIDs() []string {
	ids := make([]string, len(d.Units))
	for i, u := range d.Units {
		ids[i] = u.VehicleID
	}
	return ids
}

// AllAcknowledged is vacuously true on an empty unit list.
func (d Dispatch) AllAcknowledged() bool {
	for _, u := range d.Units {
		if !u.Acknowledged {
			return false
		}
	}
	return true
}
