// Package telemetry implements the agent-side pipeline: synthetic sensor
// generation, failure-scenario injection, and threshold-based anomaly
// detection over the rich per-wheel/electrical telemetry shape.
package telemetry

import (
	"math"
	"math/rand"

	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
)

// Baselines is the set of nominal values and per-field noise fractions a
// generator samples around. noise is the fractional width of the Gaussian
// (σ = |baseline·noise/2|).
type Baselines struct {
	EngineTempCelsius   float64
	EngineTempNoise     float64
	CoolantTempCelsius  float64
	CoolantTempNoise    float64
	EngineRPM           float64
	EngineRPMNoise      float64
	FuelLevelPercent    float64
	FuelLevelNoise      float64
	AlternatorVoltage   float64
	AlternatorNoise     float64
	BatteryVoltage      float64
	BatteryVoltageNoise float64
	BatterySOCPercent   float64
	BatterySOCNoise     float64
	TirePressurePSI     float64
	TirePressureNoise   float64
	BrakePadMM          float64
	BrakePadNoise       float64
	BrakeTempCelsius    float64
	BrakeTempNoise      float64
	VibrationZ          float64
	VibrationNoise      float64
}

// DefaultBaselines returns representative nominal values for a healthy,
// idling vehicle.
func DefaultBaselines() Baselines {
	return Baselines{
		EngineTempCelsius:   90,
		EngineTempNoise:     0.05,
		CoolantTempCelsius:  85,
		CoolantTempNoise:    0.04,
		EngineRPM:           900,
		EngineRPMNoise:      0.1,
		FuelLevelPercent:    75,
		FuelLevelNoise:      0.02,
		AlternatorVoltage:   14.2,
		AlternatorNoise:     0.01,
		BatteryVoltage:      13.8,
		BatteryVoltageNoise: 0.01,
		BatterySOCPercent:   100,
		BatterySOCNoise:     0.01,
		TirePressurePSI:     80,
		TirePressureNoise:   0.02,
		BrakePadMM:          9,
		BrakePadNoise:       0.03,
		BrakeTempCelsius:    40,
		BrakeTempNoise:      0.05,
		VibrationZ:          0.1,
		VibrationNoise:      0.2,
	}
}

// Generator produces synthetic VehicleTelemetry readings for one vehicle.
type Generator struct {
	vehicleID  string
	baselines  Baselines
	rng        *rand.Rand
	sequence   uint64
	odometerKm float64
}

// NewGenerator constructs a Generator drawing noise from rng (pass a
// *rand.Rand seeded per-agent for reproducible synthetic fleets in tests).
func NewGenerator(vehicleID string, baselines Baselines, rng *rand.Rand) *Generator {
	return &Generator{vehicleID: vehicleID, baselines: baselines, rng: rng}
}

// noisy samples baseline + Gaussian(0, |baseline*noise/2|).
func (g *Generator) noisy(baseline, noise float64) float64 {
	sigma := math.Abs(baseline * noise / 2)
	return baseline + g.rng.NormFloat64()*sigma
}

// clampPercent clamps a percentage reading to [0,100].
func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Next produces one telemetry record with an incremented sequence_number.
// location is supplied by the caller (the agent owns vehicle movement);
// the generator only fills in sensor readings.
func (g *Generator) Next(location fleetmodel.GeoLocation) fleetmodel.VehicleTelemetry {
	g.sequence++
	b := g.baselines

	tires := make(map[fleetmodel.WheelPosition]float64, len(fleetmodel.AllWheels))
	brakes := make(map[fleetmodel.WheelPosition]float64, len(fleetmodel.AllWheels))
	for _, w := range fleetmodel.AllWheels {
		tires[w] = g.noisy(b.TirePressurePSI, b.TirePressureNoise)
		brakes[w] = g.noisy(b.BrakePadMM, b.BrakePadNoise)
	}

	speedKmh := location.SpeedKmh
	g.odometerKm += speedKmh / 3600 * 10 // assumes ~10s tick interval

	return fleetmodel.VehicleTelemetry{
		VehicleID:          g.vehicleID,
		SequenceNumber:     g.sequence,
		Timestamp:          location.Timestamp,
		Location:           location,
		EngineTempCelsius:  g.noisy(b.EngineTempCelsius, b.EngineTempNoise),
		CoolantTempCelsius: g.noisy(b.CoolantTempCelsius, b.CoolantTempNoise),
		EngineRPM:          g.noisy(b.EngineRPM, b.EngineRPMNoise),
		FuelLevelPercent:   clampPercent(g.noisy(b.FuelLevelPercent, b.FuelLevelNoise)),
		Electrical: fleetmodel.ElectricalReadings{
			AlternatorVoltage: g.noisy(b.AlternatorVoltage, b.AlternatorNoise),
			BatteryVoltage:    g.noisy(b.BatteryVoltage, b.BatteryVoltageNoise),
			BatterySOCPercent: clampPercent(g.noisy(b.BatterySOCPercent, b.BatterySOCNoise)),
		},
		TirePressurePSI:  tires,
		BrakePadMM:       brakes,
		BrakeTempCelsius: g.noisy(b.BrakeTempCelsius, b.BrakeTempNoise),
		VibrationZ:       math.Abs(g.noisy(b.VibrationZ, b.VibrationNoise)),
		OdometerKm:       g.odometerKm,
	}
}

// SequenceNumber returns the sequence number assigned to the most recent
// record, or 0 if Next has never been called.
func (g *Generator) SequenceNumber() uint64 { return g.sequence }
