package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
)

func baseTelemetry() fleetmodel.VehicleTelemetry {
	return fleetmodel.VehicleTelemetry{
		VehicleID:         "AMB-001",
		Timestamp:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EngineTempCelsius: 90,
		Electrical: fleetmodel.ElectricalReadings{
			AlternatorVoltage: 14.2,
			BatteryVoltage:    13.8,
			BatterySOCPercent: 100,
		},
		FuelLevelPercent: 75,
		TirePressurePSI:  map[fleetmodel.WheelPosition]float64{},
		BrakePadMM:       map[fleetmodel.WheelPosition]float64{},
	}
}

func TestDetectAnomalies_NoAlertsOnHealthyTelemetry(t *testing.T) {
	assert.Empty(t, DetectAnomalies(baseTelemetry()))
}

// S5 — Threshold crossings.
func TestDetectAnomalies_ThreeCriticalAlertsOnSimultaneousCrossings(t *testing.T) {
	tl := baseTelemetry()
	tl.EngineTempCelsius = 121
	tl.Electrical.BatteryVoltage = 11.4
	tl.FuelLevelPercent = 4

	alerts := DetectAnomalies(tl)
	require.Len(t, alerts, 3)
	for _, a := range alerts {
		assert.Equal(t, fleetmodel.SeverityCritical, a.Severity)
		assert.False(t, a.SafeToOperate)
	}
}

func TestDetectAnomalies_EngineWarningBand(t *testing.T) {
	tl := baseTelemetry()
	tl.EngineTempCelsius = 110
	alerts := DetectAnomalies(tl)
	require.Len(t, alerts, 1)
	assert.Equal(t, fleetmodel.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, fleetmodel.CategoryEngine, alerts[0].Category)
	assert.True(t, alerts[0].SafeToOperate)
}

func TestDetectAnomalies_PerWheelBrakeAndTireAlerts(t *testing.T) {
	tl := baseTelemetry()
	tl.BrakePadMM[fleetmodel.WheelFrontLeft] = 1.0
	tl.BrakePadMM[fleetmodel.WheelRearRight] = 2.5
	tl.TirePressurePSI[fleetmodel.WheelFrontRight] = 35

	alerts := DetectAnomalies(tl)
	require.Len(t, alerts, 3)

	bySeverity := map[fleetmodel.AlertSeverity]int{}
	for _, a := range alerts {
		bySeverity[a.Severity]++
	}
	assert.Equal(t, 2, bySeverity[fleetmodel.SeverityCritical])
	assert.Equal(t, 1, bySeverity[fleetmodel.SeverityWarning])
}

// Testable property 7: pure modulo AlertID and Timestamp (here identical
// since Timestamp is copied from the input telemetry).
func TestDetectAnomalies_Deterministic(t *testing.T) {
	tl := baseTelemetry()
	tl.EngineTempCelsius = 121

	a1 := DetectAnomalies(tl)
	a2 := DetectAnomalies(tl)
	require.Len(t, a1, 1)
	require.Len(t, a2, 1)
	assert.Equal(t, a1[0].Severity, a2[0].Severity)
	assert.Equal(t, a1[0].FailureProbability, a2[0].FailureProbability)
	assert.Equal(t, a1[0].Timestamp, a2[0].Timestamp)
	assert.NotEqual(t, a1[0].AlertID, a2[0].AlertID)
}
