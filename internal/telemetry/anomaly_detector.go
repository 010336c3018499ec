package telemetry

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
)

// band holds the probability, confidence, time-to-failure bounds,
// mission/safety flags and recommended-action text for one severity level
// of one metric.
type band struct {
	probability    float64
	confidence     float64
	ttfMinHours    float64
	ttfLikelyHours float64
	ttfMaxHours    float64
	canComplete    bool
	safeToOperate  bool
	action         string
}

var (
	engineTempWarning = band{0.65, 0.85, 2, 4, 8, true, true,
		"Reduce RPM and monitor temperature. Schedule inspection within 4 hours."}
	engineTempCritical = band{0.95, 0.98, 0.5, 1.0, 2.0, false, false,
		"STOP IMMEDIATELY - Engine damage imminent. Activate limp mode."}

	batterySOCWarning = band{0.50, 0.80, 2, 4, 6, true, true,
		"Battery charge low - Check charging system and battery health."}
	batterySOCCritical = band{0.90, 0.95, 0.5, 1, 2, false, false,
		"Battery critically low - Vehicle may shut down. Return to base immediately."}

	brakePadWarning = band{0.60, 0.90, 24, 48, 72, true, true, ""}
	brakePadCritical = band{0.95, 0.98, 0, 0.5, 1, false, false, ""}

	tireWarning  = band{0.50, 0.85, 1, 2, 4, true, true, ""}
	tireCritical = band{0.90, 0.95, 0, 0.25, 0.5, false, false, ""}
)

func newAlert(t fleetmodel.VehicleTelemetry, severity fleetmodel.AlertSeverity, category fleetmodel.FailureCategory, component string, b band, action string, related map[string]float64) fleetmodel.PredictiveAlert {
	return fleetmodel.PredictiveAlert{
		AlertID:                     uuid.NewString(),
		VehicleID:                   t.VehicleID,
		Timestamp:                   t.Timestamp,
		Severity:                    severity,
		Category:                    category,
		Component:                   component,
		FailureProbability:          b.probability,
		Confidence:                  b.confidence,
		PredictedFailureMinHours:    b.ttfMinHours,
		PredictedFailureLikelyHours: b.ttfLikelyHours,
		PredictedFailureMaxHours:    b.ttfMaxHours,
		CanCompleteCurrentMission:   b.canComplete,
		SafeToOperate:               b.safeToOperate,
		RecommendedAction:           action,
		RelatedTelemetry:            related,
	}
}

// DetectAnomalies is a pure function over telemetry: identical input
// produces identical output modulo AlertID (the Timestamp field is copied
// from the telemetry record itself, so it is also deterministic).
func DetectAnomalies(t fleetmodel.VehicleTelemetry) []fleetmodel.PredictiveAlert {
	var alerts []fleetmodel.PredictiveAlert

	if t.EngineTempCelsius > 120 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityCritical, fleetmodel.CategoryEngine, "engine",
			engineTempCritical, engineTempCritical.action,
			map[string]float64{"engine_temp_celsius": t.EngineTempCelsius}))
	} else if t.EngineTempCelsius > 105 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityWarning, fleetmodel.CategoryEngine, "engine",
			engineTempWarning, engineTempWarning.action,
			map[string]float64{"engine_temp_celsius": t.EngineTempCelsius}))
	}

	if t.Electrical.BatteryVoltage < 11.5 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityCritical, fleetmodel.CategoryElectrical, "battery",
			batterySOCCritical, "Battery voltage critically low - Vehicle may shut down. Return to base immediately.",
			map[string]float64{"battery_voltage": t.Electrical.BatteryVoltage}))
	} else if t.Electrical.BatteryVoltage < 12.0 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityWarning, fleetmodel.CategoryElectrical, "battery",
			batterySOCWarning, "Battery voltage low - Check charging system and battery health.",
			map[string]float64{"battery_voltage": t.Electrical.BatteryVoltage}))
	}

	if t.Electrical.AlternatorVoltage < 13.0 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityCritical, fleetmodel.CategoryElectrical, "alternator",
			batterySOCCritical, "Alternator output critically low - Charging system failing, return to base.",
			map[string]float64{"alternator_voltage": t.Electrical.AlternatorVoltage}))
	} else if t.Electrical.AlternatorVoltage < 13.5 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityWarning, fleetmodel.CategoryElectrical, "alternator",
			batterySOCWarning, "Alternator output low - Schedule charging system inspection.",
			map[string]float64{"alternator_voltage": t.Electrical.AlternatorVoltage}))
	}

	if t.Electrical.BatterySOCPercent < 20 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityCritical, fleetmodel.CategoryElectrical, "battery",
			batterySOCCritical, batterySOCCritical.action,
			map[string]float64{"battery_soc_percent": t.Electrical.BatterySOCPercent}))
	} else if t.Electrical.BatterySOCPercent < 40 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityWarning, fleetmodel.CategoryElectrical, "battery",
			batterySOCWarning, batterySOCWarning.action,
			map[string]float64{"battery_soc_percent": t.Electrical.BatterySOCPercent}))
	}

	if t.FuelLevelPercent < 5 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityCritical, fleetmodel.CategoryFuel, "fuel_system",
			band{0.90, 0.95, 0.25, 0.5, 1, false, false, ""},
			"Fuel critically low - Return to base immediately.",
			map[string]float64{"fuel_level_percent": t.FuelLevelPercent}))
	} else if t.FuelLevelPercent < 15 {
		alerts = append(alerts, newAlert(t, fleetmodel.SeverityWarning, fleetmodel.CategoryFuel, "fuel_system",
			band{0.55, 0.85, 1, 2, 4, true, true, ""},
			"Fuel low - Plan refueling stop.",
			map[string]float64{"fuel_level_percent": t.FuelLevelPercent}))
	}

	for _, w := range fleetmodel.AllWheels {
		if thickness, ok := t.BrakePadMM[w]; ok {
			if thickness < 1.5 {
				alerts = append(alerts, newAlert(t, fleetmodel.SeverityCritical, fleetmodel.CategoryBrakes, string(w),
					brakePadCritical,
					fmt.Sprintf("CRITICAL: %s brake pad at %.1fmm - Replace immediately (metal-on-metal imminent).", w, thickness),
					map[string]float64{"brake_pad_thickness_mm": thickness}))
			} else if thickness < 3.0 {
				alerts = append(alerts, newAlert(t, fleetmodel.SeverityWarning, fleetmodel.CategoryBrakes, string(w),
					brakePadWarning,
					fmt.Sprintf("%s brake pad at %.1fmm - Schedule replacement within 48 hours.", w, thickness),
					map[string]float64{"brake_pad_thickness_mm": thickness}))
			}
		}
	}

	for _, w := range fleetmodel.AllWheels {
		if psi, ok := t.TirePressurePSI[w]; ok {
			if psi < 40 {
				alerts = append(alerts, newAlert(t, fleetmodel.SeverityCritical, fleetmodel.CategoryTires, string(w),
					tireCritical,
					fmt.Sprintf("CRITICAL: %s tire at %.0f psi - Stop and replace immediately.", w, psi),
					map[string]float64{"tire_pressure_psi": psi}))
			} else if psi < 60 {
				alerts = append(alerts, newAlert(t, fleetmodel.SeverityWarning, fleetmodel.CategoryTires, string(w),
					tireWarning,
					fmt.Sprintf("%s tire pressure low at %.0f psi - Inspect for leak and refill.", w, psi),
					map[string]float64{"tire_pressure_psi": psi}))
			}
		}
	}

	return alerts
}
