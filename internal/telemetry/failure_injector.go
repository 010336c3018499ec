package telemetry

import (
	"sync"
	"time"

	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
)

// FailureInjector maintains a map from each active failure scenario to its
// activation time, and deterministically overrides telemetry fields on
// each tick following a fixed per-minute progression curve for each
// scenario.
type FailureInjector struct {
	mu         sync.Mutex
	activation map[fleetmodel.FailureScenario]time.Time
}

// NewFailureInjector returns an injector with no active scenarios.
func NewFailureInjector() *FailureInjector {
	return &FailureInjector{activation: make(map[fleetmodel.FailureScenario]time.Time)}
}

// Activate registers scenario as active starting at t. Re-activating an
// already-active scenario resets its clock.
func (f *FailureInjector) Activate(scenario fleetmodel.FailureScenario, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activation[scenario] = t
}

// Deactivate removes scenario, returning telemetry to baseline on the next
// tick.
func (f *FailureInjector) Deactivate(scenario fleetmodel.FailureScenario) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.activation, scenario)
}

// Active reports whether scenario is currently active.
func (f *FailureInjector) Active(scenario fleetmodel.FailureScenario) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.activation[scenario]
	return ok
}

func clampMin(v, min float64) float64 {
	if v < min {
		return min
	}
	return v
}

func clampMax(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

// Apply overrides fields of t for every active scenario and returns the
// mutated record. Scenarios are visited in map iteration order, so the
// order in which they are applied is not defined: when two active
// scenarios write the same field (alternator_failure and
// battery_degradation both set battery_voltage), which value ends up in
// the record can differ from tick to tick.
func (f *FailureInjector) Apply(now time.Time, t fleetmodel.VehicleTelemetry) fleetmodel.VehicleTelemetry {
	f.mu.Lock()
	scenarios := make([]fleetmodel.FailureScenario, 0, len(f.activation))
	elapsed := make(map[fleetmodel.FailureScenario]float64, len(f.activation))
	for s, at := range f.activation {
		scenarios = append(scenarios, s)
		elapsed[s] = now.Sub(at).Minutes()
	}
	f.mu.Unlock()

	for _, s := range scenarios {
		m := elapsed[s]
		switch s {
		case fleetmodel.ScenarioEngineOverheat:
			t.EngineTempCelsius = clampMax(90+2*m, 150)
			t.CoolantTempCelsius = clampMax(85+2.5*m, 150)
		case fleetmodel.ScenarioAlternatorFailure:
			t.Electrical.AlternatorVoltage = clampMin(14.2-0.02*m, 11.5)
			soc := clampMin(100-3*m, 0)
			t.Electrical.BatterySOCPercent = soc
			t.Electrical.BatteryVoltage = 11.5 + soc*0.025
		case fleetmodel.ScenarioBrakePadWear:
			front := clampMin(8-0.065*m, 0)
			rear := clampMin(9-0.05*m, 0)
			if t.BrakePadMM == nil {
				t.BrakePadMM = make(map[fleetmodel.WheelPosition]float64)
			}
			t.BrakePadMM[fleetmodel.WheelFrontLeft] = front
			t.BrakePadMM[fleetmodel.WheelFrontRight] = front
			t.BrakePadMM[fleetmodel.WheelRearLeft] = rear
			t.BrakePadMM[fleetmodel.WheelRearRight] = rear
			t.BrakeTempCelsius = clampMax(40+0.5*m, 120)
		case fleetmodel.ScenarioTirePressureLow:
			if t.TirePressurePSI == nil {
				t.TirePressurePSI = make(map[fleetmodel.WheelPosition]float64)
			}
			t.TirePressurePSI[fleetmodel.WheelFrontLeft] = clampMin(80-2*m, 0)
			t.VibrationZ += clampMax(0.02*m, 0.5)
		case fleetmodel.ScenarioBatteryDegradation:
			t.Electrical.BatteryVoltage = clampMin(13.8-0.02*m, 0)
		case fleetmodel.ScenarioFuelLeak:
			t.FuelLevelPercent = clampMin(75-5*m, 0)
		}
	}
	return t
}
