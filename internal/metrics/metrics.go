// Package metrics exposes the Prometheus collectors the orchestrator and
// agents update as they process telemetry and dispatches.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups every aegis_* collector behind one struct so components
// register against a single *prometheus.Registry passed in at
// construction, rather than the global default registerer.
type Registry struct {
	TelemetryTicksTotal    *prometheus.CounterVec
	AlertsTotal            *prometheus.CounterVec
	ActiveDispatches       prometheus.Gauge
	DispatchLatencySeconds prometheus.Histogram
	InsufficientUnitsTotal *prometheus.CounterVec
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg *prometheus.Registry) *Registry {
	m := &Registry{
		TelemetryTicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_telemetry_ticks_total",
			Help: "Total telemetry ticks processed, by vehicle_id.",
		}, []string{"vehicle_id"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_alerts_total",
			Help: "Total predictive alerts emitted, by severity and category.",
		}, []string{"severity", "category"}),
		ActiveDispatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_active_dispatches",
			Help: "Number of emergencies currently in dispatched state.",
		}),
		DispatchLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_dispatch_latency_seconds",
			Help:    "Time from emergency creation to unit reservation.",
			Buckets: prometheus.DefBuckets,
		}),
		InsufficientUnitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_insufficient_units_total",
			Help: "Count of dispatch attempts with fewer available units than required, by vehicle_type.",
		}, []string{"vehicle_type"}),
	}
	reg.MustRegister(
		m.TelemetryTicksTotal,
		m.AlertsTotal,
		m.ActiveDispatches,
		m.DispatchLatencySeconds,
		m.InsufficientUnitsTotal,
	)
	return m
}
