package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the monitoring backend.
type Metrics struct {
	AlertPolls   *prometheus.CounterVec // labels: status={success,error}
	ActiveAlerts prometheus.Gauge

	ForecastCacheLookups *prometheus.CounterVec // labels: result={hit,miss,stale}
	ForecastFetches      *prometheus.CounterVec // labels: outcome={success,error}

	StreamSubscribers prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		AlertPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatnet",
			Name:      "alert_polls_total",
			Help:      "Upstream alert polls by status.",
		}, []string{"status"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heatnet",
			Name:      "active_alerts",
			Help:      "Alerts in the current list after the last successful poll.",
		}),
		ForecastCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatnet",
			Name:      "forecast_cache_lookups_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		ForecastFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatnet",
			Name:      "forecast_fetches_total",
			Help:      "Upstream forecast fetches by outcome.",
		}, []string{"outcome"}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heatnet",
			Name:      "stream_subscribers",
			Help:      "Connected alert stream subscribers.",
		}),
	}
}

// NewMetrics creates the collectors and registers them with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.AlertPolls,
		m.ActiveAlerts,
		m.ForecastCacheLookups,
		m.ForecastFetches,
		m.StreamSubscribers,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests do not hit
// "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
