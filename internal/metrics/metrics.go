package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Check metrics
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marginwatch_checks_total",
			Help: "Total number of checks by kind and outcome",
		},
		[]string{"check", "outcome"}, // outcome: ok, skipped, locked, retrieval_error, store_error
	)

	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marginwatch_check_duration_seconds",
			Help:    "Check latency in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"check"},
	)

	RetrievalErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marginwatch_retrieval_errors_total",
			Help: "Total number of failed metric retrievals",
		},
	)

	DeliveryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marginwatch_delivery_errors_total",
			Help: "Total number of notifications that could not be delivered",
		},
		[]string{"kind"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marginwatch_notifications_total",
			Help: "Total number of notifications delivered",
		},
		[]string{"kind"},
	)

	// State metrics
	LastPercentage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marginwatch_last_percentage",
			Help: "Most recently observed margin percentage",
		},
	)

	HighAlertActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marginwatch_high_alert_active",
			Help: "1 while the high-alert mode is engaged",
		},
	)

	RecurringRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marginwatch_recurring_running",
			Help: "1 while the recurring job is scheduled",
		},
	)
)

// ObserveCheck records a finished check.
func ObserveCheck(check, outcome string, started time.Time) {
	ChecksTotal.WithLabelValues(check, outcome).Inc()
	CheckDuration.WithLabelValues(check).Observe(time.Since(started).Seconds())
}

// SetBool sets g to 1 or 0.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
