package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments shared across services.
type Metrics struct {
	PingsTotal         *prometheus.CounterVec
	FlipsTotal         *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	RateLimitDenials   *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
	QueueDepth         prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsekeep_pings_total",
			Help: "Inbound pings by action.",
		}, []string{"action"}),
		FlipsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsekeep_flips_total",
			Help: "Status transitions by new status.",
		}, []string{"new_status"}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsekeep_notifications_total",
			Help: "Delivery attempts by channel kind and outcome.",
		}, []string{"kind", "outcome"}),
		RateLimitDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsekeep_rate_limit_denials_total",
			Help: "Deliveries held back by the token bucket, by purpose.",
		}, []string{"purpose"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulsekeep_sweep_duration_seconds",
			Help:    "Time spent in one deadline sweep pass.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pulsekeep_flip_queue_depth",
			Help: "Flips waiting in the dispatch queue.",
		}),
	}
}

// NewDefault registers on the global registry, for the binaries.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
