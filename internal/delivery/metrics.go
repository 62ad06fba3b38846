package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery modes used as metric labels.
const (
	modeFetch  = "fetch"
	modeWait   = "wait"
	modeStream = "stream"
)

// Metrics exposes Prometheus collectors that report delivery activity.
type Metrics struct {
	requests        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	delivered       *prometheus.CounterVec
	heartbeats      prometheus.Counter
	activeLongLived prometheus.Gauge
	waitDuration    prometheus.Histogram
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Registration errors panic, mirroring the promauto helpers. A nil
// registerer creates unregistered collectors, which is what tests want.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadlive",
				Subsystem: "delivery",
				Name:      "requests_total",
				Help:      "Delivery requests by mode.",
			},
			[]string{"mode"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadlive",
				Subsystem: "delivery",
				Name:      "rejected_total",
				Help:      "Long-lived requests refused because every slot was taken.",
			},
			[]string{"mode"},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadlive",
				Subsystem: "delivery",
				Name:      "events_delivered_total",
				Help:      "Events handed to readers by mode.",
			},
			[]string{"mode"},
		),
		heartbeats: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "threadlive",
				Subsystem: "delivery",
				Name:      "heartbeats_total",
				Help:      "Heartbeats written to idle streams.",
			},
		),
		activeLongLived: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "threadlive",
				Subsystem: "delivery",
				Name:      "long_lived_active",
				Help:      "Blocking waits and streams currently holding a slot.",
			},
		),
		waitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "threadlive",
				Subsystem: "delivery",
				Name:      "wait_duration_seconds",
				Help:      "Time blocking waits spent before returning.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 25, 60},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.rejected, m.delivered, m.heartbeats, m.activeLongLived, m.waitDuration)
	}
	return m
}
