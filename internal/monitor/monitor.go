package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session Metrics
var (
	SessionActiveCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devserver",
		Subsystem: "session",
		Name:      "active_count",
		Help:      "Number of sessions that are not closed",
	})

	SessionCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devserver",
		Subsystem: "session",
		Name:      "created_total",
		Help:      "Total number of sessions created",
	})

	SessionPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devserver",
		Subsystem: "session",
		Name:      "purged_total",
		Help:      "Total number of closed sessions purged by the cleaner",
	})
)

// Event Log Metrics
var (
	// Kinds are caller-chosen strings and must not become a label.
	EventsAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devserver",
		Subsystem: "eventlog",
		Name:      "appended_total",
		Help:      "Total number of events appended",
	})

	MirrorDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devserver",
		Subsystem: "eventlog",
		Name:      "mirror_dropped_total",
		Help:      "Events not mirrored because the mirror queue was full",
	})
)

// Stream Metrics
var (
	StreamActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devserver",
		Subsystem: "stream",
		Name:      "active_subscribers",
		Help:      "Number of currently connected event stream subscribers",
	})

	StreamOverflowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devserver",
		Subsystem: "stream",
		Name:      "overflows_total",
		Help:      "Subscribers dropped because their queue overflowed",
	})

	StreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "devserver",
		Subsystem: "stream",
		Name:      "duration_seconds",
		Help:      "Lifetime of event stream connections",
		Buckets:   []float64{0.1, 1, 10, 60, 300, 1800, 3600},
	})
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devserver",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests, by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "devserver",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of non-streaming HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)
