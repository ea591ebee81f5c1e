// Package metrics provides Prometheus metrics for the attribution service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attribd"

var registry = prometheus.NewRegistry()

// GetRegistry returns the registry all service metrics are registered on.
func GetRegistry() *prometheus.Registry {
	return registry
}

var (
	// Ingestion
	eventsIngested = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_ingested_total",
		Help:      "Ingested events by kind (pageview, identify, conversion, webhook).",
	}, []string{"kind"})

	eventsDuplicate = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_duplicate_total",
		Help:      "Events rejected by the idempotency guard.",
	})

	integrityErrors = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "data_integrity_errors_total",
		Help:      "Records excluded from aggregation due to integrity problems.",
	})

	// Attribution & reporting
	attributionRuns = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attribution_runs_total",
		Help:      "Attribution computations by model.",
	}, []string{"model"})

	reportBuildDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "report_build_duration_ms",
		Help:      "Full report build latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	unattributedConversions = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unattributed_conversions_total",
		Help:      "Conversions routed to the unattributed bucket during report builds.",
	})

	// HTTP
	httpRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})

	httpRequestDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"endpoint", "method"})

	// CAPI sync
	capiPushes = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capi_pushes_total",
		Help:      "CAPI push outcomes by platform and status.",
	}, []string{"platform", "status"})

	capiSweepDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "capi_sweep_duration_ms",
		Help:      "CAPI sweep latency in milliseconds.",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 15000, 60000},
	})

	// Live feed
	feedSubscribers = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_subscribers",
		Help:      "Currently attached live-feed subscribers.",
	})

	feedDroppedEvents = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_dropped_events_total",
		Help:      "Events dropped from slow subscriber buffers.",
	})

	// Store
	storeWriteLatency = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_write_duration_ms",
		Help:      "Event store write transaction latency in milliseconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
	}, []string{"op"})

	storeQueryLatency = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_query_duration_ms",
		Help:      "Event store read query latency in milliseconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500},
	})
)

// RecordEventIngested increments the ingest counter for an event kind.
func RecordEventIngested(kind string) { eventsIngested.WithLabelValues(kind).Inc() }

// RecordEventDuplicate increments the duplicate-event counter.
func RecordEventDuplicate() { eventsDuplicate.Inc() }

// RecordIntegrityError increments the excluded-record counter.
func RecordIntegrityError() { integrityErrors.Inc() }

// RecordAttributionRun increments the per-model attribution counter.
func RecordAttributionRun(model string) { attributionRuns.WithLabelValues(model).Inc() }

// RecordReportBuildDuration observes a report build latency.
func RecordReportBuildDuration(ms float64) { reportBuildDuration.Observe(ms) }

// RecordUnattributedConversion increments the unattributed bucket counter.
func RecordUnattributedConversion() { unattributedConversions.Inc() }

// RecordHTTPRequest increments the request counter.
func RecordHTTPRequest(endpoint, method, status string) {
	httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration observes a request latency.
func RecordHTTPRequestDuration(endpoint, method string, ms float64) {
	httpRequestDuration.WithLabelValues(endpoint, method).Observe(ms)
}

// RecordCAPIPush increments the push counter for a platform/status pair.
func RecordCAPIPush(platform, status string) {
	capiPushes.WithLabelValues(platform, status).Inc()
}

// RecordCAPISweepDuration observes a sweep latency.
func RecordCAPISweepDuration(ms float64) { capiSweepDuration.Observe(ms) }

// UpdateFeedSubscribers sets the current subscriber count.
func UpdateFeedSubscribers(n int) { feedSubscribers.Set(float64(n)) }

// RecordFeedDroppedEvent increments the dropped-event counter.
func RecordFeedDroppedEvent() { feedDroppedEvents.Inc() }

// RecordStoreWriteLatency observes a write transaction latency.
func RecordStoreWriteLatency(op string, ms float64) {
	storeWriteLatency.WithLabelValues(op).Observe(ms)
}

// RecordStoreQueryLatency observes a read query latency.
func RecordStoreQueryLatency(ms float64) { storeQueryLatency.Observe(ms) }
