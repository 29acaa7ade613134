package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "places"

// Registry is the process-wide registry served at /metrics.
var Registry = prometheus.NewRegistry()

// AppInfo exposes version information as labels; the value is always 1.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// PlaceOperationsTotal counts place service calls by operation and outcome.
var PlaceOperationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "place_operations_total",
		Help:      "Total number of place operations",
	},
	[]string{"operation", "outcome"}, // outcome: ok|not_found|forbidden|invalid|geocode_failed|storage_error
)

// AssetReleasesTotal counts best-effort asset deletions.
var AssetReleasesTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "asset_releases_total",
		Help:      "Total number of asset releases by mode and outcome",
	},
	[]string{"mode", "outcome"}, // mode: inline|queue, outcome: released|missing|failed|enqueued
)

// Geocoding metrics

var GeocodingRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoding_requests_total",
		Help:      "Total number of answered geocoding requests by source",
	},
	[]string{"source"}, // source: cache|failure_cache|<provider>
)

var GeocodingCacheHitsTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoding_cache_hits_total",
		Help:      "Total number of geocoding cache hits",
	},
)

var GeocodingCacheMissesTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoding_cache_misses_total",
		Help:      "Total number of geocoding cache misses",
	},
)

var GeocodingProviderRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoding_provider_requests_total",
		Help:      "Total number of geocoding provider requests",
	},
	[]string{"provider", "status"}, // status: success|error
)

var GeocodingProviderLatency = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "geocoding_provider_latency_seconds",
		Help:      "Geocoding provider request latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"provider"},
)

var GeocodingFailuresTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoding_failures_total",
		Help:      "Total number of failed geocoding attempts",
	},
	[]string{"reason"}, // reason: not_found|unavailable
)

// Init registers runtime collectors and sets version information.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
