// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nemaec"

// Import results.
const (
	ImportResultSuccess   = "success"
	ImportResultInvalid   = "invalid"
	ImportResultMalformed = "malformed"
	ImportResultCanceled  = "canceled"
	ImportResultError     = "error"
)

// Geocoding lookup results.
const (
	LookupResultHit      = "cache_hit"
	LookupResultOK       = "ok"
	LookupResultError    = "error"
	LookupResultFallback = "fallback"
)

var (
	// ImportsTotal counts schedule imports.
	// Labels: result (success, invalid, malformed, canceled, error)
	ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "schedule",
		Name:      "imports_total",
		Help:      "Schedule imports by result",
	}, []string{"result"})

	// RowsIngested measures rows read per spreadsheet.
	// Labels: mode (full, preview)
	RowsIngested = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "schedule",
		Name:      "rows_ingested",
		Help:      "Data rows read per ingested spreadsheet",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"mode"})

	// DiffsTotal counts version comparisons.
	// Labels: balanced (true, false)
	DiffsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "schedule",
		Name:      "diffs_total",
		Help:      "Schedule version comparisons by balance outcome",
	}, []string{"balanced"})

	// GeocodingLookups counts place lookups.
	// Labels: provider (google, local, cache), operation (search, details), result
	GeocodingLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "geocoding",
		Name:      "lookups_total",
		Help:      "Geocoding lookups by provider, operation and result",
	}, []string{"provider", "operation", "result"})

	// HTTPRequests counts API requests.
	// Labels: route (the ServeMux pattern), status (HTTP status code)
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"route", "status"})

	// HTTPDuration measures API request latency.
	// Labels: route
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)
