// Package metrics exposes Prometheus instrumentation for enrichment,
// scoring and persistence.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Enrichment outcomes used as the "result" label of EnrichRequests.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultPrivate = "private"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

var (
	// EnrichRequests counts EnrichIP calls by outcome.
	EnrichRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatsage_enrich_requests_total",
			Help: "IP enrichment requests by result",
		},
		[]string{"result"},
	)

	// GeoLookupDuration observes calls to the geolocation service, failed ones included.
	GeoLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threatsage_geo_lookup_duration_seconds",
			Help:    "Time spent calling the geolocation service",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// ThreatScores observes every computed threat score.
	ThreatScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threatsage_threat_score",
			Help:    "Distribution of computed threat scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
	)

	// IncidentsRecorded counts incidents added to incident memory.
	IncidentsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threatsage_incidents_recorded_total",
			Help: "Incidents written to incident memory",
		},
	)

	// PersistFailures counts failed file writes by store ("cache", "memory").
	PersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatsage_persist_failures_total",
			Help: "Failed writes of on-disk state",
		},
		[]string{"store"},
	)
)

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("Metrics endpoint started")
	return srv
}
