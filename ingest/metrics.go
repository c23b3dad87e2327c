package ingest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	processedCounter prometheus.Counter
	createdCounter   prometheus.Counter
	updatedCounter   prometheus.Counter
	skippedCounter   prometheus.Counter
	erroredCounter   prometheus.Counter
	unmatchedCounter prometheus.Counter
)

func init() {
	processedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papers_processed_total",
			Help: "Total number of export rows processed.",
		},
	)
	createdCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papers_created_total",
			Help: "Total number of new papers added to the database.",
		},
	)
	updatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papers_updated_total",
			Help: "Total number of existing papers updated.",
		},
	)
	skippedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papers_skipped_total",
			Help: "Total number of rows skipped as duplicates or existing.",
		},
	)
	erroredCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papers_errored_total",
			Help: "Total number of rows that failed to import.",
		},
	)
	unmatchedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "journals_unmatched_total",
			Help: "Total number of rows whose journal could not be resolved.",
		},
	)
	prometheus.MustRegister(
		processedCounter, createdCounter, updatedCounter,
		skippedCounter, erroredCounter, unmatchedCounter,
	)
}

// MetricsHandler liefert den HTTP-Handler, über den die Laufzähler
// während eines Imports abgefragt werden können.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
