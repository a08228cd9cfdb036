// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RegisterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qna_register_total",
			Help: "Registration attempts by result (created, duplicate, invalid, error).",
		}, []string{"result"})

	NearMatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qna_near_match_total",
			Help: "Registrations that succeeded with at least one near-duplicate warning.",
		})

	EditTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qna_edit_total",
			Help: "Cumulative number of records edited.",
		})

	DeleteTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qna_delete_total",
			Help: "Cumulative number of records deleted.",
		})

	LocateErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qna_locate_errors_total",
			Help: "Mutations refused because the target row was missing, ambiguous, or malformed.",
		}, []string{"reason"})

	MalformedRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qna_malformed_rows",
			Help: "Data rows skipped on the latest sheet read because they did not decode.",
		})

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qna_store_errors_total",
			Help: "Failed calls to the tabular store by operation.",
		}, []string{"op"})

	StoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qna_store_duration_seconds",
			Help:    "Latency of tabular store calls by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"})

	UploadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qna_upload_total",
			Help: "Attachment uploads by result (ok, error, orphaned).",
		}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		RegisterTotal,
		NearMatchTotal,
		EditTotal,
		DeleteTotal,
		LocateErrorsTotal,
		MalformedRows,
		StoreErrorsTotal,
		StoreDuration,
		UploadTotal,
	)
}
