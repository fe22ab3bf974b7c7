// Package metrics holds the Prometheus instruments shared by the check pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal counts finished compliance checks by resulting status.
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_checks_total",
		Help: "Compliance checks by resulting status",
	}, []string{"status"})

	// CheckErrors counts checks that failed before a verdict was stored.
	CheckErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_check_errors_total",
		Help: "Compliance checks that failed, by stage",
	}, []string{"stage"})

	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "compliance_check_duration_seconds",
		Help:    "End-to-end compliance check duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
	})

	OCRPages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_ocr_pages_total",
		Help: "Document pages sent to the vision model, by outcome",
	}, []string{"outcome"})

	// RetrievedChunks counts retrieved reference chunks kept or dropped by the relevance filter.
	RetrievedChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_retrieved_chunks_total",
		Help: "Retrieved reference chunks by filter outcome",
	}, []string{"outcome"})
)
