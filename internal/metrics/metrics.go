// Package metrics holds the prometheus collectors shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsEnriched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loglens_records_enriched_total",
		Help: "Records that passed enrichment and were appended to the dataset",
	})

	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loglens_records_dropped_total",
		Help: "Records discarded during enrichment, by reason",
	}, []string{"reason"})

	LinesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loglens_lines_skipped_total",
		Help: "Malformed input lines skipped by the parser",
	})

	GeoResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loglens_geo_resolutions_total",
		Help: "Country resolutions, by source (database, fallback, invalid)",
	}, []string{"source"})

	TailerBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loglens_tailer_batches_total",
		Help: "Change notifications that appended at least one record",
	})

	TailerOffset = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loglens_tailer_offset_bytes",
		Help: "Byte offset consumed in the watched file",
	})

	LoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loglens_load_duration_seconds",
		Help:    "Duration of bulk loads",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)
