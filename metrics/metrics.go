package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FilesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icescan_files_opened_total",
		Help: "Files opened by scan streams",
	}, []string{"format"})

	BatchesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "icescan_batches_emitted_total",
		Help: "Batches emitted by scan streams after partition column projection",
	})

	RowsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "icescan_rows_emitted_total",
		Help: "Rows emitted by scan streams",
	})

	StreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icescan_stream_errors_total",
		Help: "Scan streams terminated by an error",
	}, []string{"stage"})

	PackingAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icescan_packing_attempts_total",
		Help: "Attempts to regroup files by statistics",
	}, []string{"outcome"})

	PackedGroups = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "icescan_packed_groups",
		Help:    "Number of file groups produced by statistics packing",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	ObjectStoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icescan_object_store_retries_total",
		Help: "Retried object store requests",
	}, []string{"store", "op"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
