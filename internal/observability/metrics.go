package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all lakeflow Prometheus metrics.
type Metrics struct {
	RecordsTotal      *prometheus.CounterVec
	ObjectsWritten    *prometheus.CounterVec
	BytesWritten      *prometheus.CounterVec
	WriteFailures     *prometheus.CounterVec
	TransformFailures prometheus.Counter
	BatchDuration     *prometheus.HistogramVec
}

// NewMetrics creates and registers all lakeflow metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lakeflow_records_total",
			Help: "Records seen per pipeline stage, by outcome.",
		}, []string{"stage", "status"}),

		ObjectsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lakeflow_objects_written_total",
			Help: "Storage objects written per zone.",
		}, []string{"zone"}),

		BytesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lakeflow_bytes_written_total",
			Help: "Object body bytes written per zone.",
		}, []string{"zone"}),

		WriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lakeflow_write_failures_total",
			Help: "Object write failures per zone.",
		}, []string{"zone"}),

		TransformFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "lakeflow_transform_failures_total",
			Help: "Per-record enrichment failures.",
		}),

		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lakeflow_batch_duration_seconds",
			Help:    "Processing time per invocation, by stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}
