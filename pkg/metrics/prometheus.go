package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetches     *prometheus.CounterVec
	records     *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	checkpoint  prometheus.Gauge
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketengine_fetch_total",
				Help: "Fetch layer calls by outcome (hit, miss, retry, error)",
			},
			[]string{"result"},
		),
		records: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketengine_records_total",
				Help: "Statistic records handled per pipeline stage",
			},
			[]string{"stage"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketengine_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		checkpoint: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketengine_checkpoint_timestamp_seconds",
				Help: "Last persisted statistics day as unix seconds",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketengine_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFetch counts a fetch outcome.
func (r *Recorder) RecordFetch(result string) {
	r.fetches.WithLabelValues(result).Inc()
}

// RecordRecords adds n records to a stage counter.
func (r *Recorder) RecordRecords(stage string, n int) {
	r.records.WithLabelValues(stage).Add(float64(n))
}

// RecordCheckpoint exposes the current sync checkpoint.
func (r *Recorder) RecordCheckpoint(day time.Time) {
	r.checkpoint.Set(float64(day.Unix()))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordFetch(string)            {}
func (Nop) RecordRecords(string, int)     {}
func (Nop) RecordCheckpoint(time.Time)    {}
func (Nop) RecordError(string)            {}
func (Nop) RecordLatency(string, float64) {}
