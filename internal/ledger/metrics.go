package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records ingestion counters. A nil *Metrics records nothing.
type Metrics struct {
	uploads  *prometheus.CounterVec
	records  *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the ingestion collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finance_tracker",
			Name:      "uploads_total",
			Help:      "Uploads processed, by ingestion kind and outcome.",
		}, []string{"kind", "outcome"}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finance_tracker",
			Name:      "extracted_records_total",
			Help:      "Transactions extracted from uploads.",
		}, []string{"kind"}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finance_tracker",
			Name:      "skipped_records_total",
			Help:      "Rows or lines dropped during extraction.",
		}, []string{"kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finance_tracker",
			Name:      "ingest_duration_seconds",
			Help:      "Time spent ingesting an upload.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

func (m *Metrics) observeIngest(kind UploadKind, err error, records, skipped int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.uploads.WithLabelValues(label, outcome).Inc()
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())
	if err == nil {
		m.records.WithLabelValues(label).Add(float64(records))
		m.skipped.WithLabelValues(label).Add(float64(skipped))
	}
}
