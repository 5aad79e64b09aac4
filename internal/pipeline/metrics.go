package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the pipeline collectors exposed on /metrics.
type Metrics struct {
	tables      *prometheus.CounterVec
	rows        *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	duration    prometheus.Histogram
	runs        *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tables: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covidboard",
			Name:      "tables_processed_total",
			Help:      "Tables processed, by table and result (ok or error kind).",
		}, []string{"table", "result"}),
		rows: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "covidboard",
			Name:      "table_rows",
			Help:      "Rows in the last written sink of each table.",
		}, []string{"table"}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "covidboard",
			Name:      "table_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sink write.",
		}, []string{"table"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "covidboard",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covidboard",
			Name:      "runs_total",
			Help:      "Pipeline runs by status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) observe(r *Result) {
	if m == nil {
		return
	}
	for _, t := range r.Tables {
		m.tables.WithLabelValues(t.Name, KindLabel(t.Err)).Inc()
		if t.Err == nil && !r.DryRun {
			m.rows.WithLabelValues(t.Name).Set(float64(t.Rows))
			m.lastSuccess.WithLabelValues(t.Name).Set(float64(r.FinishedAt.Unix()))
		}
	}
	m.duration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	m.runs.WithLabelValues(r.Status()).Inc()
}
