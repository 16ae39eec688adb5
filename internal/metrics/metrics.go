// Package metrics holds the Prometheus collectors of an enrichment run.
//
// The enricher is a batch tool, so nothing is served over HTTP: after a run
// the registry can be written to a file in the node-exporter textfile
// format. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "enricher"

// Phases of a run, used as the "phase" label.
const (
	PhaseRelations = "relations"
	PhaseSummarize = "summarize"
	PhaseRewrite   = "rewrite"
	PhaseTotal     = "total"
)

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	rowsRead      *prometheus.CounterVec   // By pass (summarize/rewrite)
	rowsSkipped   *prometheus.CounterVec   // By reason
	rowsEnriched  *prometheus.CounterVec   // By document kind of the row
	relationKeys  *prometheus.GaugeVec     // By relation
	summaries     *prometheus.GaugeVec     // By document kind
	phaseDuration *prometheus.HistogramVec // By phase
	runs          *prometheus.CounterVec   // By status (success/failure/unchanged)
}

// New creates the collectors and registers them on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		rowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "rows_read_total",
			Help:      "Data rows read from the dataset",
		}, []string{"pass"}),

		rowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "rows_skipped_total",
			Help:      "Rows left out of the document summaries",
		}, []string{"reason"}),

		rowsEnriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "rows_enriched_total",
			Help:      "Rows rewritten with counterpart metadata",
		}, []string{"kind"}),

		relationKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relations",
			Name:      "keys",
			Help:      "Keys in each relation map of the graph",
		}, []string{"relation"}),

		summaries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "summaries",
			Help:      "Documents summarized in the last pass",
		}, []string{"kind"}),

		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each phase of a run",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~45min
		}, []string{"phase"}),

		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Enrichment runs by outcome",
		}, []string{"status"}),
	}

	collectors := []prometheus.Collector{
		m.rowsRead, m.rowsSkipped, m.rowsEnriched,
		m.relationKeys, m.summaries, m.phaseDuration, m.runs,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AddRowsRead counts data rows read by a pass.
func (m *Metrics) AddRowsRead(pass string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rowsRead.WithLabelValues(pass).Add(float64(n))
}

// AddRowsSkipped counts rows skipped for a reason.
func (m *Metrics) AddRowsSkipped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rowsSkipped.WithLabelValues(reason).Add(float64(n))
}

// AddRowsEnriched counts enriched rows of a document kind.
func (m *Metrics) AddRowsEnriched(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rowsEnriched.WithLabelValues(kind).Add(float64(n))
}

// SetRelationKeys records the size of a relation map.
func (m *Metrics) SetRelationKeys(relation string, n int) {
	if m == nil {
		return
	}
	m.relationKeys.WithLabelValues(relation).Set(float64(n))
}

// SetSummaries records the number of summarized documents of a kind.
func (m *Metrics) SetSummaries(kind string, n int) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(kind).Set(float64(n))
}

// ObservePhase records the duration of a phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// IncRun counts a finished run.
func (m *Metrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// WriteTextfile writes every collected metric to path, atomically, in the
// textfile collector format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
