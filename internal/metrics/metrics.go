// Package metrics holds the domain collectors of the handover pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeConflict = "conflict"
	OutcomeEmpty    = "empty"
)

// Metrics counts transitions, exports, classification gaps and assembly runs.
type Metrics struct {
	transitions      *prometheus.CounterVec
	exports          *prometheus.CounterVec
	gaps             prometheus.Counter
	assemblies       *prometheus.CounterVec
	assemblyDuration prometheus.Histogram
	mergeProposals   prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handover_transitions_total",
			Help: "Draft state transition requests by event and outcome.",
		}, []string{"event", "from", "outcome"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handover_exports_total",
			Help: "Export attempts by artifact type and outcome.",
		}, []string{"artifact_type", "outcome"}),
		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_classification_gaps_total",
			Help: "Entries with at least one entity kind missing from the taxonomy.",
		}),
		assemblies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handover_assemblies_total",
			Help: "Draft generation runs by outcome.",
		}, []string{"outcome"}),
		assemblyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "handover_assembly_duration_seconds",
			Help:    "Wall time of draft generation including persistence.",
			Buckets: prometheus.DefBuckets,
		}),
		mergeProposals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_merge_proposals_total",
			Help: "Merge proposals created by the assembler.",
		}),
	}
	for _, c := range []prometheus.Collector{m.transitions, m.exports, m.gaps, m.assemblies, m.assemblyDuration, m.mergeProposals} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Transition records one state machine request.
func (m *Metrics) Transition(event, from, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, from, outcome).Inc()
}

// Export records one export attempt.
func (m *Metrics) Export(artifactType, outcome string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(artifactType, outcome).Inc()
}

// ClassificationGap records an entry that degraded to the catch-all bucket or carried unknown kinds.
func (m *Metrics) ClassificationGap() {
	if m == nil {
		return
	}
	m.gaps.Inc()
}

// Assembly records one draft generation run.
func (m *Metrics) Assembly(outcome string, took time.Duration, proposals int) {
	if m == nil {
		return
	}
	m.assemblies.WithLabelValues(outcome).Inc()
	m.assemblyDuration.Observe(took.Seconds())
	if proposals > 0 {
		m.mergeProposals.Add(float64(proposals))
	}
}
