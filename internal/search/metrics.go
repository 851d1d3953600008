// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-source outcomes of aggregations. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	sourceRequests *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	droppedItems   *prometheus.CounterVec
	aggregations   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sourceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "multisearch",
				Name:      "source_requests_total",
				Help:      "Adapter invocations by source and outcome status",
			},
			[]string{"source", "status"},
		),
		sourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "multisearch",
				Name:      "source_duration_seconds",
				Help:      "Adapter latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source"},
		),
		droppedItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "multisearch",
				Name:      "dropped_items_total",
				Help:      "Raw items rejected by result validation",
			},
			[]string{"source"},
		),
		aggregations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "multisearch",
				Name:      "aggregations_total",
				Help:      "Aggregations by outcome",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.sourceRequests, m.sourceDuration, m.droppedItems, m.aggregations)
	return m
}

func (m *Metrics) observeSource(r SourceReport) {
	if m == nil || r.Status == StatusSkipped {
		return
	}
	src := string(r.Source)
	m.sourceRequests.WithLabelValues(src, string(r.Status)).Inc()
	m.sourceDuration.WithLabelValues(src).Observe(float64(r.DurationMS) / 1000)
	if r.Dropped > 0 {
		m.droppedItems.WithLabelValues(src).Add(float64(r.Dropped))
	}
}

func (m *Metrics) observeAggregation(outcome string) {
	if m == nil {
		return
	}
	m.aggregations.WithLabelValues(outcome).Inc()
}
