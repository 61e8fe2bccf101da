// Package promsink exports scopez event traffic as Prometheus metrics.
//
// The sink counts delivered events by level and tracks how deep in the
// span tree events are emitted. Attach it to a registry directly or
// compose it with other sinks:
//
//	sink := promsink.New(prometheus.DefaultRegisterer)
//	registry := scopez.NewRegistry(sink)
package promsink

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zoobzio/scopez"
)

// Sink records per-event metrics. It never inspects field values, so
// metric cardinality stays bounded by the level set.
type Sink struct {
	// Delivered events by level.
	eventsTotal *prometheus.CounterVec

	// Ancestor count at the moment each event was delivered.
	spanDepth prometheus.Histogram

	// Events carrying at least one field.
	fieldedTotal prometheus.Counter
}

// New creates a sink and registers its collectors with reg. A nil reg
// falls back to the default registerer. Registering two sinks with the
// same registerer panics on the duplicate collectors, so create one
// sink per registry.
func New(reg prometheus.Registerer) *Sink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Sink{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scopez_events_total",
				Help: "Total number of events delivered to the sink",
			},
			[]string{"level"},
		),

		spanDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scopez_span_depth",
				Help:    "Number of open ancestor spans when an event was delivered",
				Buckets: prometheus.LinearBuckets(0, 1, 8),
			},
		),

		fieldedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scopez_fielded_events_total",
				Help: "Total number of delivered events carrying structured fields",
			},
		),
	}

	reg.MustRegister(
		s.eventsTotal,
		s.spanDepth,
		s.fieldedTotal,
	)

	return s
}

// OnEvent implements scopez.Sink.
func (s *Sink) OnEvent(evt scopez.Event, ancestors []scopez.SpanData) {
	s.eventsTotal.WithLabelValues(evt.Level.String()).Inc()
	s.spanDepth.Observe(float64(len(ancestors)))
	if len(evt.Fields) > 0 {
		s.fieldedTotal.Inc()
	}
}
