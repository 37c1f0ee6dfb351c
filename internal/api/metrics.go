package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

var failureKinds = []string{
	kindValidation,
	kindNotFound,
	kindTooLarge,
	kindExternalProcess,
	kindFormat,
	kindIO,
	kindInternal,
}

// Metrics exposes counters and gauges for the API layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	activeSyntheses    atomic.Int64
	synthesesTotal     atomic.Int64
	referencesSaved    atomic.Int64
	referencesRejected atomic.Int64
	failures           map[string]*atomic.Int64
}

// NewMetrics constructs an empty Metrics collection.
func NewMetrics() *Metrics {
	m := &Metrics{failures: make(map[string]*atomic.Int64, len(failureKinds))}
	for _, kind := range failureKinds {
		m.failures[kind] = new(atomic.Int64)
	}
	return m
}

// IncActiveSyntheses increments the in-flight synthesis gauge.
func (m *Metrics) IncActiveSyntheses() {
	if m == nil {
		return
	}
	m.activeSyntheses.Add(1)
}

// DecActiveSyntheses decrements the in-flight synthesis gauge.
func (m *Metrics) DecActiveSyntheses() {
	if m == nil {
		return
	}
	m.activeSyntheses.Add(-1)
}

// ActiveSyntheses reports the number of syntheses currently running.
func (m *Metrics) ActiveSyntheses() int64 {
	if m == nil {
		return 0
	}
	return m.activeSyntheses.Load()
}

// IncSyntheses counts a successful synthesis.
func (m *Metrics) IncSyntheses() {
	if m == nil {
		return
	}
	m.synthesesTotal.Add(1)
}

// Syntheses reports how many syntheses completed successfully.
func (m *Metrics) Syntheses() int64 {
	if m == nil {
		return 0
	}
	return m.synthesesTotal.Load()
}

// IncFailure counts a failed request of the given kind.
func (m *Metrics) IncFailure(kind string) {
	if m == nil {
		return
	}
	counter, ok := m.failures[kind]
	if !ok {
		counter = m.failures[kindInternal]
	}
	counter.Add(1)
}

// Failures reports the failure count for kind.
func (m *Metrics) Failures(kind string) int64 {
	if m == nil {
		return 0
	}
	counter, ok := m.failures[kind]
	if !ok {
		return 0
	}
	return counter.Load()
}

// IncReferenceSaved counts a stored reference clip.
func (m *Metrics) IncReferenceSaved() {
	if m == nil {
		return
	}
	m.referencesSaved.Add(1)
}

// ReferencesSaved reports how many reference clips were stored.
func (m *Metrics) ReferencesSaved() int64 {
	if m == nil {
		return 0
	}
	return m.referencesSaved.Load()
}

// IncReferenceRejected counts a reference upload that could not be stored.
func (m *Metrics) IncReferenceRejected() {
	if m == nil {
		return
	}
	m.referencesRejected.Add(1)
}

// ReferencesRejected reports how many reference uploads failed.
func (m *Metrics) ReferencesRejected() int64 {
	if m == nil {
		return 0
	}
	return m.referencesRejected.Load()
}

// MetricsHandler exposes the metrics using the Prometheus text format.
func MetricsHandler(metrics *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		builder := &strings.Builder{}
		writeMetric(builder, "voxclone_active_syntheses", "gauge", metrics.ActiveSyntheses())
		writeMetric(builder, "voxclone_syntheses_total", "counter", metrics.Syntheses())
		writeMetric(builder, "voxclone_references_saved_total", "counter", metrics.ReferencesSaved())
		writeMetric(builder, "voxclone_references_rejected_total", "counter", metrics.ReferencesRejected())

		fmt.Fprintf(builder, "# TYPE %s counter\n", "voxclone_request_failures_total")
		for _, kind := range failureKinds {
			fmt.Fprintf(builder, "voxclone_request_failures_total{kind=%q} %d\n", kind, metrics.Failures(kind))
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(builder.String()))
	})
}

func writeMetric(builder *strings.Builder, name, metricType string, value int64) {
	fmt.Fprintf(builder, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(builder, "%s %d\n", name, value)
}
