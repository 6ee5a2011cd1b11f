// Package metrics provides the small Recorder interface convnode and
// threadloop accept optionally, grounded in the TestRecorder shape
// exercised by the teacher's observability tests (RecordOperation /
// RecordDuration / RecordError), backed here by a real
// prometheus/client_golang collector instead of a hand-rolled counter
// map.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the metrics sink convnode.Node and threadloop.ThreadLoop
// report through. A nil Recorder is never passed around; NoOp{} is used
// instead so call sites never need a nil check.
type Recorder interface {
	RecordOperation(name string)
	RecordDuration(name string, d time.Duration)
	RecordError(name string)
}

// NoOp discards everything; it's the default when no Recorder is
// supplied.
type NoOp struct{}

func (NoOp) RecordOperation(string)             {}
func (NoOp) RecordDuration(string, time.Duration) {}
func (NoOp) RecordError(string)                 {}

// Prometheus is a Recorder backed by client_golang counters/histograms,
// registered under the given namespace (e.g. "convnode" or "threadloop").
type Prometheus struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheus constructs and registers a Prometheus recorder against
// reg. Passing prometheus.NewRegistry() keeps test instances isolated
// from the global default registry.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	p := &Prometheus{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Count of operations performed, labeled by operation name.",
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Count of operation failures, labeled by operation name.",
		}, []string{"operation"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of timed operations, labeled by operation name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(p.operations, p.errors, p.durations)
	return p
}

func (p *Prometheus) RecordOperation(name string) {
	p.operations.WithLabelValues(name).Inc()
}

func (p *Prometheus) RecordError(name string) {
	p.errors.WithLabelValues(name).Inc()
}

func (p *Prometheus) RecordDuration(name string, d time.Duration) {
	p.durations.WithLabelValues(name).Observe(d.Seconds())
}
