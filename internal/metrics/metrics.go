// Package metrics counts reconstruction outcomes on a private Prometheus
// registry.
//
// A Recorder implements engine.Observer, txn.Observer and
// failure.Observer, so one value is wired into all three layers:
//
//	rec := metrics.New()
//	e := engine.New(reg,
//		engine.WithObserver(rec),
//		engine.WithScopeOptions(txn.WithObserver(rec)),
//		engine.WithPolicyOptions(failure.WithObserver(rec)),
//	)
package metrics

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/txn"
)

const namespace = "recon"

// Recorder holds the reconstruction metrics.
type Recorder struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	passes      *prometheus.CounterVec
	commits     *prometheus.CounterVec
	attempts    prometheus.Histogram
	resolutions *prometheus.CounterVec
}

var (
	_ engine.Observer  = (*Recorder)(nil)
	_ txn.Observer     = (*Recorder)(nil)
	_ failure.Observer = (*Recorder)(nil)
)

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		// Labels: component, transition (insert, update, replace, delete, empty, keep, abort)
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Runs by component and transition",
		}, []string{"component", "transition"}),

		// Labels: component, status, aborted
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "passes_total",
			Help:      "Component passes by final transaction status",
		}, []string{"component", "status", "aborted"}),

		// Labels: status (Committed, RolledBack, Error)
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "commits_total",
			Help:      "Commit calls by resulting status",
		}, []string{"status"}),

		attempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "commit_attempts",
			Help:      "Commit attempts per commit call",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),

		// Labels: kind, outcome (resolved, unresolved)
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "failure",
			Name:      "resolutions_total",
			Help:      "Failure resolution attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

// Registry returns the Recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// RunFinished implements engine.Observer.
func (r *Recorder) RunFinished(component string, t engine.Transition) {
	r.runs.WithLabelValues(component, string(t)).Inc()
}

// PassFinished implements engine.Observer.
func (r *Recorder) PassFinished(component string, status txn.Status, aborted bool) {
	r.passes.WithLabelValues(component, status.String(), strconv.FormatBool(aborted)).Inc()
}

// CommitFinished implements txn.Observer.
func (r *Recorder) CommitFinished(status txn.Status, attempts int) {
	r.commits.WithLabelValues(status.String()).Inc()
	r.attempts.Observe(float64(attempts))
}

// ResolutionAttempted implements failure.Observer.
func (r *Recorder) ResolutionAttempted(kind string, resolved bool) {
	outcome := "unresolved"
	if resolved {
		outcome = "resolved"
	}
	r.resolutions.WithLabelValues(kind, outcome).Inc()
}

// Expose renders every metric in the Prometheus text format.
func (r *Recorder) Expose() (string, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}
