package harness

import (
	"github.com/roach88/recon/internal/engine"
)

// Trace event types.
const (
	EventRun    = "run"
	EventDelete = "delete"
	EventPass   = "pass"
)

// TraceEvent is one line of a reconciliation trace. Entity ids are 0 when
// absent.
type TraceEvent struct {
	Type      string `json:"type"`
	Pass      int    `json:"pass"`
	Component string `json:"component"`

	// run
	Ordinal    int    `json:"ordinal,omitempty"`
	Transition string `json:"transition,omitempty"`
	Previous   int64  `json:"previous,omitempty"`
	Output     int64  `json:"output,omitempty"`

	// delete
	Entity int64 `json:"entity,omitempty"`

	// pass
	Status      string   `json:"status,omitempty"`
	Aborted     bool     `json:"aborted,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace lists every run, deletion and pass end in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Passes holds the engine results of every pass, one per step.
	Passes [][]*engine.Result `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Step returns the result of component in pass n (from 1), or nil.
func (r *Result) Step(n int, component string) *engine.Result {
	if n < 1 || n > len(r.Passes) {
		return nil
	}
	for _, res := range r.Passes[n-1] {
		if res.Component == component {
			return res
		}
	}
	return nil
}

// addPass records the engine results of pass n in the trace.
func (r *Result) addPass(n int, results []*engine.Result) {
	r.Passes = append(r.Passes, results)
	for _, res := range results {
		for _, run := range res.Runs {
			r.Trace = append(r.Trace, TraceEvent{
				Type:       EventRun,
				Pass:       n,
				Component:  res.Component,
				Ordinal:    run.Ordinal,
				Transition: string(run.Transition),
				Previous:   int64(run.Previous.ID),
				Output:     int64(run.Output.ID),
			})
		}
		for _, h := range res.Deleted {
			r.Trace = append(r.Trace, TraceEvent{
				Type:      EventDelete,
				Pass:      n,
				Component: res.Component,
				Entity:    int64(h.ID),
			})
		}
		diags := make([]string, len(res.Diagnostics))
		for i, d := range res.Diagnostics {
			diags[i] = d.Text()
		}
		r.Trace = append(r.Trace, TraceEvent{
			Type:        EventPass,
			Pass:        n,
			Component:   res.Component,
			Status:      res.Status.String(),
			Aborted:     res.Aborted,
			Diagnostics: diags,
		})
	}
}
