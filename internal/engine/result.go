package engine

import (
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/txn"
	"github.com/roach88/recon/internal/value"
)

// Transition is what one run did to its ordinal's entity.
type Transition string

const (
	// Insert: no previous entity, a new one was produced.
	Insert Transition = "insert"
	// Update: the previous entity was kept and returned.
	Update Transition = "update"
	// Replace: a new entity was produced and the previous one deleted.
	Replace Transition = "replace"
	// Remove: no output; the previous entity was deleted.
	Remove Transition = "delete"
	// Empty: no previous entity and no output.
	Empty Transition = "empty"
	// Keep: the previous entity is no longer pinned by the engine and was
	// passed through untouched.
	Keep Transition = "keep"
	// Abort: the run failed hard and stopped the pass.
	Abort Transition = "abort"
)

// RunResult is the outcome of one run.
type RunResult struct {
	Ordinal    int
	Transition Transition
	Previous   Handle
	Output     Handle
}

// Diagnostic is a message produced by a pass.
type Diagnostic struct {
	failure.Diagnostic

	// Seq orders diagnostics across passes.
	Seq int64

	// Solve is the id of the Solve or Solution that produced it.
	Solve     string
	Component string

	// Ordinal is the run the diagnostic belongs to, or -1 for the pass.
	Ordinal int
}

// Result is the outcome of one component pass.
type Result struct {
	Solve     string
	Component string
	Document  string

	Runs []RunResult

	// Deleted lists previous outputs past the current run count that were
	// removed before commit.
	Deleted []Handle

	// Substitutions maps replaced entities to their replacements.
	Substitutions txn.Substitutions

	Diagnostics []Diagnostic
	Status      txn.Status
	Aborted     bool

	// Failed is set when the transaction rolled back. The run outputs
	// never reached the document.
	Failed bool
}

// Outputs returns the output column, one handle per run. Absent outputs
// are zero handles. A failed pass has no outputs.
func (r *Result) Outputs() []Handle {
	if r.Failed {
		return nil
	}
	out := make([]Handle, len(r.Runs))
	for i, run := range r.Runs {
		out[i] = run.Output
	}
	return out
}

// OutputIDs returns the entity ids of Outputs, 0 for absent outputs.
func (r *Result) OutputIDs() []value.EntityID {
	outs := r.Outputs()
	ids := make([]value.EntityID, len(outs))
	for i, h := range outs {
		ids[i] = h.ID
	}
	return ids
}

// HasErrors reports whether any diagnostic is an error.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Level == failure.LevelError {
			return true
		}
	}
	return false
}
