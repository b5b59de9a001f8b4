// Package failure implements commit-time failure resolution.
//
// When a document commit reports failure records, a Session decides per
// attempt whether to roll back, resolve some records and retry the commit,
// or continue after reporting what is left. Sessions are scoped to one
// Commit call: the per-kind guard they keep is what bounds the retry loop.
package failure

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/recon/internal/value"
)

// Severity orders failure records. Warning < Error < DocumentCorruption.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityError
	SeverityCorruption
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCorruption:
		return "corruption"
	default:
		return "none"
	}
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "corruption":
		return SeverityCorruption, nil
	case "none", "":
		return SeverityNone, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", s)
}

// Record is one failure reported by the document during a commit attempt.
type Record struct {
	// Kind is the failure definition id, e.g. "duplicate-name".
	Kind string

	Severity    Severity
	Description string

	// Entities are the failing entity ids in report order.
	Entities []value.EntityID

	// Interactive marks failures the host would normally ask the user about.
	Interactive bool
}

// Key identifies a record across commit attempts.
func (r *Record) Key() string {
	var b strings.Builder
	b.WriteString(r.Kind)
	for _, id := range r.Entities {
		fmt.Fprintf(&b, ":%d", id)
	}
	return b.String()
}

// Accessor is the view of pending failures a document hands to the
// preprocessor during one commit attempt.
type Accessor interface {
	// TransactionName names the transaction being committed.
	TransactionName() string

	// BeingCommitted is false when failures are processed during rollback.
	BeingCommitted() bool

	// Severity is the highest severity among pending records.
	Severity() Severity

	// Records returns the pending records in report order.
	Records() []*Record

	// ResolutionPermitted reports whether the document can resolve r.
	ResolutionPermitted(r *Record) bool

	// AttemptedResolutions returns how many resolutions were already applied
	// to r in the current commit.
	AttemptedResolutions(r *Record) int

	// Resolve applies the default resolution for r.
	Resolve(ctx context.Context, r *Record) error

	// DeleteWarnings discards every pending warning.
	DeleteWarnings()
}

// Decision is the outcome of preprocessing one commit attempt.
type Decision int

const (
	// Continue lets the document finish the commit with what is left.
	Continue Decision = iota
	// RetryCommit asks for another commit attempt after resolutions.
	RetryCommit
	// RollBack abandons the commit.
	RollBack
)

func (d Decision) String() string {
	switch d {
	case RetryCommit:
		return "retry"
	case RollBack:
		return "rollback"
	default:
		return "continue"
	}
}

// Preprocessor decides how to proceed with a commit attempt.
type Preprocessor interface {
	Preprocess(ctx context.Context, acc Accessor) Decision
}
