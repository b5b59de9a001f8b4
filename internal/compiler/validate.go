package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/recon/internal/engine"
)

// Validation error codes (E100-E199)
const (
	// Component errors (E101-E109)
	ErrOperationEmpty   = "E101" // operation is required
	ErrUnknownOperation = "E102" // operation not registered
	ErrInvalidStrategy  = "E103" // strategy is not per-component or per-solution
	ErrDuplicateName    = "E104" // component declared twice
	ErrInvalidFailure   = "E105" // malformed or unknown fixable failure kind
	ErrDuplicateFailure = "E106" // failure kind listed twice
	ErrInvalidAttribute = "E107" // empty or repeated copy attribute
	ErrEmptyTransaction = "E108" // transaction name is blank

	// Dependency errors (E110-E119)
	ErrUnknownDependency = "E110" // after names an undeclared component
	ErrDependencyCycle   = "E111" // after declarations form a cycle
)

// ValidationError represents a component validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var failureKindPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Validate checks defs against the registered operations. Returns all
// errors found (does not fail-fast).
//
// failureKinds, when non-nil, is the set of failure kinds a fixable list
// may name; nil accepts any well-formed kind.
func Validate(defs []Definition, registry *engine.Registry, failureKinds []string) []ValidationError {
	var errs []ValidationError

	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if seen[d.Name] {
			errs = append(errs, ValidationError{
				Field:   d.Name,
				Message: fmt.Sprintf("component %s is declared more than once", d.Name),
				Code:    ErrDuplicateName,
				Line:    d.Pos.Line(),
			})
			continue
		}
		seen[d.Name] = true
		errs = append(errs, validateDefinition(d, registry, failureKinds)...)
	}

	for _, d := range defs {
		for _, dep := range d.After {
			if !seen[dep] {
				errs = append(errs, ValidationError{
					Field:   d.Name + ".after",
					Message: fmt.Sprintf("unknown component %q", dep),
					Code:    ErrUnknownDependency,
					Line:    d.Pos.Line(),
				})
			}
		}
	}

	for _, c := range AnalyzeCycles(defs) {
		errs = append(errs, ValidationError{
			Field:   c.Path[0] + ".after",
			Message: c.Message,
			Code:    ErrDependencyCycle,
		})
	}
	return errs
}

func validateDefinition(d Definition, registry *engine.Registry, failureKinds []string) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   d.Name + "." + field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    d.Pos.Line(),
		})
	}

	switch {
	case strings.TrimSpace(d.Operation) == "":
		add("operation", ErrOperationEmpty, "operation is required and must be non-empty")
	case registry != nil:
		if _, _, err := registry.Lookup(d.Operation); err != nil {
			add("operation", ErrUnknownOperation, "unknown operation %q", d.Operation)
		}
	}

	if _, err := engine.ParseStrategy(d.Strategy); err != nil {
		add("strategy", ErrInvalidStrategy, "%v", err)
	}

	if d.Transaction != "" && strings.TrimSpace(d.Transaction) == "" {
		add("transaction", ErrEmptyTransaction, "transaction name must not be blank")
	}

	kinds := make(map[string]bool, len(d.Fixable))
	for _, kind := range d.Fixable {
		switch {
		case !failureKindPattern.MatchString(kind):
			add("fixable", ErrInvalidFailure, "invalid failure kind %q", kind)
		case failureKinds != nil && !slices.Contains(failureKinds, kind):
			add("fixable", ErrInvalidFailure, "unknown failure kind %q", kind)
		case kinds[kind]:
			add("fixable", ErrDuplicateFailure, "failure kind %q is listed more than once", kind)
		}
		kinds[kind] = true
	}

	attrs := make(map[string]bool, len(d.CopyAttributes))
	for _, attr := range d.CopyAttributes {
		switch {
		case strings.TrimSpace(attr) == "":
			add("copy_attributes", ErrInvalidAttribute, "attribute name must be non-empty")
		case attrs[attr]:
			add("copy_attributes", ErrInvalidAttribute, "attribute %q is listed more than once", attr)
		}
		attrs[attr] = true
	}
	return errs
}
