package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == EventRun {
				fmt.Fprintf(&buf, "  [%d] pass %d %s #%d %s %d -> %d\n",
					i+1, event.Pass, event.Component, event.Ordinal, event.Transition, event.Previous, event.Output)
			}
		}
	}
	return buf.String()
}

// stepOf returns the result of a.Component in pass n or an assertion error.
func stepOf(result *Result, a Assertion, n int) (*engine.Result, error) {
	res := result.Step(n, a.Component)
	if res == nil {
		return nil, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("component %s ran in pass %d", a.Component, n),
			Actual:   "no such pass result",
		}
	}
	return res, nil
}

// assertSameIdentity checks that two passes left the same entities, by id
// and unique id, at the selected ordinals.
func assertSameIdentity(result *Result, a Assertion) error {
	first, err := stepOf(result, a, a.Passes[0])
	if err != nil {
		return err
	}
	second, err := stepOf(result, a, a.Passes[1])
	if err != nil {
		return err
	}

	left, right := first.Outputs(), second.Outputs()
	ordinals := a.Ordinals
	if ordinals == nil {
		for i := 0; i < min(len(left), len(right)); i++ {
			ordinals = append(ordinals, i)
		}
	}

	for _, i := range ordinals {
		if i < 0 || i >= len(left) || i >= len(right) {
			return &AssertionError{
				Type:     AssertSameIdentity,
				Expected: fmt.Sprintf("run %d in passes %d and %d", i, a.Passes[0], a.Passes[1]),
				Actual:   fmt.Sprintf("passes have %d and %d outputs", len(left), len(right)),
				Trace:    result.Trace,
			}
		}
		if left[i].IsZero() || left[i] != right[i] {
			return &AssertionError{
				Type:     AssertSameIdentity,
				Expected: fmt.Sprintf("run %d keeps entity %d (%s)", i, left[i].ID, left[i].UniqueID),
				Actual:   fmt.Sprintf("entity %d (%s)", right[i].ID, right[i].UniqueID),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertDeleted counts the previous outputs a pass removed: leftovers past
// the run count, and the previous entity of delete and replace runs.
func assertDeleted(result *Result, a Assertion) error {
	res, err := stepOf(result, a, a.Pass)
	if err != nil {
		return err
	}
	count := len(res.Deleted)
	for _, run := range res.Runs {
		if run.Transition == engine.Remove || run.Transition == engine.Replace {
			count++
		}
	}
	return countError(result, a, count)
}

// assertCreated counts the entities a pass created.
func assertCreated(result *Result, a Assertion) error {
	res, err := stepOf(result, a, a.Pass)
	if err != nil {
		return err
	}
	count := 0
	for _, run := range res.Runs {
		if run.Transition == engine.Insert || run.Transition == engine.Replace {
			count++
		}
	}
	return countError(result, a, count)
}

func countError(result *Result, a Assertion, count int) error {
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d entities in pass %d of %s", a.Count, a.Pass, a.Component),
		Actual:   fmt.Sprintf("%d entities", count),
		Trace:    result.Trace,
	}
}

// assertDiagnostic looks for a diagnostic whose text contains a.Contains,
// optionally restricted to a pass, a component and a level.
func assertDiagnostic(result *Result, a Assertion) error {
	for n, pass := range result.Passes {
		if a.Pass != 0 && a.Pass != n+1 {
			continue
		}
		for _, res := range pass {
			if a.Component != "" && res.Component != a.Component {
				continue
			}
			for _, d := range res.Diagnostics {
				if a.Level != "" && d.Level.String() != a.Level {
					continue
				}
				if strings.Contains(d.Text(), a.Contains) {
					return nil
				}
			}
		}
	}
	return &AssertionError{
		Type:     AssertDiagnostic,
		Expected: fmt.Sprintf("diagnostic containing %q", a.Contains),
		Actual:   "not found",
	}
}

// assertEntityCount counts the entities of the final document.
func assertEntityCount(ctx context.Context, doc document.Reader, a Assertion) error {
	entities, err := doc.List(ctx, func(e *document.Entity) bool {
		return a.Kind == "" || string(e.Kind) == a.Kind
	})
	if err != nil {
		return fmt.Errorf("entity_count: %w", err)
	}
	if len(entities) != a.Count {
		what := "entities"
		if a.Kind != "" {
			what = a.Kind + " entities"
		}
		return &AssertionError{
			Type:     AssertEntityCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", len(entities), what),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx      context.Context
	Document document.Reader
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the document for entity_count assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertSameIdentity:
			err = assertSameIdentity(result, assertion)
		case AssertDeleted:
			err = assertDeleted(result, assertion)
		case AssertCreated:
			err = assertCreated(result, assertion)
		case AssertDiagnostic:
			err = assertDiagnostic(result, assertion)
		case AssertEntityCount:
			if actx == nil || actx.Document == nil {
				err = fmt.Errorf("assertion[%d]: entity_count requires a document", i)
			} else {
				err = assertEntityCount(actx.Ctx, actx.Document, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
