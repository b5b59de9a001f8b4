package harness

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/value"
)

func handle(id int64) engine.Handle {
	return engine.Handle{
		Document: "doc",
		ID:       value.EntityID(id),
		UniqueID: uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(id)}),
	}
}

func run(t engine.Transition, prev, out int64) engine.RunResult {
	rr := engine.RunResult{Transition: t}
	if prev != 0 {
		rr.Previous = handle(prev)
	}
	if out != 0 {
		rr.Output = handle(out)
	}
	return rr
}

// twoPasses builds a result of component "Levels" over two passes.
func twoPasses(first, second *engine.Result) *Result {
	first.Component, second.Component = "Levels", "Levels"
	r := NewResult()
	r.addPass(1, []*engine.Result{first})
	r.addPass(2, []*engine.Result{second})
	return r
}

func TestAssertSameIdentity(t *testing.T) {
	result := twoPasses(
		&engine.Result{Runs: []engine.RunResult{run(engine.Insert, 0, 1), run(engine.Insert, 0, 2)}},
		&engine.Result{Runs: []engine.RunResult{run(engine.Update, 1, 1), run(engine.Replace, 2, 3)}},
	)

	ok := Assertion{Type: AssertSameIdentity, Component: "Levels", Passes: []int{1, 2}, Ordinals: []int{0}}
	assert.NoError(t, assertSameIdentity(result, ok))

	all := Assertion{Type: AssertSameIdentity, Component: "Levels", Passes: []int{1, 2}}
	err := assertSameIdentity(result, all)
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertSameIdentity, aerr.Type)
	assert.Contains(t, aerr.Expected, "run 1 keeps entity 2")
	assert.Contains(t, aerr.Actual, "entity 3")
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertSameIdentity_OrdinalOutOfRange(t *testing.T) {
	result := twoPasses(
		&engine.Result{Runs: []engine.RunResult{run(engine.Insert, 0, 1)}},
		&engine.Result{Runs: []engine.RunResult{run(engine.Update, 1, 1)}},
	)
	a := Assertion{Type: AssertSameIdentity, Component: "Levels", Passes: []int{1, 2}, Ordinals: []int{1}}
	err := assertSameIdentity(result, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passes have 1 and 1 outputs")
}

func TestAssertSameIdentity_EmptyRunFails(t *testing.T) {
	result := twoPasses(
		&engine.Result{Runs: []engine.RunResult{run(engine.Empty, 0, 0)}},
		&engine.Result{Runs: []engine.RunResult{run(engine.Empty, 0, 0)}},
	)
	a := Assertion{Type: AssertSameIdentity, Component: "Levels", Passes: []int{1, 2}}
	assert.Error(t, assertSameIdentity(result, a), "two empty runs share no entity")
}

func TestAssertSameIdentity_MissingComponent(t *testing.T) {
	result := twoPasses(&engine.Result{}, &engine.Result{})
	a := Assertion{Type: AssertSameIdentity, Component: "Grids", Passes: []int{1, 2}}
	err := assertSameIdentity(result, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "component Grids ran in pass 1")
}

func TestAssertCreatedAndDeleted(t *testing.T) {
	result := twoPasses(
		&engine.Result{Runs: []engine.RunResult{run(engine.Insert, 0, 1), run(engine.Insert, 0, 2), run(engine.Insert, 0, 3)}},
		&engine.Result{
			Runs: []engine.RunResult{
				run(engine.Update, 1, 1),
				run(engine.Replace, 2, 4),
			},
			Deleted: []engine.Handle{handle(3)},
		},
	)

	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"created in first pass", Assertion{Type: AssertCreated, Component: "Levels", Pass: 1, Count: 3}, ""},
		{"replace creates", Assertion{Type: AssertCreated, Component: "Levels", Pass: 2, Count: 1}, ""},
		{"replace and leftover delete", Assertion{Type: AssertDeleted, Component: "Levels", Pass: 2, Count: 2}, ""},
		{"nothing deleted first", Assertion{Type: AssertDeleted, Component: "Levels", Pass: 1, Count: 0}, ""},
		{"wrong count", Assertion{Type: AssertDeleted, Component: "Levels", Pass: 2, Count: 5}, "Actual: 2 entities"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.a.Type == AssertCreated {
				err = assertCreated(result, tt.a)
			} else {
				err = assertDeleted(result, tt.a)
			}
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertDiagnostic(t *testing.T) {
	warn := engine.Diagnostic{Diagnostic: failure.Diagnostic{Level: failure.LevelWarning, Message: "A parameter called \"Phase\" is already in the document"}}
	fixed := engine.Diagnostic{Diagnostic: failure.Diagnostic{
		Level:    failure.LevelError,
		Message:  "✔ Duplicate level name \"Level\"",
		Entities: []value.EntityID{3, 4},
	}}
	result := twoPasses(
		&engine.Result{Diagnostics: []engine.Diagnostic{fixed}},
		&engine.Result{Diagnostics: []engine.Diagnostic{warn}},
	)

	assert.NoError(t, assertDiagnostic(result, Assertion{Type: AssertDiagnostic, Contains: "{3, 4}"}))
	assert.NoError(t, assertDiagnostic(result, Assertion{Type: AssertDiagnostic, Pass: 2, Contains: "already", Level: "warning"}))
	assert.Error(t, assertDiagnostic(result, Assertion{Type: AssertDiagnostic, Pass: 1, Contains: "already"}))
	assert.Error(t, assertDiagnostic(result, Assertion{Type: AssertDiagnostic, Contains: "Duplicate", Level: "warning"}))
	assert.Error(t, assertDiagnostic(result, Assertion{Type: AssertDiagnostic, Component: "Tags", Contains: "Duplicate"}))
}

func TestAssertEntityCount(t *testing.T) {
	ctx := context.Background()
	doc := document.NewMemoryModel("doc")
	tx, err := doc.Begin(ctx, "seed")
	require.NoError(t, err)
	for _, e := range []*document.Entity{
		{Kind: document.KindLevel, Name: "L1"},
		{Kind: document.KindLevel, Name: "L2"},
		{Kind: document.KindGrid, Name: "A"},
	} {
		_, err := tx.Create(ctx, e)
		require.NoError(t, err)
	}
	outcome, err := doc.CommitAttempt(ctx, tx, document.CommitOptions{})
	require.NoError(t, err)
	require.Equal(t, document.Committed, outcome)

	assert.NoError(t, assertEntityCount(ctx, doc, Assertion{Type: AssertEntityCount, Kind: "level", Count: 2}))
	assert.NoError(t, assertEntityCount(ctx, doc, Assertion{Type: AssertEntityCount, Count: 3}))

	err = assertEntityCount(ctx, doc, Assertion{Type: AssertEntityCount, Kind: "grid", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: 1 grid entities")
}

func TestEvaluateAssertions(t *testing.T) {
	result := twoPasses(
		&engine.Result{Runs: []engine.RunResult{run(engine.Insert, 0, 1)}},
		&engine.Result{Runs: []engine.RunResult{run(engine.Update, 1, 1)}},
	)
	assertions := []Assertion{
		{Type: AssertSameIdentity, Component: "Levels", Passes: []int{1, 2}},
		{Type: AssertCreated, Component: "Levels", Pass: 2, Count: 1},
		{Type: AssertEntityCount, Count: 0},
		{Type: "final_state"},
	}

	errs := EvaluateAssertions(result, assertions, nil)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Assertion failed: created")
	assert.Contains(t, errs[1], "entity_count requires a document")
	assert.Contains(t, errs[2], `unknown assertion type "final_state"`)

	actx := &AssertionContext{Ctx: context.Background(), Document: document.NewMemoryModel("doc")}
	errs = EvaluateAssertions(result, assertions[2:3], actx)
	assert.Empty(t, errs)
}
