package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/txn"
	"github.com/roach88/recon/internal/value"
)

// gridOp creates or renames a grid. The Mode input drives failure paths:
// "replace" always creates a new grid, "warn" and "hard" fail, "panic"
// dereferences a missing current grid, "none" returns no output.
type gridOp struct {
	calls int
}

func (g *gridOp) Descriptor() signature.Descriptor {
	return signature.Descriptor{
		Operation: "GridByName",
		Slots: []signature.Slot{
			{Name: "document", Type: signature.DocumentType()},
			{Name: "grid", Type: signature.Ref(signature.Entity(document.KindGrid))},
			{Name: "name", Type: signature.Of(value.KindText)},
			{Name: "mode", Type: signature.Optional(signature.Of(value.KindText))},
			{Name: "host", Type: signature.Optional(signature.Entity(document.KindGrid))},
		},
	}
}

func (g *gridOp) Reconstruct(ctx context.Context, call *Call) (*document.Entity, error) {
	g.calls++
	name, _ := call.Args.Text("Name")
	mode, _ := call.Args.Text("Mode")
	switch mode {
	case "warn":
		return nil, fault.Warning("grid %q skipped", name)
	case "hard":
		return nil, errors.New("boom")
	case "none":
		return nil, nil
	case "panic":
		_ = call.Current.Name
	}
	if call.Current != nil && mode != "replace" {
		call.Current.Name = name
		return call.Txn.Update(ctx, call.Current)
	}
	return call.Txn.Create(ctx, &document.Entity{Kind: document.KindGrid, Name: name})
}

var gridComponent = Component{Name: "grids", Operation: "GridByName"}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *gridOp) {
	t.Helper()
	op := &gridOp{}
	reg := NewRegistry()
	require.NoError(t, reg.Register(op))
	opts = append([]Option{WithIDGenerator(NewSequenceGenerator("solve"))}, opts...)
	return New(reg, opts...), op
}

func rows(names ...string) []signature.Source {
	out := make([]signature.Source, len(names))
	for i, n := range names {
		out[i] = signature.MapSource{"Name": value.Text(n)}
	}
	return out
}

func row(name, mode string) signature.Source {
	return signature.MapSource{"Name": value.Text(name), "Mode": value.Text(mode)}
}

func solve(t *testing.T, e *Engine, doc document.Document, comp Component, in []signature.Source) *Result {
	t.Helper()
	res, err := e.Solve(context.Background(), Request{Component: comp, Document: doc, Rows: in})
	require.NoError(t, err)
	require.Equal(t, txn.Committed, res.Status)
	return res
}

func transitions(res *Result) []Transition {
	out := make([]Transition, len(res.Runs))
	for i, r := range res.Runs {
		out[i] = r.Transition
	}
	return out
}

func entityCount(t *testing.T, doc document.Reader) int {
	t.Helper()
	all, err := doc.List(context.Background(), nil)
	require.NoError(t, err)
	return len(all)
}

func TestIdempotentRerunKeepsIdentity(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	first := solve(t, e, doc, gridComponent, rows("A", "B", "C"))
	assert.Equal(t, []Transition{Insert, Insert, Insert}, transitions(first))

	second := solve(t, e, doc, gridComponent, rows("A", "B", "C"))
	assert.Equal(t, []Transition{Update, Update, Update}, transitions(second))
	assert.Equal(t, first.OutputIDs(), second.OutputIDs())
	assert.Equal(t, first.Outputs(), second.Outputs(), "unique ids unchanged")
	assert.Empty(t, second.Deleted)
	assert.Equal(t, 3, entityCount(t, doc))

	for _, h := range second.Outputs() {
		ent, err := doc.Get(context.Background(), h.ID)
		require.NoError(t, err)
		assert.True(t, ent.Pinned, "outputs are pinned")
	}

	st, err := e.States().LoadState(context.Background(), "grids")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Generation)
	assert.Equal(t, second.Outputs(), st.Handles)
}

func TestShrinkDeletesTrailingOutputs(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	first := solve(t, e, doc, gridComponent, rows("A", "B", "C"))
	second := solve(t, e, doc, gridComponent, rows("A"))

	assert.Equal(t, first.OutputIDs()[:1], second.OutputIDs())
	assert.Equal(t, first.Outputs()[1:], second.Deleted)
	assert.Equal(t, 1, entityCount(t, doc))
}

func TestShrinkToZeroDeletesEverything(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	solve(t, e, doc, gridComponent, rows("A", "B"))
	second := solve(t, e, doc, gridComponent, nil)

	assert.Len(t, second.Deleted, 2)
	assert.Zero(t, entityCount(t, doc))
}

func TestGrowCreatesOnlyNewOutputs(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	first := solve(t, e, doc, gridComponent, rows("A", "B"))
	second := solve(t, e, doc, gridComponent, rows("A", "B", "C", "D"))

	assert.Equal(t, []Transition{Update, Update, Insert, Insert}, transitions(second))
	assert.Equal(t, first.OutputIDs(), second.OutputIDs()[:2])
	assert.Equal(t, 4, entityCount(t, doc))
}

func TestReplaceCopiesAttributes(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")
	comp := gridComponent
	comp.CopyAttributes = []string{"comment"}

	first := solve(t, e, doc, comp, rows("A"))
	oldID := first.OutputIDs()[0]

	// a user annotates the output between passes
	tx, err := doc.Begin(ctx, "annotate")
	require.NoError(t, err)
	ent, err := tx.Get(ctx, oldID)
	require.NoError(t, err)
	ent.SetAttr("comment", value.Text("checked"))
	_, err = tx.Update(ctx, ent)
	require.NoError(t, err)
	out, err := doc.CommitAttempt(ctx, tx, document.CommitOptions{})
	require.NoError(t, err)
	require.Equal(t, document.Committed, out)

	second := solve(t, e, doc, comp, []signature.Source{row("A", "replace")})
	require.Equal(t, []Transition{Replace}, transitions(second))
	newID := second.OutputIDs()[0]
	assert.NotEqual(t, oldID, newID)
	assert.Equal(t, txn.Substitutions{oldID: newID}, second.Substitutions)

	_, err = doc.Get(ctx, oldID)
	assert.True(t, fault.Is(err, fault.CodeNotFound), "predecessor deleted")

	replacement, err := doc.Get(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, value.Text("checked"), replacement.Attr("comment"))
	assert.True(t, replacement.Pinned)
}

func TestSoftFailureIsContained(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	res := solve(t, e, doc, gridComponent, []signature.Source{row("A", ""), row("B", "warn"), row("C", "")})

	assert.Equal(t, []Transition{Insert, Empty, Insert}, transitions(res))
	ids := res.OutputIDs()
	assert.NotZero(t, ids[0])
	assert.Zero(t, ids[1])
	assert.NotZero(t, ids[2])

	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, failure.LevelWarning, d.Level)
	assert.Equal(t, `grid "B" skipped`, d.Message)
	assert.Equal(t, 1, d.Ordinal)
	assert.Equal(t, string(fault.CodeValidationWarning), d.Kind)
}

func TestSoftFailureOrphansPreviousOutput(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	first := solve(t, e, doc, gridComponent, rows("A", "B"))
	second := solve(t, e, doc, gridComponent, []signature.Source{row("A", ""), row("B", "warn")})

	assert.Equal(t, []Transition{Update, Remove}, transitions(second))
	_, err := doc.Get(context.Background(), first.OutputIDs()[1])
	assert.True(t, fault.Is(err, fault.CodeNotFound))
}

func TestArgumentFailureIsContained(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	in := []signature.Source{
		signature.MapSource{"Name": value.Text("A")},
		signature.MapSource{},
		signature.MapSource{"Name": value.Int(3)},
		signature.MapSource{"Name": value.Text("D")},
	}
	res := solve(t, e, doc, gridComponent, in)

	assert.Equal(t, []Transition{Insert, Empty, Empty, Insert}, transitions(res))
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, failure.LevelError, res.Diagnostics[0].Level)
	assert.Equal(t, "Name: input parameter is not connected", res.Diagnostics[0].Message)
	assert.Equal(t, string(fault.CodeTypeMismatch), res.Diagnostics[1].Kind)
	assert.Less(t, res.Diagnostics[0].Seq, res.Diagnostics[1].Seq)
	assert.True(t, res.HasErrors())
}

func TestNullRequiredInputProducesNothing(t *testing.T) {
	e, op := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	solve(t, e, doc, gridComponent, rows("A"))
	calls := op.calls

	res := solve(t, e, doc, gridComponent, []signature.Source{signature.MapSource{"Name": value.Null{}}})
	assert.Equal(t, []Transition{Remove}, transitions(res))
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, calls, op.calls, "operation not invoked")
	assert.Zero(t, entityCount(t, doc))
}

func TestHardFailureAbortsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	e, op := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	res, err := e.Solve(ctx, Request{
		Component: gridComponent,
		Document:  doc,
		Rows:      []signature.Source{row("A", ""), row("B", "hard"), row("C", "")},
	})
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	require.NotNil(t, res)

	assert.Equal(t, 2, op.calls, "no runs after the hard failure")
	assert.Equal(t, []Transition{Insert, Abort}, transitions(res))
	assert.True(t, res.Aborted)
	assert.True(t, res.Failed)
	assert.Equal(t, txn.RolledBack, res.Status)
	assert.Nil(t, res.Outputs())
	assert.Zero(t, entityCount(t, doc))

	var messages []string
	for _, d := range res.Diagnostics {
		messages = append(messages, d.Message)
	}
	assert.Equal(t, []string{"boom", "Transaction RolledBack and aborted."}, messages)

	st, err := e.States().LoadState(ctx, "grids")
	require.NoError(t, err)
	assert.Zero(t, st.Generation, "state untouched")

	_, err = doc.Begin(ctx, "after")
	assert.NoError(t, err, "transaction reached a terminal state")
}

func TestOperationPanicIsHard(t *testing.T) {
	ctx := context.Background()
	e, op := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	var res *Result
	var err error
	require.NotPanics(t, func() {
		res, err = e.Solve(ctx, Request{
			Component: gridComponent,
			Document:  doc,
			Rows:      []signature.Source{row("A", ""), row("B", "panic"), row("C", "")},
		})
	})
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	require.NotNil(t, res)

	assert.Equal(t, 2, op.calls)
	assert.Equal(t, []Transition{Insert, Abort}, transitions(res))
	assert.Equal(t, txn.RolledBack, res.Status)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, failure.LevelError, res.Diagnostics[0].Level)
	assert.Contains(t, res.Diagnostics[0].Message, "operation GridByName panicked")
	assert.Zero(t, entityCount(t, doc))

	_, err = doc.Begin(ctx, "after")
	assert.NoError(t, err, "transaction reached a terminal state")
}

func TestSolutionOperationPanicReleasesDocument(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	sol := e.NewSolution("Solve", nil)
	var res *Result
	var err error
	require.NotPanics(t, func() {
		res, err = sol.Solve(ctx, Request{Component: gridComponent, Document: doc, Rows: []signature.Source{row("A", "panic")}})
	})
	require.Error(t, err)
	require.NotNil(t, res)

	require.NoError(t, sol.Commit(ctx))
	assert.True(t, res.Failed)
	assert.Equal(t, txn.RolledBack, res.Status)

	_, err = doc.Begin(ctx, "next")
	assert.NoError(t, err)
}

func TestIncompatibleDocumentIsHard(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	res, err := e.Solve(context.Background(), Request{
		Component: gridComponent,
		Document:  doc,
		Rows: []signature.Source{signature.MapSource{
			"Name": value.Text("A"),
			"Host": value.Ref{Document: "other", ID: 1},
		}},
	})
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.True(t, fault.Is(err, fault.CodeIncompatibleDocument))
	assert.Equal(t, "Host: entity 1 belongs to document \"other\", not \"doc\"", res.Diagnostics[0].Message)
}

func TestMissingInputEntityIsArgumentFailure(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	res := solve(t, e, doc, gridComponent, []signature.Source{signature.MapSource{
		"Name": value.Text("A"),
		"Host": value.Ref{Document: "doc", ID: 42},
	}})
	assert.Equal(t, []Transition{Empty}, transitions(res))
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, string(fault.CodeNotFound), res.Diagnostics[0].Kind)
	assert.Equal(t, "Host: entity 42 does not exist", res.Diagnostics[0].Message)
}

func TestUnpinnedEntityPassesThrough(t *testing.T) {
	ctx := context.Background()
	e, op := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	first := solve(t, e, doc, gridComponent, rows("A", "B"))

	tx, err := doc.Begin(ctx, "unpin")
	require.NoError(t, err)
	ent, err := tx.Get(ctx, first.OutputIDs()[0])
	require.NoError(t, err)
	ent.Pinned = false
	ent, err = tx.Update(ctx, ent)
	require.NoError(t, err)
	_, err = doc.CommitAttempt(ctx, tx, document.CommitOptions{})
	require.NoError(t, err)

	calls := op.calls
	second := solve(t, e, doc, gridComponent, rows("X", "Y"))
	assert.Equal(t, []Transition{Keep, Update}, transitions(second))
	assert.Equal(t, calls+1, op.calls)

	kept, err := doc.Get(ctx, ent.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", kept.Name)
	assert.Equal(t, ent.Generation, kept.Generation, "untouched")
}

func TestDeletedOutputIsRecreated(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	first := solve(t, e, doc, gridComponent, rows("A"))

	tx, err := doc.Begin(ctx, "delete")
	require.NoError(t, err)
	_, err = tx.Delete(ctx, first.OutputIDs()[0])
	require.NoError(t, err)
	_, err = doc.CommitAttempt(ctx, tx, document.CommitOptions{})
	require.NoError(t, err)

	second := solve(t, e, doc, gridComponent, rows("A"))
	assert.Equal(t, []Transition{Insert}, transitions(second))
	assert.Zero(t, second.Runs[0].Previous.ID)
	assert.NotEqual(t, first.OutputIDs(), second.OutputIDs())
}

func TestStaleHandleResolvesToNothing(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	first := solve(t, e, doc, gridComponent, rows("A"))
	h := first.Outputs()[0]
	h.UniqueID[0] ^= 0xff
	require.NoError(t, e.States().SaveState(ctx, "grids", &RunState{Generation: 1, Handles: []Handle{h}}))

	second := solve(t, e, doc, gridComponent, rows("A"))
	assert.Equal(t, []Transition{Insert}, transitions(second))
	assert.Equal(t, 2, entityCount(t, doc), "stale entity is not ours to delete")
}

func TestClaimedOrphanIsNotDeleted(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	first := solve(t, e, doc, gridComponent, rows("A"))
	h := first.Outputs()[0]
	// both ordinals point at the same entity
	require.NoError(t, e.States().SaveState(ctx, "grids", &RunState{Generation: 1, Handles: []Handle{h, h}}))

	second := solve(t, e, doc, gridComponent, []signature.Source{row("A", ""), row("B", "replace")})
	assert.Equal(t, []Transition{Update, Replace}, transitions(second))

	_, err := doc.Get(ctx, h.ID)
	assert.NoError(t, err, "run 0 claimed it; run 1 must not delete it")
	assert.Equal(t, 2, entityCount(t, doc))
}

func TestCommitResolvesDuplicateNames(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	res := solve(t, e, doc, gridComponent, rows("A", "A"))
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, `✔ Duplicate grid name "A" {1, 2} `, res.Diagnostics[0].Text())
	assert.Equal(t, -1, res.Diagnostics[0].Ordinal)

	second, err := doc.Get(context.Background(), res.OutputIDs()[1])
	require.NoError(t, err)
	assert.Equal(t, "A (2)", second.Name)
}

func TestStartFailureIsReported(t *testing.T) {
	e, op := newTestEngine(t)
	doc := document.NewMemoryModel("doc")
	doc.Lock("other writer")

	res, err := e.Solve(context.Background(), Request{Component: gridComponent, Document: doc, Rows: rows("A")})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeStartFailure))
	assert.Zero(t, op.calls)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, failure.LevelError, res.Diagnostics[0].Level)
}

func TestUnknownOperation(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Solve(context.Background(), Request{
		Component: Component{Operation: "Nope"},
		Document:  document.NewMemoryModel("doc"),
	})
	var unknown *UnknownOperationError
	assert.ErrorAs(t, err, &unknown)
}

func TestRunQuotaAbortsPass(t *testing.T) {
	e, _ := newTestEngine(t, WithMaxRuns(2))
	doc := document.NewMemoryModel("doc")

	_, err := e.Solve(context.Background(), Request{Component: gridComponent, Document: doc, Rows: rows("A", "B", "C")})
	require.Error(t, err)
	assert.True(t, IsRunsExceeded(err))
	assert.Zero(t, entityCount(t, doc))
}

type recordingSink struct {
	diags []Diagnostic
}

func (s *recordingSink) RecordDiagnostics(_ context.Context, diags []Diagnostic) error {
	s.diags = append(s.diags, diags...)
	return nil
}

type recordingObserver struct {
	runs   map[Transition]int
	passes []txn.Status
}

func (o *recordingObserver) RunFinished(_ string, t Transition) {
	if o.runs == nil {
		o.runs = make(map[Transition]int)
	}
	o.runs[t]++
}

func (o *recordingObserver) PassFinished(_ string, status txn.Status, _ bool) {
	o.passes = append(o.passes, status)
}

func TestSinkAndObserver(t *testing.T) {
	sink := &recordingSink{}
	obs := &recordingObserver{}
	e, _ := newTestEngine(t, WithDiagnosticSink(sink), WithObserver(obs))
	doc := document.NewMemoryModel("doc")

	res := solve(t, e, doc, gridComponent, []signature.Source{row("A", ""), row("B", "warn")})

	assert.Equal(t, res.Diagnostics, sink.diags)
	assert.Equal(t, "solve-1", sink.diags[0].Solve)
	assert.Equal(t, "grids", sink.diags[0].Component)
	assert.Equal(t, map[Transition]int{Insert: 1, Empty: 1}, obs.runs)
	assert.Equal(t, []txn.Status{txn.Committed}, obs.passes)
}

func TestPerSolutionSharesOneTransaction(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	levels := Component{Name: "north", Operation: "GridByName", Strategy: PerSolution}
	grids := Component{Name: "south", Operation: "GridByName", Strategy: PerSolution}

	sol := e.NewSolution("Solve", nil)
	a, err := sol.Solve(ctx, Request{Component: levels, Document: doc, Rows: rows("N1", "N2")})
	require.NoError(t, err)
	b, err := sol.Solve(ctx, Request{Component: grids, Document: doc, Rows: rows("S1")})
	require.NoError(t, err)

	require.NoError(t, sol.Commit(ctx))

	assert.Equal(t, txn.Committed, a.Status)
	assert.Equal(t, txn.Committed, b.Status)
	assert.Equal(t, a.Solve, b.Solve)
	assert.Equal(t, 3, entityCount(t, doc))

	st, err := e.States().LoadState(ctx, "south")
	require.NoError(t, err)
	assert.Equal(t, b.Outputs(), st.Handles)
}

func TestPerSolutionAbortRollsBackDocument(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")
	other := document.NewMemoryModel("other")

	sol := e.NewSolution("Solve", nil)
	a, err := sol.Solve(ctx, Request{Component: Component{Name: "a", Operation: "GridByName"}, Document: doc, Rows: rows("A")})
	require.NoError(t, err)
	b, err := sol.Solve(ctx, Request{
		Component: Component{Name: "b", Operation: "GridByName"},
		Document:  doc,
		Rows:      []signature.Source{row("B", "hard")},
	})
	require.Error(t, err)
	c, err := sol.Solve(ctx, Request{Component: Component{Name: "c", Operation: "GridByName"}, Document: other, Rows: rows("C")})
	require.NoError(t, err)

	require.NoError(t, sol.Commit(ctx))

	assert.True(t, a.Failed)
	assert.True(t, b.Failed)
	assert.Equal(t, txn.RolledBack, a.Status)
	assert.Equal(t, txn.Committed, c.Status, "other documents commit independently")
	assert.Zero(t, entityCount(t, doc))
	assert.Equal(t, 1, entityCount(t, other))
}

func TestSolutionRollback(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	doc := document.NewMemoryModel("doc")

	sol := e.NewSolution("Solve", nil)
	a, err := sol.Solve(ctx, Request{Component: Component{Name: "a", Operation: "GridByName", Strategy: PerSolution}, Document: doc, Rows: rows("A", "B")})
	require.NoError(t, err)

	require.NoError(t, sol.Rollback(ctx))
	assert.Equal(t, txn.RolledBack, a.Status)
	assert.True(t, a.Failed)
	assert.Zero(t, entityCount(t, doc))

	st, err := e.States().LoadState(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, st.Generation)

	_, err = sol.Solve(ctx, Request{Component: gridComponent, Document: doc, Rows: rows("C")})
	assert.Error(t, err, "solution is finished")
	_, err = doc.Begin(ctx, "next")
	assert.NoError(t, err)
}

func TestRegistryRejectsDuplicatesAndBadShapes(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&gridOp{}))
	assert.Error(t, reg.Register(&gridOp{}))

	bad := OperationFunc{Desc: signature.Descriptor{
		Operation: "Bad",
		Slots:     []signature.Slot{{Name: "document", Type: signature.DocumentType()}},
	}}
	err := reg.Register(bad)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeUnsupportedSlotShape))
	assert.Equal(t, []string{"GridByName"}, reg.Names())
}
