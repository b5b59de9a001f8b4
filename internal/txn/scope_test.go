package txn

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/value"
)

type recordingFinalizer struct {
	events []string
	subs   Substitutions
	fail   error
}

func (r *recordingFinalizer) BeforeCommit(_ context.Context, tx document.Txn) error {
	r.events = append(r.events, "before:"+tx.Name())
	return r.fail
}

func (r *recordingFinalizer) Committed(_ context.Context, _ document.Reader, name string, subs Substitutions) {
	r.events = append(r.events, "committed:"+name)
	r.subs = subs
}

func (r *recordingFinalizer) RolledBack(_ context.Context, _ document.Reader, name string) {
	r.events = append(r.events, "rolledback:"+name)
}

func corruptionRule() document.Rule {
	return document.Rule{
		Kind:     "corrupt",
		Severity: failure.SeverityCorruption,
		Check: func(entities []*document.Entity) []*failure.Record {
			var out []*failure.Record
			for _, e := range entities {
				if e.Attr("corrupt") != nil {
					out = append(out, &failure.Record{Kind: "corrupt", Severity: failure.SeverityCorruption, Entities: []value.EntityID{e.ID}})
				}
			}
			return out
		},
	}
}

func TestScopeCommitLifecycle(t *testing.T) {
	ctx := context.Background()
	doc := document.NewMemoryModel("doc-1")
	fin := &recordingFinalizer{}

	s, err := Open(ctx, doc, "Add Grid", WithFinalizer(fin))
	require.NoError(t, err)
	defer s.Release(ctx)
	assert.Equal(t, Started, s.Status())

	e, err := s.Txn().Create(ctx, &document.Entity{Kind: document.KindGrid, Name: "A"})
	require.NoError(t, err)
	s.Substitute(99, e.ID)

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, Committed, s.Status())
	assert.Equal(t, []string{"before:Add Grid", "committed:Add Grid"}, fin.events)
	assert.Equal(t, Substitutions{99: e.ID}, fin.subs)

	err = s.Commit(ctx)
	assert.Error(t, err, "committed scopes cannot commit again")
	assert.NoError(t, s.Rollback(ctx), "rollback after commit is a no-op")
	assert.Equal(t, Committed, s.Status())
}

func TestScopeStartFailure(t *testing.T) {
	ctx := context.Background()
	doc := document.NewMemoryModel("doc-1")
	doc.Lock("another writer")

	s, err := Open(ctx, doc, "Add Grid")
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, fault.Is(err, fault.CodeStartFailure))
}

func TestReleaseRollsBackStartedScope(t *testing.T) {
	ctx := context.Background()
	doc := document.NewMemoryModel("doc-1")
	fin := &recordingFinalizer{}

	s, err := Open(ctx, doc, "edit", WithFinalizer(fin))
	require.NoError(t, err)
	_, err = s.Txn().Create(ctx, &document.Entity{Kind: document.KindGrid, Name: "A"})
	require.NoError(t, err)

	s.Release(ctx)
	s.Release(ctx)
	assert.Equal(t, RolledBack, s.Status())
	assert.Equal(t, []string{"rolledback:edit"}, fin.events, "released once")

	all, err := doc.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = Open(ctx, doc, "next")
	assert.NoError(t, err, "document is free again")
}

func TestCommitRetriesAfterResolution(t *testing.T) {
	ctx := context.Background()
	doc := document.NewMemoryModel("doc-1")

	s, err := Open(ctx, doc, "levels", WithPolicy(failure.NewPolicy([]string{document.FailureDuplicateName})))
	require.NoError(t, err)
	defer s.Release(ctx)

	for i := 0; i < 2; i++ {
		_, err := s.Txn().Create(ctx, &document.Entity{Kind: document.KindLevel, Name: "Level"})
		require.NoError(t, err)
	}

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 2, s.Attempts())

	diags := s.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, failure.Resolved, diags[0].Resolution)
}

func TestCommitRollsBackOnCorruption(t *testing.T) {
	ctx := context.Background()
	doc := document.NewMemoryModel("doc-1", document.WithExtraRules(corruptionRule()))
	fin := &recordingFinalizer{}

	s, err := Open(ctx, doc, "edit", WithFinalizer(fin))
	require.NoError(t, err)
	defer s.Release(ctx)

	_, err = s.Txn().Create(ctx, &document.Entity{Kind: document.KindGrid, Name: "A", Attrs: value.Object{"corrupt": value.Bool(true)}})
	require.NoError(t, err)

	err = s.Commit(ctx)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeCommitAborted))
	assert.Equal(t, RolledBack, s.Status())
	assert.Equal(t, []string{"before:edit", "rolledback:edit"}, fin.events)
}

func TestBeforeCommitErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	doc := document.NewMemoryModel("doc-1")
	fin := &recordingFinalizer{fail: fmt.Errorf("cleanup failed")}

	s, err := Open(ctx, doc, "edit", WithFinalizer(fin))
	require.NoError(t, err)
	defer s.Release(ctx)

	err = s.Commit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup failed")
	assert.Equal(t, RolledBack, s.Status())
}

func TestGuardScopedToAttempt(t *testing.T) {
	ctx := context.Background()
	rule := document.DuplicateNameRule()
	rule.Interactive = true
	doc := document.NewMemoryModel("doc-1", document.WithRules(rule))
	guard := &CountingGuard{}

	s, err := Open(ctx, doc, "edit", WithGuard(guard))
	require.NoError(t, err)
	defer s.Release(ctx)

	for i := 0; i < 2; i++ {
		_, err := s.Txn().Create(ctx, &document.Entity{Kind: document.KindGrid, Name: "A"})
		require.NoError(t, err)
	}

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 1, guard.Acquired(), "only the attempt with the interactive failure takes the guard")
	assert.Zero(t, guard.Held(), "guard released when the attempt ends")
}

func TestMaxAttemptsAbortsCommit(t *testing.T) {
	ctx := context.Background()
	n := 0
	// every check reports a fresh kind, so the policy's kind guard never stops it
	restless := document.Rule{
		Kind:     "restless",
		Severity: failure.SeverityError,
		Check: func([]*document.Entity) []*failure.Record {
			n++
			return []*failure.Record{{Kind: fmt.Sprintf("restless-%d", n), Severity: failure.SeverityError}}
		},
	}
	rules := []document.Rule{restless}
	for i := 1; i <= 10; i++ {
		rules = append(rules, document.Rule{
			Kind:    fmt.Sprintf("restless-%d", i),
			Check:   func([]*document.Entity) []*failure.Record { return nil },
			Resolve: func(context.Context, document.Txn, *failure.Record) error { return nil },
		})
	}
	doc := document.NewMemoryModel("doc-1", document.WithRules(rules...))

	s, err := Open(ctx, doc, "edit", WithMaxAttempts(3))
	require.NoError(t, err)
	defer s.Release(ctx)

	err = s.Commit(ctx)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeCommitAborted))
	assert.Equal(t, 3, s.Attempts())
	assert.Equal(t, RolledBack, s.Status())
}

func TestSetIsolatesDocuments(t *testing.T) {
	ctx := context.Background()
	good := document.NewMemoryModel("good")
	bad := document.NewMemoryModel("bad", document.WithExtraRules(corruptionRule()))

	set := NewSet("batch")
	sg, err := set.Scope(ctx, good)
	require.NoError(t, err)
	sb, err := set.Scope(ctx, bad)
	require.NoError(t, err)

	again, err := set.Scope(ctx, good)
	require.NoError(t, err)
	assert.Same(t, sg, again)
	assert.Equal(t, 2, set.Len())

	_, err = sg.Txn().Create(ctx, &document.Entity{Kind: document.KindGrid, Name: "A"})
	require.NoError(t, err)
	_, err = sb.Txn().Create(ctx, &document.Entity{Kind: document.KindGrid, Name: "B", Attrs: value.Object{"corrupt": value.Bool(true)}})
	require.NoError(t, err)

	err = set.CommitAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document bad")
	assert.NotContains(t, err.Error(), "document good")

	assert.Equal(t, Committed, sg.Status())
	assert.Equal(t, RolledBack, sb.Status())

	all, err := good.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
