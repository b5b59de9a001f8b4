package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/config"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/metrics"
	"github.com/roach88/recon/internal/store"
	"github.com/roach88/recon/internal/txn"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Testdata(t *testing.T) {
	for _, name := range []string{"levels", "parameters", "tagged_levels", "mixed_strategies"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(context.Background(), loadTestdata(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_Levels(t *testing.T) {
	result, err := Run(context.Background(), loadTestdata(t, "levels"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	first := result.Step(1, "Levels")
	second := result.Step(2, "Levels")
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Outputs()[0], second.Outputs()[0])
	assert.Equal(t, []engine.Handle{first.Outputs()[1]}, second.Deleted)
	assert.Nil(t, result.Step(3, "Levels"))
	assert.Nil(t, result.Step(1, "Tags"))

	var types []string
	for _, ev := range result.Trace {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventRun, EventRun, EventPass, EventRun, EventDelete, EventPass}, types)
}

func TestRun_TaggedLevels(t *testing.T) {
	result, err := Run(context.Background(), loadTestdata(t, "tagged_levels"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Passes, 1)
	require.Len(t, result.Passes[0], 2)
	assert.Equal(t, "Levels", result.Passes[0][0].Component, "Tags comes after Levels")
	assert.Equal(t, "Tags", result.Passes[0][1].Component)
}

func TestRun_MixedStrategies(t *testing.T) {
	result, err := Run(context.Background(), loadTestdata(t, "mixed_strategies"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Passes[0], 2)
	tags, levels := result.Passes[0][0], result.Passes[0][1]
	assert.Equal(t, "Tags", tags.Component)
	assert.Equal(t, "Levels", levels.Component)
	assert.Equal(t, tags.Solve, levels.Solve, "both steps share the standing transaction")
}

type commitStatuses []txn.Status

func (c *commitStatuses) CommitFinished(status txn.Status, _ int) { *c = append(*c, status) }

func TestRun_FailedStepRollsBackSolution(t *testing.T) {
	s := loadTestdata(t, "mixed_strategies")
	s.Passes[0].Steps[0].Rows[0]["Elevation"] = map[string]any{"ref": "Missing"}

	var statuses commitStatuses
	_, err := Run(context.Background(), s,
		WithEngineOptions(engine.WithScopeOptions(txn.WithObserver(&statuses))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no setup entity named "Missing"`)
	assert.Equal(t, commitStatuses{txn.RolledBack}, statuses, "the standing transaction of Tags is rolled back")
}

func TestRun_EnumMemberNames(t *testing.T) {
	s := loadTestdata(t, "mixed_strategies")
	s.Passes[0].Steps[1].Rows[0]["Detail"] = "Medium-ish"
	s.Passes[0].Steps[1].Expect = nil

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	tags := result.Passes[0][0]
	require.Len(t, tags.Runs, 1)
	assert.Equal(t, engine.Empty, tags.Runs[0].Transition)
	var messages []string
	for _, d := range tags.Diagnostics {
		messages = append(messages, d.Text())
	}
	assert.Contains(t, messages, `Detail: "Medium-ish" is not a legal ViewDetailLevel value`)
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := loadTestdata(t, "levels")
	s.Passes[1].Expect.Transitions = []string{"replace"}
	s.Assertions = append(s.Assertions, Assertion{Type: AssertEntityCount, Kind: "level", Count: 7})

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "pass 2 Levels: transitions [update], want [replace]")
	assert.Contains(t, result.Errors[1], "Expected: 7 level entities")
}

func TestRun_UnknownOperation(t *testing.T) {
	dir := t.TempDir()
	spec := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(spec, []byte(`component: X: operation: "Nope"`), 0644))

	_, err := Run(context.Background(), &Scenario{
		Name:   "bad",
		Specs:  []string{spec},
		Passes: []Pass{{Component: "X"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[E102]")
}

func TestRun_UnknownComponent(t *testing.T) {
	s := loadTestdata(t, "levels")
	s.Passes[0].Component = "Grids"

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `pass 1: unknown component "Grids"`)
}

func TestRun_UnknownSetupRef(t *testing.T) {
	s := loadTestdata(t, "tagged_levels")
	s.Passes[0].Steps[0].Rows[0]["Elements"] = []any{map[string]any{"ref": "Door"}}

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no setup entity named "Door"`)
}

func TestRun_WithStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "recon.db")
	st, err := store.Open(path)
	require.NoError(t, err)

	result, err := Run(ctx, loadTestdata(t, "levels"), WithStore(st))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.NoError(t, st.Close())

	st, err = store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	state, err := st.StateStore().LoadState(ctx, "Levels")
	require.NoError(t, err)
	assert.Equal(t, result.Step(2, "Levels").Outputs(), state.Handles)
	assert.Equal(t, uint64(2), state.Generation)
}

func TestRun_WithConfigAndMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.CopyAttributes = []string{"comment"}
	rec := metrics.New()

	result, err := Run(context.Background(), loadTestdata(t, "levels"),
		WithConfig(cfg),
		WithEngineOptions(engine.WithObserver(rec)),
	)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	out, err := rec.Expose()
	require.NoError(t, err)
	assert.Contains(t, out, `recon_engine_runs_total{component="Levels",transition="insert"} 2`)
	assert.Contains(t, out, `recon_engine_runs_total{component="Levels",transition="update"} 1`)
}

func TestRunWithGolden_Levels(t *testing.T) {
	_, err := RunWithGolden(t, loadTestdata(t, "levels"))
	require.NoError(t, err)
}
