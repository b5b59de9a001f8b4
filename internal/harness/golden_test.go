package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceSnapshot_Marshal(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "éa",
		Trace: []TraceEvent{
			{Type: EventRun, Pass: 1, Component: "Tags", Ordinal: 0, Transition: "empty"},
			{Type: EventRun, Pass: 2, Component: "Tags", Ordinal: 1, Transition: "replace", Previous: 4, Output: 7},
			{Type: EventDelete, Pass: 2, Component: "Tags", Entity: 5},
			{Type: EventPass, Pass: 2, Component: "Tags", Status: "RolledBack", Aborted: true, Diagnostics: []string{"no elements to tag"}},
		},
	}

	data, err := snapshot.Marshal()
	require.NoError(t, err)
	want := `{"scenario_name":"éa"}
{"component":"Tags","ordinal":0,"pass":1,"transition":"empty","type":"run"}
{"component":"Tags","ordinal":1,"output":7,"pass":2,"previous":4,"transition":"replace","type":"run"}
{"component":"Tags","entity":5,"pass":2,"type":"delete"}
{"aborted":true,"component":"Tags","diagnostics":["no elements to tag"],"pass":2,"status":"RolledBack","type":"pass"}
`
	assert.Equal(t, want, string(data))
}

func TestTraceSnapshot_Deterministic(t *testing.T) {
	s := loadTestdata(t, "tagged_levels")

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := (&TraceSnapshot{ScenarioName: s.Name, Trace: first.Trace}).Marshal()
	require.NoError(t, err)
	b, err := (&TraceSnapshot{ScenarioName: s.Name, Trace: second.Trace}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestAssertGolden_ExistingResult(t *testing.T) {
	result, err := Run(context.Background(), loadTestdata(t, "levels"))
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, "levels", result))
}
