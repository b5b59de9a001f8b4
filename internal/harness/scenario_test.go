package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes a spec file and a scenario referring to it by a
// relative path, and returns the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "specs"), 0755))
	spec := `component: Levels: operation: "LevelByElevation"`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "specs", "levels.cue"), []byte(spec), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
specs:
  - specs/levels.cue
setup:
  - kind: element-type
    name: Level Head
    attrs: { default: true }
passes:
  - component: Levels
    rows:
      - { Elevation: 1.5, Name: Ground }
    expect:
      status: Committed
      transitions: [insert]
assertions:
  - type: entity_count
    kind: level
    count: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, []string{filepath.Join(filepath.Dir(path), "specs", "levels.cue")}, scenario.Specs)
	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, true, scenario.Setup[0].Attrs["default"])
	require.Len(t, scenario.Passes, 1)
	assert.Equal(t, 1.5, scenario.Passes[0].Rows[0]["Elevation"])
	assert.Equal(t, []string{"insert"}, scenario.Passes[0].Expect.Transitions)
	assert.Equal(t, AssertEntityCount, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "unknown field"
specs: [specs/levels.cue]
passes:
  - component: Levels
assertion: []
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestPassSteps(t *testing.T) {
	single := Pass{Component: "Levels", Rows: []Row{{"Elevation": 1.0}}}
	assert.Equal(t, []Step{{Component: "Levels", Rows: single.Rows}}, single.steps())

	multi := Pass{Steps: []Step{{Component: "A"}, {Component: "B"}}}
	assert.Equal(t, multi.Steps, multi.steps())
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing name",
			body:    "description: d\nspecs: [specs/levels.cue]\npasses: [{component: Levels}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			body:    "name: n\nspecs: [specs/levels.cue]\npasses: [{component: Levels}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no specs",
			body:    "name: n\ndescription: d\npasses: [{component: Levels}]\n",
			wantErr: "specs list is required",
		},
		{
			name:    "missing spec file",
			body:    "name: n\ndescription: d\nspecs: [specs/nope.cue]\npasses: [{component: Levels}]\n",
			wantErr: "spec file not found",
		},
		{
			name:    "no passes",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\n",
			wantErr: "passes list is required",
		},
		{
			name:    "setup without kind",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\nsetup: [{name: X}]\npasses: [{component: Levels}]\n",
			wantErr: "setup[0]: kind is required",
		},
		{
			name:    "component and steps",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\npasses: [{component: Levels, steps: [{component: Levels}]}]\n",
			wantErr: "component and steps are exclusive",
		},
		{
			name:    "empty pass",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\npasses: [{transaction: T}]\n",
			wantErr: "component or steps is required",
		},
		{
			name:    "step without component",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\npasses: [{steps: [{rows: []}]}]\n",
			wantErr: "passes[0].steps[0]: component is required",
		},
		{
			name:    "unknown assertion",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\npasses: [{component: Levels}]\nassertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "pass out of range",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\npasses: [{component: Levels}]\nassertions: [{type: created, component: Levels, pass: 2}]\n",
			wantErr: "pass 2 out of range 1..1",
		},
		{
			name:    "same_identity needs two passes",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\npasses: [{component: Levels}]\nassertions: [{type: same_identity, component: Levels, passes: [1]}]\n",
			wantErr: "compares exactly two passes",
		},
		{
			name:    "deleted needs pass",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\npasses: [{component: Levels}]\nassertions: [{type: deleted, component: Levels}]\n",
			wantErr: "component and pass are required for deleted",
		},
		{
			name:    "diagnostic needs contains",
			body:    "name: n\ndescription: d\nspecs: [specs/levels.cue]\npasses: [{component: Levels}]\nassertions: [{type: diagnostic}]\n",
			wantErr: "contains is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
