package harness

import (
	"bytes"
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/recon/internal/value"
)

// TraceSnapshot captures the trace of a scenario execution. It encodes as
// canonical JSON, one object per line, so golden diffs stay readable.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

func (e TraceEvent) toCanonicalMap() map[string]any {
	m := map[string]any{
		"type":      e.Type,
		"pass":      int64(e.Pass),
		"component": e.Component,
	}
	switch e.Type {
	case EventRun:
		m["ordinal"] = int64(e.Ordinal)
		m["transition"] = e.Transition
		if e.Previous != 0 {
			m["previous"] = e.Previous
		}
		if e.Output != 0 {
			m["output"] = e.Output
		}
	case EventDelete:
		m["entity"] = e.Entity
	case EventPass:
		m["status"] = e.Status
		if e.Aborted {
			m["aborted"] = true
		}
		if len(e.Diagnostics) > 0 {
			diags := make([]any, len(e.Diagnostics))
			for i, d := range e.Diagnostics {
				diags[i] = d
			}
			m["diagnostics"] = diags
		}
	}
	return m
}

// Marshal encodes the snapshot.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	header, err := value.MarshalTree(map[string]any{"scenario_name": s.ScenarioName})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')
	for _, event := range s.Trace {
		line, err := value.MarshalTree(event.toCanonicalMap())
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
