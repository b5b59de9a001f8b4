package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeOps(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewOpsCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestOpsListsAll(t *testing.T) {
	out, err := executeOps(t, "text")
	require.NoError(t, err)

	for _, name := range []string{"LevelByElevation", "SharedParameterByName", "TagElements"} {
		assert.Contains(t, out, name+" -> ")
	}
	assert.Contains(t, out, "filter: ")
}

func TestOpsJSON(t *testing.T) {
	out, err := executeOps(t, "json", "LevelByElevation")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   []OperationInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)

	op := resp.Data[0]
	assert.Equal(t, "LevelByElevation", op.Operation)
	assert.Equal(t, "level", op.Output.EntityKind)

	names := make([]string, len(op.Inputs))
	for i, p := range op.Inputs {
		names[i] = p.Name
		assert.Equal(t, i+2, p.Position, "inputs follow the document and output slots")
	}
	assert.Contains(t, names, "Elevation")
	assert.Contains(t, names, "Name")
}

func TestOpsUnknownOperation(t *testing.T) {
	_, err := executeOps(t, "text", "NoSuchOperation")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDescribeType(t *testing.T) {
	assert.Equal(t, "[]element", describeType(ParamInfo{Kind: "ref", EntityKind: "element", Access: "list"}))
	assert.Equal(t, "Detail{Coarse,Fine}", describeType(ParamInfo{Kind: "integer", Enum: "Detail", Members: []string{"Coarse", "Fine"}}))
	assert.Equal(t, "real", describeType(ParamInfo{Kind: "real", Access: "item"}))
}
