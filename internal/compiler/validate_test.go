package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/signature"
)

func testRegistry() *engine.Registry {
	return engine.NewRegistry().MustRegister(engine.OperationFunc{
		Desc: signature.Descriptor{
			Operation: "GridByName",
			Slots: []signature.Slot{
				{Name: "document", Type: signature.DocumentType()},
				{Name: "grid", Type: signature.Ref(signature.Entity(document.KindGrid))},
			},
		},
		Fn: func(context.Context, *engine.Call) (*document.Entity, error) { return nil, nil },
	})
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValid(t *testing.T) {
	defs := []Definition{
		{Name: "Grids", Operation: "GridByName", Fixable: []string{document.FailureDuplicateName}},
		{Name: "More", Operation: "GridByName", Strategy: "per-solution", After: []string{"Grids"}},
	}
	errs := Validate(defs, testRegistry(), []string{document.FailureDuplicateName})
	assert.Empty(t, errs)
}

func TestValidateComponentErrors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want []string
	}{
		{"empty operation", Definition{Name: "A", Operation: " "}, []string{ErrOperationEmpty}},
		{"unknown operation", Definition{Name: "A", Operation: "Nope"}, []string{ErrUnknownOperation}},
		{"invalid strategy", Definition{Name: "A", Operation: "GridByName", Strategy: "nightly"}, []string{ErrInvalidStrategy}},
		{"blank transaction", Definition{Name: "A", Operation: "GridByName", Transaction: "  "}, []string{ErrEmptyTransaction}},
		{"malformed failure kind", Definition{Name: "A", Operation: "GridByName", Fixable: []string{"bad kind"}}, []string{ErrInvalidFailure}},
		{"unknown failure kind", Definition{Name: "A", Operation: "GridByName", Fixable: []string{"corrupt"}}, []string{ErrInvalidFailure}},
		{
			"repeated failure kind",
			Definition{Name: "A", Operation: "GridByName", Fixable: []string{"duplicate-name", "duplicate-name"}},
			[]string{ErrDuplicateFailure},
		},
		{
			"bad copy attributes",
			Definition{Name: "A", Operation: "GridByName", CopyAttributes: []string{"", "comment", "comment"}},
			[]string{ErrInvalidAttribute, ErrInvalidAttribute},
		},
		{
			"collects all errors",
			Definition{Name: "A", Operation: "Nope", Strategy: "nightly", Fixable: []string{"?"}},
			[]string{ErrUnknownOperation, ErrInvalidStrategy, ErrInvalidFailure},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate([]Definition{tt.def}, testRegistry(), []string{"duplicate-name"})
			assert.Equal(t, tt.want, codes(errs))
		})
	}
}

func TestValidateWithoutCatalogs(t *testing.T) {
	errs := Validate([]Definition{{Name: "A", Operation: "Anything", Fixable: []string{"custom-kind"}}}, nil, nil)
	assert.Empty(t, errs, "nil registry and kinds accept any well-formed definition")
}

func TestValidateDuplicateName(t *testing.T) {
	defs := []Definition{
		{Name: "A", Operation: "GridByName"},
		{Name: "A", Operation: "GridByName"},
	}
	errs := Validate(defs, testRegistry(), nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateName, errs[0].Code)
	assert.Equal(t, "A", errs[0].Field)
}

func TestValidateDependencies(t *testing.T) {
	defs := []Definition{
		{Name: "A", Operation: "GridByName", After: []string{"B", "Ghost"}},
		{Name: "B", Operation: "GridByName", After: []string{"A"}},
	}
	errs := Validate(defs, testRegistry(), nil)
	require.Len(t, errs, 2)

	assert.Equal(t, ErrUnknownDependency, errs[0].Code)
	assert.Equal(t, "A.after", errs[0].Field)
	assert.Contains(t, errs[0].Message, `"Ghost"`)

	assert.Equal(t, ErrDependencyCycle, errs[1].Code)
	assert.Equal(t, "dependency cycle: A → B → A", errs[1].Message)
}

func TestValidationErrorFormat(t *testing.T) {
	assert.Equal(t, "[E102] line 4: A.operation: unknown operation \"X\"",
		ValidationError{Field: "A.operation", Message: `unknown operation "X"`, Code: ErrUnknownOperation, Line: 4}.Error())
	assert.Equal(t, "[E101] A.operation: required",
		ValidationError{Field: "A.operation", Message: "required", Code: ErrOperationEmpty}.Error())
}

func TestValidateCompiledLines(t *testing.T) {
	defs, err := CompileString("component: A: {\n\toperation: \"Nope\"\n}\n", "a.cue")
	require.NoError(t, err)
	errs := Validate(defs, testRegistry(), nil)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Line)
}
