package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/value"
)

func TestFromFilter(t *testing.T) {
	assert.Nil(t, FromFilter(signature.EntityFilter{Any: true}))

	got := FromFilter(signature.EntityFilter{Kinds: []document.Kind{document.KindLevel, document.KindGrid}})
	assert.Equal(t, In{Field: FieldKind, Values: []value.Value{value.Text("level"), value.Text("grid")}}, got)
}

func TestConjoin(t *testing.T) {
	assert.Nil(t, Conjoin(nil, nil))

	one := Equals{Field: FieldPinned, Value: value.Bool(true)}
	assert.Equal(t, one, Conjoin(nil, one))

	two := Conjoin(one, Kinds(document.KindTag))
	require.IsType(t, And{}, two)
	assert.Len(t, two.(And).Predicates, 2)
}

func TestMatch(t *testing.T) {
	e := &document.Entity{ID: 3, Kind: document.KindLevel, Name: "L1", Pinned: true}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"nil accepts", nil, true},
		{"kind in", Kinds(document.KindGrid, document.KindLevel), true},
		{"kind not in", Kinds(document.KindGrid), false},
		{"empty in", In{Field: FieldKind}, false},
		{"name", Equals{Field: FieldName, Value: value.Text("L1")}, true},
		{"id", Equals{Field: FieldID, Value: value.Int(3)}, true},
		{"and", And{Predicates: []Predicate{
			Equals{Field: FieldPinned, Value: value.Bool(true)},
			Equals{Field: FieldName, Value: value.Text("L2")},
		}}, false},
		{"empty and", And{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pred, e))
		})
	}
}

func TestValidate(t *testing.T) {
	ok := Select{Document: "doc", Filter: Conjoin(
		Kinds(document.KindLevel),
		Equals{Field: FieldPinned, Value: value.Bool(false)},
	)}
	assert.NoError(t, Validate(ok))

	err := Validate(Select{Filter: And{Predicates: []Predicate{
		Equals{Field: "colour", Value: value.Text("red")},
		Equals{Field: FieldName, Value: value.Null{}},
		In{Field: FieldKind, Values: []value.Value{value.Int(1)}},
	}}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "document is required")
	assert.ErrorContains(t, err, `unknown field "colour"`)
	assert.ErrorContains(t, err, `field "name" compared to null`)
	assert.ErrorContains(t, err, `field "kind" compares text values, got int`)

	assert.Error(t, Validate(nil))
}
