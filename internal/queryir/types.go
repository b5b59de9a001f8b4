package queryir

import (
	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/value"
)

// Entity columns a predicate may reference.
const (
	FieldKind   = "kind"
	FieldName   = "name"
	FieldPinned = "pinned"
	FieldID     = "id"
)

// Fields lists the queryable columns.
var Fields = []string{FieldID, FieldKind, FieldName, FieldPinned}

// Query is a sealed query node.
type Query interface {
	queryNode()
}

// Predicate is a sealed filter node.
type Predicate interface {
	predicateNode()
}

// Select lists the entities of Document accepted by Filter. A nil
// Filter accepts every entity. Limit of 0 means no limit.
type Select struct {
	Document string
	Filter   Predicate
	Limit    int
}

func (Select) queryNode() {}

// Equals is field = value.
type Equals struct {
	Field string
	Value value.Value
}

func (Equals) predicateNode() {}

// In is field IN (values...). An empty In accepts nothing.
type In struct {
	Field  string
	Values []value.Value
}

func (In) predicateNode() {}

// And accepts what every predicate accepts. An empty And accepts all.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// FromFilter builds the predicate for a signature entity filter. A filter
// accepting any entity yields nil.
func FromFilter(f signature.EntityFilter) Predicate {
	if f.Any {
		return nil
	}
	in := In{Field: FieldKind}
	for _, k := range f.Kinds {
		in.Values = append(in.Values, value.Text(k))
	}
	return in
}

// Kinds selects entities of the given kinds.
func Kinds(kinds ...document.Kind) Predicate {
	return FromFilter(signature.EntityFilter{Kinds: kinds})
}

// Conjoin joins the non-nil predicates. It returns nil when none are left
// and the predicate itself when only one is.
func Conjoin(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}

// Match evaluates p against e. Backends without SQL use it to run the
// same queries.
func Match(p Predicate, e *document.Entity) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		return value.Equal(field(e, pred.Field), pred.Value)
	case In:
		got := field(e, pred.Field)
		for _, v := range pred.Values {
			if value.Equal(got, v) {
				return true
			}
		}
		return false
	case And:
		for _, sub := range pred.Predicates {
			if !Match(sub, e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func field(e *document.Entity, name string) value.Value {
	switch name {
	case FieldID:
		return value.Int(e.ID)
	case FieldKind:
		return value.Text(e.Kind)
	case FieldName:
		return value.Text(e.Name)
	case FieldPinned:
		return value.Bool(e.Pinned)
	default:
		return value.Null{}
	}
}
