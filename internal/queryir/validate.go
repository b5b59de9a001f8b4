package queryir

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/recon/internal/value"
)

// fieldKinds is the value kind each field compares against.
var fieldKinds = map[string]value.Kind{
	FieldID:     value.KindInt,
	FieldKind:   value.KindText,
	FieldName:   value.KindText,
	FieldPinned: value.KindBool,
}

// Validate checks that q only references known fields with values of the
// field's kind. All problems are reported, joined.
func Validate(q Query) error {
	v := &validator{}
	v.validateQuery(q)
	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) fail(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		if query.Document == "" {
			v.fail("select: document is required")
		}
		if query.Limit < 0 {
			v.fail("select: negative limit %d", query.Limit)
		}
		v.validatePredicate(query.Filter)
	case nil:
		v.fail("nil query")
	default:
		v.fail("unsupported query type %T", q)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateValue(pred.Field, pred.Value)
	case In:
		if !slices.Contains(Fields, pred.Field) {
			v.fail("unknown field %q", pred.Field)
			return
		}
		for _, val := range pred.Values {
			v.validateValue(pred.Field, val)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.fail("unsupported predicate type %T", p)
	}
}

func (v *validator) validateValue(field string, val value.Value) {
	want, ok := fieldKinds[field]
	if !ok {
		v.fail("unknown field %q", field)
		return
	}
	if value.IsNull(val) {
		v.fail("field %q compared to null", field)
		return
	}
	if val.Kind() != want {
		v.fail("field %q compares %s values, got %s", field, want, val.Kind())
	}
}
