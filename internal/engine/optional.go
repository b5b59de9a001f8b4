package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/value"
)

// ErrNullInput is returned by operations and helpers when an input that
// must have a value was explicitly null. The run produces no output and no
// diagnostic.
var ErrNullInput = errors.New("null input")

// TypeAttr is the attribute holding an entity's element type.
const TypeAttr = "type"

// Resolver finds the default entity for a missing optional input. It
// returns nil when nothing suitable exists.
type Resolver func(ctx context.Context, r document.Reader) (*document.Entity, error)

// DefaultOfKind resolves to the lowest-id entity of kind whose "default"
// attribute is true.
func DefaultOfKind(kind document.Kind) Resolver {
	return func(ctx context.Context, r document.Reader) (*document.Entity, error) {
		all, err := r.List(ctx, func(e *document.Entity) bool {
			b, ok := e.Attr("default").(value.Bool)
			return e.Kind == kind && ok && bool(b)
		})
		if err != nil || len(all) == 0 {
			return nil, err
		}
		return all[0], nil
	}
}

// SolveOptional returns the entity bound to the optional input name. A
// missing input falls back to resolve; wasMissing reports that it did.
//
// A null input yields ErrNullInput. No suitable default is an argument
// failure.
func SolveOptional(ctx context.Context, call *Call, name string, resolve Resolver) (e *document.Entity, wasMissing bool, err error) {
	arg := call.Args.Get(name)
	switch arg.State {
	case signature.Missing:
		e, err := resolve(ctx, call.Txn)
		if err != nil {
			return nil, true, err
		}
		if e == nil {
			return nil, true, &fault.Error{
				Code:    fault.CodeMissingArgument,
				Message: "no suitable entity has been found",
				Slot:    name,
			}
		}
		return e, true, nil

	case signature.Null:
		return nil, false, ErrNullInput
	}

	ref, ok := arg.Value.(value.Ref)
	if !ok {
		return nil, false, &fault.Error{
			Code:    fault.CodeTypeMismatch,
			Message: fmt.Sprintf("expected an entity, got %s", arg.Value.Kind()),
			Slot:    name,
		}
	}
	if ref.Document != call.Txn.ID() {
		return nil, false, &fault.Error{
			Code:     fault.CodeIncompatibleDocument,
			Message:  "failed to assign an entity from a different document",
			Slot:     name,
			Document: call.Txn.ID(),
			Entities: []value.EntityID{ref.ID},
		}
	}
	e, err = call.Txn.Get(ctx, ref.ID)
	return e, false, err
}

// ChangeType points e at the element type typ, rejecting types from other
// documents. It reports whether the type changed; the caller persists e.
func ChangeType(e *document.Entity, typ value.Ref, doc string) (bool, error) {
	if typ.Document != doc {
		return false, &fault.Error{
			Code:     fault.CodeIncompatibleDocument,
			Message:  "failed to assign a type from a different document",
			Slot:     TypeAttr,
			Document: doc,
			Entities: []value.EntityID{typ.ID},
		}
	}
	if cur, ok := e.Attr(TypeAttr).(value.Ref); ok && cur == typ {
		return false, nil
	}
	e.SetAttr(TypeAttr, typ)
	return true, nil
}
