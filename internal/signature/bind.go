package signature

import (
	"errors"
	"fmt"

	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/value"
)

// State is the tri-state of a bound argument.
type State int

const (
	// Missing: an optional input is not connected.
	Missing State = iota
	// Null: the input is connected and explicitly null.
	Null
	// Present: the input has a value.
	Present
)

func (s State) String() string {
	switch s {
	case Null:
		return "null"
	case Present:
		return "present"
	default:
		return "missing"
	}
}

// Argument is one bound input. For list access Value is a value.List.
type Argument struct {
	State State
	Value value.Value
}

// Source supplies the raw inputs of one run by parameter name.
type Source interface {
	// Lookup returns the raw value for name and whether the input is
	// connected at all. A connected list input is a value.List.
	Lookup(name string) (value.Value, bool)
}

// MapSource is a Source over a map. Keys absent from the map are not
// connected.
type MapSource map[string]value.Value

func (m MapSource) Lookup(name string) (value.Value, bool) {
	v, ok := m[name]
	return v, ok
}

// Bind binds the input parameter p from src.
func Bind(p Param, src Source) (Argument, error) {
	raw, connected := src.Lookup(p.Name)

	if p.Access == ListAccess {
		return bindList(p, raw, connected)
	}

	if !connected {
		if !p.Optional {
			return Argument{}, &fault.Error{
				Code:    fault.CodeMissingArgument,
				Message: "input parameter is not connected",
				Slot:    p.Name,
			}
		}
		if p.Default != nil {
			return Argument{State: Present, Value: p.Default}, nil
		}
		return Argument{State: Missing}, nil
	}

	if value.IsNull(raw) {
		return Argument{State: Null, Value: value.Null{}}, nil
	}

	v, err := checkItem(p, raw)
	if err != nil {
		return Argument{}, err
	}
	return Argument{State: Present, Value: v}, nil
}

func bindList(p Param, raw value.Value, connected bool) (Argument, error) {
	if !connected {
		if p.Optional {
			return Argument{State: Missing}, nil
		}
		return Argument{State: Present, Value: value.List{}}, nil
	}
	if value.IsNull(raw) {
		return Argument{State: Present, Value: value.List{}}, nil
	}

	items, ok := raw.(value.List)
	if !ok {
		// a single item on a list input is a one-element list
		items = value.List{raw}
	}

	out := make(value.List, len(items))
	for i, item := range items {
		if value.IsNull(item) {
			out[i] = value.Null{}
			continue
		}
		v, err := checkItem(p, item)
		if err != nil {
			var fe *fault.Error
			if errors.As(err, &fe) {
				fe.Message = fmt.Sprintf("item %d: %s", i, fe.Message)
			}
			return Argument{}, err
		}
		out[i] = v
	}
	return Argument{State: Present, Value: out}, nil
}

// checkItem validates one non-null value against p.
func checkItem(p Param, v value.Value) (value.Value, error) {
	if p.Enum != nil {
		m, ok := p.Enum.Lookup(v)
		if !ok {
			return nil, &fault.Error{
				Code:    fault.CodeInvalidEnumValue,
				Message: fmt.Sprintf("%s is not a legal %s value", value.String(v), p.Enum.Name),
				Slot:    p.Name,
			}
		}
		return p.Enum.Value(m), nil
	}
	if !value.AcceptsKind(p.Kind, v.Kind()) {
		return nil, &fault.Error{
			Code:    fault.CodeTypeMismatch,
			Message: fmt.Sprintf("expected %s, got %s", p.Kind, v.Kind()),
			Slot:    p.Name,
		}
	}
	return v, nil
}

// Args are the bound inputs of one run, keyed by parameter name.
type Args struct {
	names  []string
	values map[string]Argument
}

// BindAll binds every input of sig from src, stopping at the first error.
func BindAll(sig *Signature, src Source) (Args, error) {
	args := Args{values: make(map[string]Argument, len(sig.Inputs))}
	for _, p := range sig.Inputs {
		a, err := Bind(p, src)
		if err != nil {
			return Args{}, err
		}
		args.names = append(args.names, p.Name)
		args.values[p.Name] = a
	}
	return args, nil
}

// NewArgs builds Args directly. Used by tests and callers that bind by hand.
func NewArgs(values map[string]Argument) Args {
	args := Args{values: make(map[string]Argument, len(values))}
	for name, a := range values {
		args.names = append(args.names, name)
		args.values[name] = a
	}
	return args
}

// Get returns the argument for name; unknown names are Missing.
func (a Args) Get(name string) Argument {
	return a.values[name]
}

// Text returns a present text argument.
func (a Args) Text(name string) (string, bool) {
	arg := a.values[name]
	t, ok := arg.Value.(value.Text)
	return string(t), arg.State == Present && ok
}

// Bool returns a present bool argument.
func (a Args) Bool(name string) (bool, bool) {
	arg := a.values[name]
	b, ok := arg.Value.(value.Bool)
	return bool(b), arg.State == Present && ok
}

// Real returns a present real argument.
func (a Args) Real(name string) (float64, bool) {
	arg := a.values[name]
	r, ok := arg.Value.(value.Real)
	return float64(r), arg.State == Present && ok
}

// Int returns a present int argument.
func (a Args) Int(name string) (int64, bool) {
	arg := a.values[name]
	n, ok := arg.Value.(value.Int)
	return int64(n), arg.State == Present && ok
}

// Enum returns a present enum argument.
func (a Args) Enum(name string) (value.Enum, bool) {
	arg := a.values[name]
	e, ok := arg.Value.(value.Enum)
	return e, arg.State == Present && ok
}

// Ref returns a present entity reference.
func (a Args) Ref(name string) (value.Ref, bool) {
	arg := a.values[name]
	r, ok := arg.Value.(value.Ref)
	return r, arg.State == Present && ok
}

// List returns a list argument; missing lists are empty.
func (a Args) List(name string) value.List {
	l, _ := a.values[name].Value.(value.List)
	return l
}

// Refs returns every entity reference among the arguments, in binding order.
func (a Args) Refs() []value.Ref {
	var refs []value.Ref
	for _, name := range a.names {
		arg := a.values[name]
		switch v := arg.Value.(type) {
		case value.Ref:
			refs = append(refs, v)
		case value.List:
			for _, item := range v {
				if r, ok := item.(value.Ref); ok {
					refs = append(refs, r)
				}
			}
		}
	}
	return refs
}

// Object renders the arguments for fingerprints and traces. Missing
// arguments are omitted.
func (a Args) Object() value.Object {
	obj := make(value.Object, len(a.values))
	for name, arg := range a.values {
		switch arg.State {
		case Present:
			obj[name] = arg.Value
		case Null:
			obj[name] = value.Null{}
		}
	}
	return obj
}
