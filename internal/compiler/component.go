package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/recon/internal/engine"
)

// Definition is one component declared in CUE:
//
//	component: Levels: {
//		operation:       "LevelByElevation"
//		transaction:     "Create levels"
//		strategy:        "per-solution"
//		fixable:         ["duplicate-name"]
//		copy_attributes: ["comment"]
//		after:           ["Types"]
//	}
type Definition struct {
	Name           string   `json:"name"`
	Operation      string   `json:"operation"`
	Transaction    string   `json:"transaction,omitempty"`
	Strategy       string   `json:"strategy,omitempty"`
	Fixable        []string `json:"fixable,omitempty"`
	CopyAttributes []string `json:"copy_attributes,omitempty"`

	// After names components that must be solved before this one when
	// several run in one solution.
	After []string `json:"after,omitempty"`

	Pos token.Pos `json:"-"`
}

// Component converts the definition for the engine. The strategy must
// parse; Validate reports it otherwise.
func (d Definition) Component() (engine.Component, error) {
	strategy, err := engine.ParseStrategy(d.Strategy)
	if err != nil {
		return engine.Component{}, fmt.Errorf("component %s: %w", d.Name, err)
	}
	return engine.Component{
		Name:           d.Name,
		Operation:      d.Operation,
		Transaction:    d.Transaction,
		Strategy:       strategy,
		Fixable:        slices.Clone(d.Fixable),
		CopyAttributes: slices.Clone(d.CopyAttributes),
	}, nil
}

// CompileError is a structural error in a CUE definition.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var knownFields = []string{"operation", "transaction", "strategy", "fixable", "copy_attributes", "after"}

// CompileString compiles CUE source and returns every component under its
// top-level "component" field, in declaration order.
func CompileString(src, filename string) ([]Definition, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	return CompileComponents(v)
}

// CompileComponents compiles the components under v's "component" field.
// A missing field yields no components.
func CompileComponents(v cue.Value) ([]Definition, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}
	comps := v.LookupPath(cue.ParsePath("component"))
	if !comps.Exists() {
		return nil, nil
	}
	iter, err := comps.Fields()
	if err != nil {
		return nil, &CompileError{Field: "component", Message: "must be a struct of components", Pos: comps.Pos()}
	}

	var defs []Definition
	for iter.Next() {
		def, err := CompileComponent(iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

// CompileComponent compiles one component struct. Its name is the last
// label of its path.
func CompileComponent(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &Definition{Pos: v.Pos()}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		def.Name = sels[len(sels)-1].String()
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: def.Name, Message: "component must be a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		if !slices.Contains(knownFields, iter.Label()) {
			return nil, &CompileError{
				Field:   iter.Label(),
				Message: fmt.Sprintf("unknown field in component %s", def.Name),
				Pos:     iter.Value().Pos(),
			}
		}
	}

	opVal := v.LookupPath(cue.ParsePath("operation"))
	if !opVal.Exists() {
		return nil, &CompileError{Field: "operation", Message: "operation is required", Pos: v.Pos()}
	}
	if def.Operation, err = stringField(opVal, "operation"); err != nil {
		return nil, err
	}
	if def.Transaction, err = optionalString(v, "transaction"); err != nil {
		return nil, err
	}
	if def.Strategy, err = optionalString(v, "strategy"); err != nil {
		return nil, err
	}
	if def.Fixable, err = stringList(v, "fixable"); err != nil {
		return nil, err
	}
	if def.CopyAttributes, err = stringList(v, "copy_attributes"); err != nil {
		return nil, err
	}
	if def.After, err = stringList(v, "after"); err != nil {
		return nil, err
	}
	return def, nil
}

func stringField(v cue.Value, field string) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: v.Pos()}
	}
	return s, nil
}

func optionalString(parent cue.Value, field string) (string, error) {
	v := parent.LookupPath(cue.ParsePath(field))
	if !v.Exists() {
		return "", nil
	}
	return stringField(v, field)
}

func stringList(parent cue.Value, field string) ([]string, error) {
	v := parent.LookupPath(cue.ParsePath(field))
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: v.Pos()}
	}
	var out []string
	for i := 0; iter.Next(); i++ {
		s, err := stringField(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
