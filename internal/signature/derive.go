// Package signature derives an operation's input signature from its
// declared descriptor, and binds per-run inputs to it.
//
// Position 0 of every operation is the target document and position 1 the
// in/out entity. Inputs start at position 2.
package signature

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/value"
)

// Slot is one declared position of an operation.
type Slot struct {
	Name string
	Type Type

	// Nickname overrides the derived nickname.
	Nickname string

	// Description lines, joined with CRLF.
	Description []string

	// Default is used when an optional slot is not connected.
	Default value.Value
}

// Descriptor declares an operation's slots.
type Descriptor struct {
	Operation string
	Slots     []Slot
}

// Access is how a parameter reads its source.
type Access int

const (
	Item Access = iota
	ListAccess
)

func (a Access) String() string {
	if a == ListAccess {
		return "list"
	}
	return "item"
}

// Param is a derived input or output parameter.
type Param struct {
	Position    int
	Name        string
	Nickname    string
	Description string
	Kind        value.Kind
	Access      Access
	Optional    bool
	Default     value.Value

	// EntityKind is set for entity-valued parameters.
	EntityKind document.Kind

	// Enum is set for enum-valued parameters.
	Enum *Enum
}

// Signature is the immutable derived signature of an operation.
type Signature struct {
	Operation string
	Output    Param
	Inputs    []Param
	Filter    EntityFilter
}

// Input returns the input parameter with the given name.
func (s *Signature) Input(name string) (Param, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Derive builds a Signature from d.
func Derive(d Descriptor) (*Signature, error) {
	if len(d.Slots) < 2 {
		return nil, shapeError(d.Operation, "", "operation must declare a document slot and an entity slot")
	}
	if d.Slots[0].Type.shape != shapeDocument {
		return nil, shapeError(d.Operation, d.Slots[0].Name, "slot 0 must be the target document")
	}

	out := d.Slots[1]
	if out.Type.shape != shapeRef || out.Type.elem == nil || out.Type.elem.entity == "" {
		return nil, shapeError(d.Operation, out.Name, "slot 1 must be a by-reference entity")
	}

	sig := &Signature{
		Operation: d.Operation,
		Output: Param{
			Position:    1,
			Name:        capitalize(out.Name),
			Nickname:    nickname(out),
			Description: strings.Join(out.Description, "\r\n"),
			Kind:        value.KindEntity,
			EntityKind:  out.Type.elem.entity,
		},
	}

	var filterKinds []document.Kind
	for pos := 2; pos < len(d.Slots); pos++ {
		slot := d.Slots[pos]
		if slot.Type.hasRef() {
			return nil, shapeError(d.Operation, slot.Name, fmt.Sprintf("by-reference slot at position %d; only position 1 may be by-reference", pos))
		}

		p := Param{
			Position:    pos,
			Name:        capitalize(slot.Name),
			Nickname:    nickname(slot),
			Description: strings.Join(slot.Description, "\r\n"),
		}

		t := slot.Type
		if t.shape == shapeOptional {
			p.Optional = true
			t = *t.elem
		}
		if t.shape == shapeList {
			p.Access = ListAccess
			t = *t.elem
		}
		if t.shape != shapePlain {
			return nil, shapeError(d.Operation, slot.Name, fmt.Sprintf("unsupported slot type %s", slot.Type))
		}

		p.Kind = t.kind
		p.Enum = t.enum
		p.EntityKind = t.entity

		switch {
		case t.entity == document.KindCategory:
			filterKinds = append(filterKinds, document.KindElement)
		case t.entity != "":
			filterKinds = append(filterKinds, t.entity)
		}

		if slot.Default != nil {
			if !p.Optional {
				return nil, shapeError(d.Operation, slot.Name, "default declared on a required slot")
			}
			if p.Access == ListAccess {
				return nil, shapeError(d.Operation, slot.Name, "default declared on a list slot")
			}
			def, err := checkDefault(p, slot.Default)
			if err != nil {
				return nil, err
			}
			p.Default = def
		}

		sig.Inputs = append(sig.Inputs, p)
	}

	for i, a := range sig.Inputs {
		for _, b := range sig.Inputs[i+1:] {
			if a.Name == b.Name {
				return nil, shapeError(d.Operation, a.Name, "duplicate parameter name")
			}
		}
	}

	sig.Filter = filterFor(filterKinds)
	return sig, nil
}

// filterFor applies the union rule: any root kind means every entity passes.
func filterFor(kinds []document.Kind) EntityFilter {
	if len(kinds) == 0 || slices.Contains(kinds, document.KindElement) {
		return EntityFilter{Any: true}
	}
	var union []document.Kind
	for _, k := range kinds {
		if !slices.Contains(union, k) {
			union = append(union, k)
		}
	}
	return EntityFilter{Kinds: union}
}

func checkDefault(p Param, def value.Value) (value.Value, error) {
	if p.Enum != nil {
		m, ok := p.Enum.Lookup(def)
		if !ok {
			return nil, &fault.Error{
				Code:    fault.CodeInvalidEnumValue,
				Message: fmt.Sprintf("default %s is not a legal %s value", value.String(def), p.Enum.Name),
				Slot:    p.Name,
			}
		}
		return p.Enum.Value(m), nil
	}
	if !value.AcceptsKind(p.Kind, def.Kind()) {
		return nil, &fault.Error{
			Code:    fault.CodeTypeMismatch,
			Message: fmt.Sprintf("default of kind %s does not match %s", def.Kind(), p.Kind),
			Slot:    p.Name,
		}
	}
	return def, nil
}

func shapeError(op, slot, msg string) error {
	return &fault.Error{
		Code:    fault.CodeUnsupportedSlotShape,
		Message: fmt.Sprintf("%s: %s", op, msg),
		Slot:    slot,
	}
}

// capitalize uppercases the first letter of s.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// nickname is the override when present, otherwise the uppercased first letter.
func nickname(s Slot) string {
	if s.Nickname != "" {
		return s.Nickname
	}
	r, size := utf8.DecodeRuneInString(s.Name)
	if size == 0 {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// Cache memoizes derived signatures by operation name.
type Cache struct {
	mu   sync.Mutex
	sigs map[string]*Signature
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{sigs: make(map[string]*Signature)}
}

// Derive returns the cached signature for d.Operation, deriving it on first use.
func (c *Cache) Derive(d Descriptor) (*Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sig, ok := c.sigs[d.Operation]; ok {
		return sig, nil
	}
	sig, err := Derive(d)
	if err != nil {
		return nil, err
	}
	c.sigs[d.Operation] = sig
	return sig, nil
}
