package signature

import (
	"fmt"
	"strings"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/value"
)

type shape int

const (
	shapePlain shape = iota
	shapeOptional
	shapeList
	shapeRef
	shapeDocument
)

// Type is a declared slot type. Build it with Of, Entity, EnumOf and the
// Optional, List and Ref wrappers.
type Type struct {
	shape  shape
	elem   *Type
	kind   value.Kind
	entity document.Kind
	enum   *Enum
}

// Of declares a plain value kind.
func Of(k value.Kind) Type {
	return Type{kind: k}
}

// Entity declares a reference to an entity of kind k.
func Entity(k document.Kind) Type {
	return Type{kind: value.KindEntity, entity: k}
}

// EnumOf declares an enum-valued slot.
func EnumOf(e *Enum) Type {
	return Type{kind: value.KindEnum, enum: e}
}

// Optional marks t as optional.
func Optional(t Type) Type {
	return Type{shape: shapeOptional, elem: &t}
}

// List marks t as list access.
func List(t Type) Type {
	return Type{shape: shapeList, elem: &t}
}

// Ref marks t as the in/out entity slot. Only legal at position 1.
func Ref(t Type) Type {
	return Type{shape: shapeRef, elem: &t}
}

// DocumentType declares the target document slot. Only legal at position 0.
func DocumentType() Type {
	return Type{shape: shapeDocument}
}

func (t Type) String() string {
	switch t.shape {
	case shapeOptional:
		return "optional " + t.elem.String()
	case shapeList:
		return "list " + t.elem.String()
	case shapeRef:
		return "ref " + t.elem.String()
	case shapeDocument:
		return "document"
	}
	switch {
	case t.enum != nil:
		return "enum " + t.enum.Name
	case t.entity != "":
		return string(t.entity)
	}
	return string(t.kind)
}

// hasRef reports whether t contains a Ref wrapper at any depth.
func (t Type) hasRef() bool {
	if t.shape == shapeRef {
		return true
	}
	if t.elem != nil {
		return t.elem.hasRef()
	}
	return false
}

// Member is one named enum value.
type Member struct {
	Name  string
	Value int64
}

// Enum is a named enumeration with its legal members. Members left out of
// the legal set (typically an "invalid" sentinel) are rejected when bound.
type Enum struct {
	Name    string
	Members []Member
}

// NewEnum creates an enum from members in declaration order.
func NewEnum(name string, members ...Member) *Enum {
	return &Enum{Name: name, Members: members}
}

// Lookup resolves v (an Int or an Enum of this type) to a legal member.
// Text is never accepted; boundaries that read member names use Parse.
func (e *Enum) Lookup(v value.Value) (Member, bool) {
	switch val := v.(type) {
	case value.Int:
		for _, m := range e.Members {
			if m.Value == int64(val) {
				return m, true
			}
		}
	case value.Enum:
		if val.Type != e.Name {
			return Member{}, false
		}
		for _, m := range e.Members {
			if m.Value == val.Value {
				return m, true
			}
		}
	}
	return Member{}, false
}

// Parse returns the legal member named exactly name.
func (e *Enum) Parse(name string) (Member, bool) {
	for _, m := range e.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// Value returns the bound value for m.
func (e *Enum) Value(m Member) value.Enum {
	return value.Enum{Type: e.Name, Value: m.Value, Name: m.Name}
}

// Names lists legal member names in declaration order.
func (e *Enum) Names() []string {
	names := make([]string, len(e.Members))
	for i, m := range e.Members {
		names[i] = m.Name
	}
	return names
}

// EntityFilter decides which entity kinds are compatible with a signature's
// entity inputs.
type EntityFilter struct {
	// Any is set when the inputs accept every entity.
	Any bool

	// Kinds is the union of accepted kinds when Any is false.
	Kinds []document.Kind
}

// Accepts reports whether entities of kind k pass the filter.
func (f EntityFilter) Accepts(k document.Kind) bool {
	if f.Any {
		return true
	}
	for _, want := range f.Kinds {
		if k.IsA(want) {
			return true
		}
	}
	return false
}

func (f EntityFilter) String() string {
	if f.Any {
		return "any"
	}
	parts := make([]string, len(f.Kinds))
	for i, k := range f.Kinds {
		parts[i] = string(k)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return fmt.Sprintf("any of (%s)", strings.Join(parts, ", "))
}
