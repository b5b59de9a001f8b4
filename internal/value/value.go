package value

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// Kind names a member of the boundary value catalog.
type Kind string

const (
	KindNull      Kind = "null"
	KindBool      Kind = "bool"
	KindInt       Kind = "int"
	KindReal      Kind = "real"
	KindText      Kind = "text"
	KindID        Kind = "identifier"
	KindTime      Kind = "timestamp"
	KindTransform Kind = "transform"
	KindPoint     Kind = "point"
	KindVector    Kind = "vector"
	KindPlane     Kind = "plane"
	KindLine      Kind = "line"
	KindCircle    Kind = "circle"
	KindArc       Kind = "arc"
	KindCurve     Kind = "curve"
	KindSurface   Kind = "surface"
	KindSolid     Kind = "solid"
	KindMesh      Kind = "mesh"
	KindSubD      Kind = "subd"
	KindGeometry  Kind = "geometry"
	KindObject    Kind = "object"
	KindList      Kind = "list"
	KindEntity    Kind = "entity"
	KindEnum      Kind = "enum"
)

// shapeKinds are the kinds carried by Shape.
var shapeKinds = map[Kind]bool{
	KindCurve:    true,
	KindSurface:  true,
	KindSolid:    true,
	KindMesh:     true,
	KindSubD:     true,
	KindGeometry: true,
}

// IsShapeKind reports whether k is one of the control-point geometry kinds.
func IsShapeKind(k Kind) bool {
	return shapeKinds[k]
}

// AcceptsKind reports whether a value of kind got can be supplied where want is
// declared. Only exact matches are accepted, except that the generic geometry
// kind accepts every geometric kind. There are no numeric promotions.
func AcceptsKind(want, got Kind) bool {
	if want == got {
		return true
	}
	if want == KindGeometry {
		switch got {
		case KindPoint, KindVector, KindPlane, KindLine, KindCircle, KindArc, KindTransform:
			return true
		}
		return shapeKinds[got]
	}
	return false
}

// Value is a sealed interface over the boundary catalog.
type Value interface {
	Kind() Kind
	sealed()
}

// EntityID identifies an entity inside one document. IDs are never reused.
type EntityID int64

// Null marks a present value that is explicitly null.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) sealed()    {}

type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (Bool) sealed()    {}

type Int int64

func (Int) Kind() Kind { return KindInt }
func (Int) sealed()    {}

type Real float64

func (Real) Kind() Kind { return KindReal }
func (Real) sealed()    {}

type Text string

func (Text) Kind() Kind { return KindText }
func (Text) sealed()    {}

// ID is an opaque identifier value.
type ID uuid.UUID

func (ID) Kind() Kind { return KindID }
func (ID) sealed()    {}

// Time is a timestamp. Encoded in UTC.
type Time time.Time

func (Time) Kind() Kind { return KindTime }
func (Time) sealed()    {}

// Transform is a row-major 4x4 matrix.
type Transform [16]float64

func (Transform) Kind() Kind { return KindTransform }
func (Transform) sealed()    {}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

type Point struct{ X, Y, Z float64 }

func (Point) Kind() Kind { return KindPoint }
func (Point) sealed()    {}

type Vector struct{ X, Y, Z float64 }

func (Vector) Kind() Kind { return KindVector }
func (Vector) sealed()    {}

type Plane struct {
	Origin Point
	XAxis  Vector
	YAxis  Vector
}

func (Plane) Kind() Kind { return KindPlane }
func (Plane) sealed()    {}

// WorldXY is the plane at the origin spanned by the X and Y axes.
func WorldXY() Plane {
	return Plane{XAxis: Vector{X: 1}, YAxis: Vector{Y: 1}}
}

type Line struct{ From, To Point }

func (Line) Kind() Kind { return KindLine }
func (Line) sealed()    {}

type Circle struct {
	Plane  Plane
	Radius float64
}

func (Circle) Kind() Kind { return KindCircle }
func (Circle) sealed()    {}

// Arc is a portion of a circle between two angles in radians.
type Arc struct {
	Circle     Circle
	Start, End float64
}

func (Arc) Kind() Kind { return KindArc }
func (Arc) sealed()    {}

// Shape carries curve, surface, solid, mesh, subd and generic geometry as a
// kind plus control points. The host owns the real geometry kernel.
type Shape struct {
	Type   Kind
	Points []Point
}

func (s Shape) Kind() Kind { return s.Type }
func (Shape) sealed()      {}

// NewShape returns a Shape of the given kind. It panics on a non-shape kind.
func NewShape(k Kind, pts ...Point) Shape {
	if !shapeKinds[k] {
		panic(fmt.Sprintf("value: %q is not a shape kind", k))
	}
	return Shape{Type: k, Points: pts}
}

type List []Value

func (List) Kind() Kind { return KindList }
func (List) sealed()    {}

// Object is a generic keyed record. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) Kind() Kind { return KindObject }
func (Object) sealed()    {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Clone returns a shallow copy of o.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Ref references an entity in a specific document.
type Ref struct {
	Document string
	ID       EntityID
}

func (Ref) Kind() Kind { return KindEntity }
func (Ref) sealed()    {}

// Enum is a bound member of a named enumeration.
type Enum struct {
	Type  string
	Value int64
	Name  string
}

func (Enum) Kind() Kind { return KindEnum }
func (Enum) sealed()    {}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}
