package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Marshal encodes v in its tagged canonical JSON form:
// {"kind":"<kind>","value":<payload>}.
//
// Output is deterministic: object keys in RFC 8785 order, strings NFC
// normalized, no HTML escaping, reals in shortest round-trip form.
// NaN and infinities are rejected.
func Marshal(v Value) ([]byte, error) {
	tree, err := toTree(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustMarshal is like Marshal but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustMarshal(v Value) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// MarshalTree encodes an untagged tree of map[string]any, []any, string,
// bool, int64, float64 and nil with the same canonical rules as Marshal.
func MarshalTree(tree any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes the tagged JSON form produced by Marshal.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return fromTree(raw)
}

// Equal reports whether a and b have identical canonical encodings.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return IsNull(a) && IsNull(b)
	}
	ab, err := Marshal(a)
	if err != nil {
		return false
	}
	bb, err := Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func tagged(k Kind, payload any) map[string]any {
	m := map[string]any{"kind": string(k)}
	if payload != nil {
		m["value"] = payload
	}
	return m
}

func toTree(v Value) (any, error) {
	switch val := v.(type) {
	case nil, Null:
		return tagged(KindNull, nil), nil
	case Bool:
		return tagged(KindBool, bool(val)), nil
	case Int:
		return tagged(KindInt, int64(val)), nil
	case Real:
		if err := checkFinite(float64(val)); err != nil {
			return nil, err
		}
		return tagged(KindReal, float64(val)), nil
	case Text:
		return tagged(KindText, string(val)), nil
	case ID:
		return tagged(KindID, uuid.UUID(val).String()), nil
	case Time:
		return tagged(KindTime, time.Time(val).UTC().Format(time.RFC3339Nano)), nil
	case Transform:
		out := make([]any, len(val))
		for i, f := range val {
			if err := checkFinite(f); err != nil {
				return nil, err
			}
			out[i] = f
		}
		return tagged(KindTransform, out), nil
	case Point:
		p, err := triple(val.X, val.Y, val.Z)
		if err != nil {
			return nil, err
		}
		return tagged(KindPoint, p), nil
	case Vector:
		p, err := triple(val.X, val.Y, val.Z)
		if err != nil {
			return nil, err
		}
		return tagged(KindVector, p), nil
	case Plane:
		p, err := planeTree(val)
		if err != nil {
			return nil, err
		}
		return tagged(KindPlane, p), nil
	case Line:
		from, err := triple(val.From.X, val.From.Y, val.From.Z)
		if err != nil {
			return nil, err
		}
		to, err := triple(val.To.X, val.To.Y, val.To.Z)
		if err != nil {
			return nil, err
		}
		return tagged(KindLine, map[string]any{"from": from, "to": to}), nil
	case Circle:
		c, err := circleTree(val)
		if err != nil {
			return nil, err
		}
		return tagged(KindCircle, c), nil
	case Arc:
		c, err := circleTree(val.Circle)
		if err != nil {
			return nil, err
		}
		if err := checkFinite(val.Start); err != nil {
			return nil, err
		}
		if err := checkFinite(val.End); err != nil {
			return nil, err
		}
		return tagged(KindArc, map[string]any{"circle": c, "start": val.Start, "end": val.End}), nil
	case Shape:
		if !shapeKinds[val.Type] {
			return nil, fmt.Errorf("shape has non-shape kind %q", val.Type)
		}
		pts := make([]any, len(val.Points))
		for i, p := range val.Points {
			t, err := triple(p.X, p.Y, p.Z)
			if err != nil {
				return nil, fmt.Errorf("points[%d]: %w", i, err)
			}
			pts[i] = t
		}
		return tagged(val.Type, map[string]any{"points": pts}), nil
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			t, err := toTree(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = t
		}
		return tagged(KindList, out), nil
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			t, err := toTree(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			out[k] = t
		}
		return tagged(KindObject, out), nil
	case Ref:
		return tagged(KindEntity, map[string]any{"document": val.Document, "id": int64(val.ID)}), nil
	case Enum:
		return tagged(KindEnum, map[string]any{"type": val.Type, "value": val.Value, "name": val.Name}), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

func checkFinite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite real %v", f)
	}
	return nil
}

func triple(x, y, z float64) ([]any, error) {
	for _, f := range []float64{x, y, z} {
		if err := checkFinite(f); err != nil {
			return nil, err
		}
	}
	return []any{x, y, z}, nil
}

func planeTree(p Plane) (map[string]any, error) {
	o, err := triple(p.Origin.X, p.Origin.Y, p.Origin.Z)
	if err != nil {
		return nil, err
	}
	x, err := triple(p.XAxis.X, p.XAxis.Y, p.XAxis.Z)
	if err != nil {
		return nil, err
	}
	y, err := triple(p.YAxis.X, p.YAxis.Y, p.YAxis.Z)
	if err != nil {
		return nil, err
	}
	return map[string]any{"origin": o, "x": x, "y": y}, nil
}

func circleTree(c Circle) (map[string]any, error) {
	p, err := planeTree(c.Plane)
	if err != nil {
		return nil, err
	}
	if err := checkFinite(c.Radius); err != nil {
		return nil, err
	}
	return map[string]any{"plane": p, "radius": c.Radius}, nil
}

// writeCanonical serializes a tree of map[string]any, []any, string, bool,
// int64 and float64.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		if val == 0 {
			// -0 and 0 encode identically
			buf.WriteString("0")
			return nil
		}
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case string:
		writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortUTF16(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported tree node: %T", v)
	}
	return nil
}

// writeCanonicalString escapes only quote, backslash and control characters
// (RFC 8785), after NFC normalization.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			fmt.Fprintf(buf, `\u%04x`, r)
		default:
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}

func sortUTF16(keys []string) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && compareUTF16(keys[j-1], keys[j]) > 0; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

func fromTree(raw any) (Value, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value must be a tagged object, got %T", raw)
	}
	ks, ok := m["kind"].(string)
	if !ok {
		return nil, fmt.Errorf("value is missing its kind tag")
	}
	k := Kind(ks)
	payload := m["value"]

	switch k {
	case KindNull:
		return Null{}, nil
	case KindBool:
		b, ok := payload.(bool)
		if !ok {
			return nil, fmt.Errorf("bool payload is %T", payload)
		}
		return Bool(b), nil
	case KindInt:
		n, ok := payload.(json.Number)
		if !ok {
			return nil, fmt.Errorf("int payload is %T", payload)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("int payload: %w", err)
		}
		return Int(i), nil
	case KindReal:
		f, err := number(payload)
		if err != nil {
			return nil, err
		}
		return Real(f), nil
	case KindText:
		s, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("text payload is %T", payload)
		}
		return Text(s), nil
	case KindID:
		s, _ := payload.(string)
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("identifier payload: %w", err)
		}
		return ID(id), nil
	case KindTime:
		s, _ := payload.(string)
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("timestamp payload: %w", err)
		}
		return Time(ts.UTC()), nil
	case KindTransform:
		arr, ok := payload.([]any)
		if !ok || len(arr) != 16 {
			return nil, fmt.Errorf("transform payload must have 16 numbers")
		}
		var t Transform
		for i, elem := range arr {
			f, err := number(elem)
			if err != nil {
				return nil, err
			}
			t[i] = f
		}
		return t, nil
	case KindPoint:
		x, y, z, err := readTriple(payload)
		if err != nil {
			return nil, err
		}
		return Point{x, y, z}, nil
	case KindVector:
		x, y, z, err := readTriple(payload)
		if err != nil {
			return nil, err
		}
		return Vector{x, y, z}, nil
	case KindPlane:
		return readPlane(payload)
	case KindLine:
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("line payload is %T", payload)
		}
		from, err := readPoint(obj["from"])
		if err != nil {
			return nil, err
		}
		to, err := readPoint(obj["to"])
		if err != nil {
			return nil, err
		}
		return Line{From: from, To: to}, nil
	case KindCircle:
		return readCircle(payload)
	case KindArc:
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("arc payload is %T", payload)
		}
		c, err := readCircle(obj["circle"])
		if err != nil {
			return nil, err
		}
		start, err := number(obj["start"])
		if err != nil {
			return nil, err
		}
		end, err := number(obj["end"])
		if err != nil {
			return nil, err
		}
		return Arc{Circle: c, Start: start, End: end}, nil
	case KindCurve, KindSurface, KindSolid, KindMesh, KindSubD, KindGeometry:
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s payload is %T", k, payload)
		}
		arr, _ := obj["points"].([]any)
		pts := make([]Point, len(arr))
		for i, elem := range arr {
			p, err := readPoint(elem)
			if err != nil {
				return nil, fmt.Errorf("points[%d]: %w", i, err)
			}
			pts[i] = p
		}
		return Shape{Type: k, Points: pts}, nil
	case KindList:
		arr, ok := payload.([]any)
		if !ok {
			return nil, fmt.Errorf("list payload is %T", payload)
		}
		out := make(List, len(arr))
		for i, elem := range arr {
			v, err := fromTree(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case KindObject:
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("object payload is %T", payload)
		}
		out := make(Object, len(obj))
		for key, elem := range obj {
			v, err := fromTree(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", key, err)
			}
			out[key] = v
		}
		return out, nil
	case KindEntity:
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entity payload is %T", payload)
		}
		doc, _ := obj["document"].(string)
		n, ok := obj["id"].(json.Number)
		if !ok {
			return nil, fmt.Errorf("entity id is %T", obj["id"])
		}
		id, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("entity id: %w", err)
		}
		return Ref{Document: doc, ID: EntityID(id)}, nil
	case KindEnum:
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("enum payload is %T", payload)
		}
		typ, _ := obj["type"].(string)
		name, _ := obj["name"].(string)
		n, ok := obj["value"].(json.Number)
		if !ok {
			return nil, fmt.Errorf("enum value is %T", obj["value"])
		}
		iv, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("enum value: %w", err)
		}
		return Enum{Type: typ, Value: iv, Name: name}, nil
	default:
		return nil, fmt.Errorf("unknown value kind %q", k)
	}
}

func number(v any) (float64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	return n.Float64()
}

func readTriple(v any) (float64, float64, float64, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 3 {
		return 0, 0, 0, fmt.Errorf("expected [x, y, z]")
	}
	var out [3]float64
	for i, elem := range arr {
		f, err := number(elem)
		if err != nil {
			return 0, 0, 0, err
		}
		out[i] = f
	}
	return out[0], out[1], out[2], nil
}

func readPoint(v any) (Point, error) {
	x, y, z, err := readTriple(v)
	return Point{x, y, z}, err
}

func readPlane(v any) (Plane, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Plane{}, fmt.Errorf("plane payload is %T", v)
	}
	origin, err := readPoint(obj["origin"])
	if err != nil {
		return Plane{}, fmt.Errorf("plane origin: %w", err)
	}
	x, y, z, err := readTriple(obj["x"])
	if err != nil {
		return Plane{}, fmt.Errorf("plane x axis: %w", err)
	}
	xAxis := Vector{x, y, z}
	x, y, z, err = readTriple(obj["y"])
	if err != nil {
		return Plane{}, fmt.Errorf("plane y axis: %w", err)
	}
	return Plane{Origin: origin, XAxis: xAxis, YAxis: Vector{x, y, z}}, nil
}

func readCircle(v any) (Circle, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Circle{}, fmt.Errorf("circle payload is %T", v)
	}
	p, err := readPlane(obj["plane"])
	if err != nil {
		return Circle{}, err
	}
	r, err := number(obj["radius"])
	if err != nil {
		return Circle{}, fmt.Errorf("circle radius: %w", err)
	}
	return Circle{Plane: p, Radius: r}, nil
}
