package value

import (
	"fmt"
	"math"
	"strconv"
)

// FromNative converts a decoded YAML/JSON tree into a Value.
//
// Mapping: nil → Null, bool → Bool, integers → Int, floats → Real,
// string → Text, []any → List, map[string]any → Object. Integral floats stay
// Real so that a document's "3.0" is not silently turned into an Int.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(int64(val)), nil
	case float64:
		if err := checkFinite(val); err != nil {
			return nil, err
		}
		return Real(val), nil
	case string:
		return Text(val), nil
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			ev, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported native type: %T", v)
	}
}

// String renders v for diagnostics and traces.
func String(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Real:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Text:
		return fmt.Sprintf("%q", string(val))
	case Ref:
		return fmt.Sprintf("%s#%d", val.Document, val.ID)
	case Enum:
		return fmt.Sprintf("%s.%s", val.Type, val.Name)
	default:
		b, err := Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.Kind())
		}
		return string(b)
	}
}
