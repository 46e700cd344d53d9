package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface representing JSON-safe values.
// Only Null, Bool, Int, Float, String, Array and Object implement this.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Int represents an integer value.
type Int int64

func (Int) value() {}

// Float represents a finite floating point value.
// Construct through SanitizeFloat so non-finite values never reach a Float.
type Float float64

func (Float) value() {}

// MarshalJSON implements json.Marshaler for Float.
// A non-finite Float built by hand still encodes as its sentinel string.
func (f Float) MarshalJSON() ([]byte, error) {
	if s, ok := nonFinite(float64(f)); ok {
		return json.Marshal(s)
	}
	return json.Marshal(float64(f))
}

// String represents a string value.
type String string

func (String) value() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) value() {}

// MarshalJSON implements json.Marshaler for Array.
// A nil Array encodes as [] rather than null.
func (arr Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := Marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Object represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// MarshalJSON implements json.Marshaler for Object with RFC 8785 key ordering.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := Marshal(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
// Go's default string comparison uses UTF-8 which orders surrogate-range
// characters differently.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Marshal encodes a Value to JSON bytes. A nil Value encodes as null.
func Marshal(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(bool(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return val.MarshalJSON()
	case String:
		return json.Marshal(string(val))
	case Array:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// Plain converts a Value into the equivalent tree of Go primitives
// (nil, bool, int64, float64, string, []any, map[string]any).
func Plain(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Plain(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Plain(elem)
		}
		return out
	default:
		return nil
	}
}

// SanitizeFloat converts a float64 to a Value, substituting the exact
// strings "Infinity", "-Infinity" and "NaN" for non-finite inputs.
func SanitizeFloat(f float64) Value {
	if s, ok := nonFinite(f); ok {
		return String(s)
	}
	return Float(f)
}

func nonFinite(f float64) (string, bool) {
	switch {
	case math.IsInf(f, 1):
		return "Infinity", true
	case math.IsInf(f, -1):
		return "-Infinity", true
	case math.IsNaN(f):
		return "NaN", true
	}
	return "", false
}
