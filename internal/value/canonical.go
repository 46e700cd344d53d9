package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON.
// This is the serialization used to derive count keys, so two values that
// are structurally equal after canonicalization produce identical bytes.
//
// Differences from Marshal:
//  1. Strings are NFC normalized
//  2. No HTML escaping (< > & are NOT escaped)
//  3. U+2028 and U+2029 are written literally
func MarshalCanonical(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Float:
		return val.MarshalJSON()
	case String:
		return marshalCanonicalString(string(val))
	case Array:
		return marshalCanonicalArray(val)
	case Object:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalString escapes only control characters, backslash and quote.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	result := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeLineSeparators(result), nil
}

// unescapeLineSeparators turns \u2028 and \u2029 escapes back into literal
// characters. An escape preceded by an odd run of backslashes is itself
// escaped text (\\u2028) and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+6 <= len(data) && bytes.HasPrefix(data[i:], []byte(`\u202`)) && (data[i+5] == '8' || data[i+5] == '9') {
			run := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				run++
			}
			if run%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func marshalCanonicalArray(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CanonicalString canonicalizes v and returns its canonical JSON text.
// Marshal failures are reported inline as a codec-error sentinel.
func CanonicalString(v any) string {
	b, err := MarshalCanonical(Canonicalize(v))
	if err != nil {
		return fmt.Sprintf("%q", "<codec-error: "+err.Error()+">")
	}
	return string(b)
}
