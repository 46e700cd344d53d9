package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"float", Float(0.25), "0.25"},
		{"bool false", Bool(false), "false"},
		{"null", Null{}, "null"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array of ints", Array{Int(1), Int(2), Int(3)}, "[1,2,3]"},
		{"simple object", Object{"a": Int(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := Object{
		"z": Object{"b": Int(1), "a": Int(2)},
		"a": Int(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(String("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed U+00E9
	result, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(String("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	// Literal backslash followed by the text u2028 stays escaped
	result, err = MarshalCanonical(String(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}
