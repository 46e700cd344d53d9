package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Compile-time check via assignment
	var _ Value = Null{}
	var _ Value = Bool(true)
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = String("test")
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{
		"zebra":  String("z"),
		"apple":  String("a"),
		"banana": String("b"),
	}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestObjectSortedKeysUTF16Order(t *testing.T) {
	obj := Object{
		"\ue000":     Int(1),
		"\U00010000": Int(2),
	}
	// U+10000 encodes as the surrogate 0xD800 which sorts before 0xE000
	assert.Equal(t, []string{"\U00010000", "\ue000"}, obj.SortedKeys())
}

func TestMarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"nil", nil, "null"},
		{"null", Null{}, "null"},
		{"bool", Bool(true), "true"},
		{"int", Int(-7), "-7"},
		{"float", Float(1.5), "1.5"},
		{"string", String("hi"), `"hi"`},
		{"empty array", Array{}, "[]"},
		{"nil array", Array(nil), "[]"},
		{"nested", Object{"b": Array{Int(1)}, "a": Null{}}, `{"a":null,"b":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestFloatMarshalNonFinite(t *testing.T) {
	got, err := json.Marshal(Float(math.Inf(1)))
	require.NoError(t, err)
	assert.Equal(t, `"Infinity"`, string(got))
}

func TestSanitizeFloat(t *testing.T) {
	assert.Equal(t, String("Infinity"), SanitizeFloat(math.Inf(1)))
	assert.Equal(t, String("-Infinity"), SanitizeFloat(math.Inf(-1)))
	assert.Equal(t, String("NaN"), SanitizeFloat(math.NaN()))
	assert.Equal(t, Float(2.25), SanitizeFloat(2.25))
}

func TestFloatSanitizationRoundTrip(t *testing.T) {
	input := map[string]float64{
		"a": math.Inf(1),
		"b": math.Inf(-1),
		"c": math.NaN(),
		"d": 1.5,
	}

	// encoding/json rejects NaN and Inf, so a successful Marshal proves
	// nothing non-finite survived canonicalization.
	data, err := json.Marshal(Canonicalize(input))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, map[string]any{
		"a": "Infinity",
		"b": "-Infinity",
		"c": "NaN",
		"d": 1.5,
	}, decoded)
}

func TestPlain(t *testing.T) {
	v := Object{
		"list": Array{Int(1), Float(2.5), Bool(false), Null{}},
		"name": String("x"),
	}
	assert.Equal(t, map[string]any{
		"list": []any{int64(1), 2.5, false, nil},
		"name": "x",
	}, Plain(v))
}
