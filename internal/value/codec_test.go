package value

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X      int
	Y      int    `json:"y"`
	Hidden string `json:"-"`
	secret string
	OnTick func()
}

type node struct {
	Name string
	Next *node
}

type onlyPrivate struct {
	n int
}

type opaqueThing struct{}

type explodingMarshaler struct{ ID int }

func (explodingMarshaler) MarshalJSON() ([]byte, error) { panic("boom") }

type failingMarshaler struct{ ID int }

func (failingMarshaler) MarshalJSON() ([]byte, error) { return nil, errors.New("no encoding") }

type brokenStringer struct{ n int }

func (brokenStringer) String() string { panic("no text") }

func (opaqueThing) AutopsyOpaque() {}

func TestCanonicalizePrimitives(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Value
	}{
		{"nil", nil, Null{}},
		{"bool", true, Bool(true)},
		{"int", 42, Int(42)},
		{"int8", int8(-3), Int(-3)},
		{"uint", uint(7), Int(7)},
		{"huge uint", uint64(1 << 63), Float(float64(uint64(1 << 63)))},
		{"float", 2.5, Float(2.5)},
		{"float32", float32(0.5), Float(0.5)},
		{"string", "hello", String("hello")},
		{"func", func() {}, String("<func>")},
		{"chan", make(chan int), String("<chan>")},
		{"nil pointer", (*point)(nil), Null{}},
		{"nil slice", []int(nil), Null{}},
		{"complex", complex(1, 2), String("<complex128: (1+2i)>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Canonicalize(tt.input))
		})
	}
}

func TestCanonicalizeContainers(t *testing.T) {
	got := Canonicalize(map[string]any{
		"list":  []int{1, 2, 3},
		"tuple": [2]string{"a", "b"},
		"map":   map[int]string{1: "one"},
	})

	assert.Equal(t, Object{
		"list":  Array{Int(1), Int(2), Int(3)},
		"tuple": Array{String("a"), String("b")},
		"map":   Object{"1": String("one")},
	}, got)
}

func TestCanonicalizeSetIsSorted(t *testing.T) {
	set := map[string]struct{}{"c": {}, "a": {}, "b": {}}
	assert.Equal(t, Array{String("a"), String("b"), String("c")}, Canonicalize(set))
}

func TestCanonicalizeStructExportedFieldsOnly(t *testing.T) {
	got := Canonicalize(point{X: 1, Y: 2, Hidden: "h", secret: "s", OnTick: func() {}})
	assert.Equal(t, Object{"X": Int(1), "y": Int(2)}, got)
}

func TestCanonicalizeStructWithoutExportedFields(t *testing.T) {
	got := Canonicalize(onlyPrivate{n: 3})
	assert.Equal(t, String("<onlyPrivate: {n:3}>"), got)
}

func TestCanonicalizeMarshalerPanic(t *testing.T) {
	assert.Equal(t, String("<codec-error: boom>"), Canonicalize(explodingMarshaler{ID: 1}))
	assert.Equal(t, String("<codec-error: boom>"), Canonicalize([]any{1, explodingMarshaler{}}))
}

func TestCanonicalizeMarshalerError(t *testing.T) {
	assert.Equal(t, String("<failingMarshaler: no encoding>"), Canonicalize(failingMarshaler{}))
}

func TestCanonicalizeUnrepresentable(t *testing.T) {
	assert.Equal(t, String("<brokenStringer: (unable to represent)>"), Canonicalize(brokenStringer{n: 1}))
}

func TestCanonicalizeCircularReference(t *testing.T) {
	n := &node{Name: "a"}
	n.Next = n

	got := Canonicalize(n)
	require.IsType(t, Object{}, got)
	obj := got.(Object)
	assert.Equal(t, String("a"), obj["Name"])
	assert.Equal(t, String(CircularReference), obj["Next"])
}

func TestCanonicalizeSelfContainingSlice(t *testing.T) {
	s := []any{1, nil}
	s[1] = s

	got := Canonicalize(s)
	assert.Equal(t, Array{Int(1), String(CircularReference)}, got)
}

func TestCanonicalizeSharedReferenceIsNotCircular(t *testing.T) {
	shared := &node{Name: "shared"}
	got := Canonicalize([]*node{shared, shared})

	arr := got.(Array)
	require.Len(t, arr, 2)
	assert.Equal(t, arr[0], arr[1])
}

func TestCanonicalizeMaxDepth(t *testing.T) {
	var nested any = "leaf"
	for i := 0; i < 12; i++ {
		nested = []any{nested}
	}

	got := Canonicalize(nested)
	for i := 0; i < MaxDepth; i++ {
		arr, ok := got.(Array)
		require.True(t, ok, "level %d should be an array", i)
		got = arr[0]
	}
	assert.Equal(t, String(MaxDepthReached), got)
}

func TestCanonicalizeDepthBound(t *testing.T) {
	assert.Equal(t, String(MaxDepthReached), CanonicalizeDepth(1, 0))
	assert.Equal(t, Array{String(MaxDepthReached)}, CanonicalizeDepth([]int{1}, 1))
}

func TestCanonicalizeLongStringTruncated(t *testing.T) {
	got := Canonicalize(strings.Repeat("x", 1500)).(String)
	assert.Len(t, string(got), 1000)
	assert.True(t, strings.HasSuffix(string(got), "..."))
}

func TestCanonicalizeSpecialTypes(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, String("2026-01-02T03:04:05Z"), Canonicalize(ts))
	assert.Equal(t, String("<errorString: boom>"), Canonicalize(errors.New("boom")))
	assert.Equal(t, String("<autopsy.opaqueThing>"), Canonicalize(opaqueThing{}))
}

func TestCanonicalizeDeterministic(t *testing.T) {
	a := map[string]any{"k": []any{1, "x", map[string]int{"b": 2, "a": 1}}}
	b := map[string]any{"k": []any{1, "x", map[string]int{"a": 1, "b": 2}}}
	assert.Equal(t, CanonicalString(a), CanonicalString(b))
}

func TestKey(t *testing.T) {
	assert.Equal(t, 5, Key(5))
	assert.Equal(t, "hello", Key("hello"))
	assert.Nil(t, Key(nil))
	assert.Equal(t, "[1,2,3]", Key([]int{1, 2, 3}))
	assert.Equal(t, `{"k":"v"}`, Key(map[string]string{"k": "v"}))
}

func TestKeyCollisionBetweenTypes(t *testing.T) {
	// Unhashable values with equal canonical text share a bucket.
	assert.Equal(t, Key([]int{1, 2}), Key([]any{1, 2}))
}
