package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"
	"unicode/utf8"
)

// MaxDepth is the default recursion bound for Canonicalize.
const MaxDepth = 10

// maxStringRunes is the length past which strings are truncated.
const maxStringRunes = 1000

// Sentinel strings emitted in place of values that cannot be walked.
const (
	CircularReference = "<circular_reference>"
	MaxDepthReached   = "<max_depth_reached>"
)

// Opaque is implemented by library-internal objects (call stacks, frames,
// queries) that must never be walked when captured as user values.
// They are rendered as "<autopsy.TypeName>".
type Opaque interface {
	AutopsyOpaque()
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	valueType   = reflect.TypeOf((*Value)(nil)).Elem()
	opaqueType  = reflect.TypeOf((*Opaque)(nil)).Elem()
	marshalType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Canonicalize converts an arbitrary Go value into a JSON-safe Value tree
// using MaxDepth as the recursion bound. It never panics.
func Canonicalize(v any) Value {
	return CanonicalizeDepth(v, MaxDepth)
}

// CanonicalizeDepth is Canonicalize with an explicit recursion bound.
func CanonicalizeDepth(v any, maxDepth int) (out Value) {
	defer func() {
		if r := recover(); r != nil {
			out = String(fmt.Sprintf("<codec-error: %v>", r))
		}
	}()
	w := &walker{visiting: make(map[visitKey]struct{})}
	return w.walk(reflect.ValueOf(v), maxDepth)
}

// visitKey identifies a reference-typed value on the current walk path.
type visitKey struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type walker struct {
	visiting map[visitKey]struct{}
}

func (w *walker) walk(rv reflect.Value, depth int) Value {
	if depth <= 0 {
		return String(MaxDepthReached)
	}
	if !rv.IsValid() {
		return Null{}
	}

	typ := rv.Type()
	if typ.Implements(opaqueType) {
		return String("<autopsy." + typeName(typ) + ">")
	}

	switch typ.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return Null{}
		}
	}

	if typ.Implements(valueType) {
		return w.fromValue(rv.Interface().(Value), depth)
	}
	if typ == timeType {
		return String(rv.Interface().(time.Time).Format(time.RFC3339Nano))
	}
	if typ.Implements(marshalType) {
		return w.fromMarshaler(rv, depth)
	}
	if typ.Implements(errorType) {
		return String(fmt.Sprintf("<%s: %s>", typeName(typ), rv.Interface().(error).Error()))
	}

	switch typ.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Float(float64(u))
		}
		return Int(int64(u))
	case reflect.Float32, reflect.Float64:
		return SanitizeFloat(rv.Float())
	case reflect.String:
		return String(truncate(rv.String()))
	case reflect.Func:
		return String("<func>")
	case reflect.Chan:
		return String("<chan>")
	case reflect.UnsafePointer:
		return String("<unsafe.Pointer>")
	case reflect.Interface:
		return w.walk(rv.Elem(), depth)
	case reflect.Pointer:
		return w.guard(rv, 0, func() Value { return w.walk(rv.Elem(), depth) })
	case reflect.Slice:
		return w.guard(rv, rv.Len(), func() Value { return w.walkList(rv, depth) })
	case reflect.Array:
		return w.walkList(rv, depth)
	case reflect.Map:
		return w.guard(rv, 0, func() Value { return w.walkMap(rv, depth) })
	case reflect.Struct:
		return w.walkStruct(rv, depth)
	}
	return repr(rv)
}

// guard tracks reference identity on the current path so self-referencing
// structures terminate with CircularReference.
func (w *walker) guard(rv reflect.Value, n int, fn func() Value) Value {
	key := visitKey{ptr: rv.Pointer(), typ: rv.Type(), len: n}
	if _, seen := w.visiting[key]; seen {
		return String(CircularReference)
	}
	w.visiting[key] = struct{}{}
	defer delete(w.visiting, key)
	return fn()
}

func (w *walker) walkList(rv reflect.Value, depth int) Value {
	out := make(Array, rv.Len())
	for i := range out {
		out[i] = w.walk(rv.Index(i), depth-1)
	}
	return out
}

func (w *walker) walkMap(rv reflect.Value, depth int) Value {
	// map[T]struct{} is the Go spelling of a set
	if elem := rv.Type().Elem(); elem.Kind() == reflect.Struct && elem.NumField() == 0 {
		return w.walkSet(rv, depth)
	}

	out := make(Object, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[mapKey(iter.Key())] = w.walk(iter.Value(), depth-1)
	}
	return out
}

func (w *walker) walkSet(rv reflect.Value, depth int) Value {
	type member struct {
		text string
		val  Value
	}
	members := make([]member, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		v := w.walk(k, depth-1)
		b, _ := MarshalCanonical(v)
		members = append(members, member{text: string(b), val: v})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].text < members[j].text })

	out := make(Array, len(members))
	for i, m := range members {
		out[i] = m.val
	}
	return out
}

func (w *walker) walkStruct(rv reflect.Value, depth int) Value {
	typ := rv.Type()
	out := make(Object)
	exported := 0
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		exported++
		name, skip := fieldName(field)
		if skip {
			continue
		}
		switch field.Type.Kind() {
		case reflect.Func, reflect.Chan:
			continue
		}
		fv := rv.Field(i)
		if field.Type.Implements(opaqueType) {
			continue
		}
		out[name] = w.walk(fv, depth-1)
	}
	if exported == 0 {
		return repr(rv)
	}
	return out
}

func (w *walker) fromMarshaler(rv reflect.Value, depth int) Value {
	data, err := rv.Interface().(json.Marshaler).MarshalJSON()
	if err != nil {
		return String(fmt.Sprintf("<%s: %s>", typeName(rv.Type()), err.Error()))
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return repr(rv)
	}
	return w.walk(reflect.ValueOf(numbers(decoded)), depth)
}

// fromValue re-sanitizes an already-built Value so hand-made trees obey the
// same depth and float rules.
func (w *walker) fromValue(v Value, depth int) Value {
	switch val := v.(type) {
	case Float:
		return SanitizeFloat(float64(val))
	case String:
		return String(truncate(string(val)))
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = w.walk(reflect.ValueOf(elem), depth-1)
		}
		return out
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = w.walk(reflect.ValueOf(elem), depth-1)
		}
		return out
	}
	return v
}

// numbers converts json.Number leaves into int64 or float64.
func numbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i := range val {
			val[i] = numbers(val[i])
		}
	case map[string]any:
		for k := range val {
			val[k] = numbers(val[k])
		}
	}
	return v
}

func fieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	if tag != "" {
		if comma := bytes.IndexByte([]byte(tag), ','); comma >= 0 {
			tag = tag[:comma]
		}
		if tag != "" {
			return tag, false
		}
	}
	return field.Name, false
}

func mapKey(k reflect.Value) string {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return safeSprint(k)
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxStringRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxStringRunes-3]) + "..."
}

// repr renders an undecomposable value as "<TypeName: repr>".
func repr(rv reflect.Value) Value {
	name := typeName(rv.Type())
	text, ok := sprint(rv)
	if !ok {
		return String("<" + name + ": (unable to represent)>")
	}
	return String("<" + name + ": " + truncate(text) + ">")
}

func sprint(rv reflect.Value) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if rv.CanInterface() {
		// fmt swallows String panics, so call it here where they are caught
		if s, isStringer := rv.Interface().(fmt.Stringer); isStringer {
			return s.String(), true
		}
		return fmt.Sprintf("%+v", rv.Interface()), true
	}
	return rv.String(), true
}

func safeSprint(rv reflect.Value) string {
	text, ok := sprint(rv)
	if !ok {
		return "<" + typeName(rv.Type()) + ": (unable to represent)>"
	}
	return text
}

func typeName(typ reflect.Type) string {
	for typ.Kind() == reflect.Pointer && typ.Name() == "" {
		typ = typ.Elem()
	}
	if name := typ.Name(); name != "" {
		return name
	}
	return typ.String()
}
