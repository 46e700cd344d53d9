package callstack

import (
	"fmt"
	"sort"
	"strings"
)

// Location is a source position captured when an error is raised.
type Location struct {
	File     string `json:"filename"`
	Line     int    `json:"lineno"`
	Function string `json:"function"`
	Module   string `json:"module"`
}

// String formats the location as "file:line in module.function".
func (l Location) String() string {
	return fmt.Sprintf("%s:%d in %s.%s", l.File, l.Line, l.Module, l.Function)
}

// ErrorInfo describes why a navigation step failed.
//
// Context carries structured details such as requested_index and
// available_count. Location is the first caller outside this library.
type ErrorInfo struct {
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Location Location       `json:"location"`
}

// Error implements the error interface.
func (e ErrorInfo) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString(" (")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
	}
	b.WriteString(")")
	return b.String()
}

// Result is either Ok(value) or Err(ErrorInfo).
//
// The zero Result is Ok with the zero value of T.
type Result[T any] struct {
	value T
	err   *ErrorInfo
}

// Ok returns a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err returns a failed Result.
func Err[T any](info ErrorInfo) Result[T] {
	return Result[T]{err: &info}
}

// NewResult builds a Result from exactly one of value or info.
// Passing both or neither is a programming error and panics.
func NewResult[T any](value *T, info *ErrorInfo) Result[T] {
	switch {
	case value != nil && info != nil:
		panic("callstack: cannot have both value and error")
	case value == nil && info == nil:
		panic("callstack: must have either value or error")
	case info != nil:
		return Err[T](*info)
	default:
		return Ok(*value)
	}
}

// IsOk reports whether r holds a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// IsErr reports whether r holds an error.
func (r Result[T]) IsErr() bool { return r.err != nil }

// Value returns the held value. It panics when r is an Err.
func (r Result[T]) Value() T {
	if r.err != nil {
		panic("Cannot access value of error result: " + r.err.Message)
	}
	return r.value
}

// Error returns the held ErrorInfo. It panics when r is Ok.
func (r Result[T]) Error() ErrorInfo {
	if r.err == nil {
		panic("Cannot access error of success result")
	}
	return *r.err
}

// ValueOr returns the held value, or def when r is an Err.
func (r Result[T]) ValueOr(def T) T {
	if r.err != nil {
		return def
	}
	return r.value
}

// String renders the result for debugging.
func (r Result[T]) String() string {
	if r.err != nil {
		return fmt.Sprintf("Err(%s)", r.err.Error())
	}
	return fmt.Sprintf("Ok(%v)", r.value)
}

// Map applies fn to an Ok value. An Err passes through unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	return Ok(fn(r.value))
}

// Then chains a fallible step. The first error in the chain wins.
func Then[T, U any](r Result[T], fn func(T) Result[U]) Result[U] {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	return fn(r.value)
}
