package callstack

import (
	"maps"
	"regexp"
	"slices"
	"strings"
)

// Variable is a named binding captured from a frame.
type Variable struct {
	Name  string
	Value any
}

// Frame is one resolved level of a call chain.
type Frame struct {
	function string
	typeName string
	module   string
	file     string
	line     int
	locals   map[string]any
}

// FrameInfo describes a frame for FromFrames.
type FrameInfo struct {
	Function string
	Type     string
	Module   string
	File     string
	Line     int
	Locals   map[string]any
}

func newFrame(info FrameInfo) *Frame {
	return &Frame{
		function: info.Function,
		typeName: info.Type,
		module:   info.Module,
		file:     info.File,
		line:     info.Line,
		locals:   maps.Clone(info.Locals),
	}
}

// frameFromRuntime builds a Frame from a runtime function name and position.
func frameFromRuntime(qualified, file string, line int) *Frame {
	module, typ, fn := splitFuncName(qualified)
	return &Frame{function: fn, typeName: typ, module: module, file: file, line: line}
}

// AutopsyOpaque marks Frame as library-internal for the value codec.
func (*Frame) AutopsyOpaque() {}

// Function returns the short function name, without package or receiver.
func (f *Frame) Function() string { return f.function }

// TypeName returns the receiver type for methods, or "".
func (f *Frame) TypeName() string { return f.typeName }

// Module returns the package import path.
func (f *Frame) Module() string { return f.module }

// File returns the source file path.
func (f *Frame) File() string { return f.file }

// Line returns the source line.
func (f *Frame) Line() int { return f.line }

// Location returns the frame position as a Location.
func (f *Frame) Location() Location {
	return Location{File: f.file, Line: f.line, Function: f.function, Module: f.module}
}

// FullyQualifiedName returns "module.Type.function" or "module.function".
func (f *Frame) FullyQualifiedName() string {
	if f.typeName != "" {
		return f.module + "." + f.typeName + "." + f.function
	}
	return f.module + "." + f.function
}

// Variables returns a copy of the bindings captured for this frame.
func (f *Frame) Variables() map[string]any {
	if f.locals == nil {
		return map[string]any{}
	}
	return maps.Clone(f.locals)
}

// Variable looks up a captured binding by name.
func (f *Frame) Variable(name string) Result[Variable] {
	if v, ok := f.locals[name]; ok {
		return Ok(Variable{Name: name, Value: v})
	}
	return Err[Variable](ErrorInfo{
		Message: "Variable not found",
		Context: map[string]any{
			"variable_name":       name,
			"available_variables": slices.Sorted(maps.Keys(f.locals)),
		},
		Location: f.Location(),
	})
}

var closureSuffix = regexp.MustCompile(`^(func\d+|\d+|gowrap\d+|deferwrap\d+)$`)

// splitFuncName splits a runtime function name such as
// "github.com/acme/shop.(*Cart).Add" into module, receiver type and function.
func splitFuncName(qualified string) (module, typ, fn string) {
	if qualified == "" {
		return "<unknown>", "", "<unknown>"
	}
	slash := strings.LastIndex(qualified, "/")
	dot := strings.Index(qualified[slash+1:], ".")
	if dot < 0 {
		return "<unknown>", "", qualified
	}
	// the runtime escapes dots in the last path element as %2e
	module = strings.ReplaceAll(qualified[:slash+1+dot], "%2e", ".")
	rest := strings.ReplaceAll(qualified[slash+1+dot+1:], "[...]", "")

	parts := strings.Split(rest, ".")
	first := parts[0]
	if strings.HasPrefix(first, "(") && strings.HasSuffix(first, ")") && len(parts) > 1 {
		typ = strings.TrimPrefix(strings.TrimSuffix(first[1:], ")"), "*")
		return module, stripTypeParams(typ), strings.Join(parts[1:], ".")
	}
	if len(parts) > 1 && !closureSuffix.MatchString(parts[1]) {
		return module, stripTypeParams(first), strings.Join(parts[1:], ".")
	}
	return module, "", rest
}

func stripTypeParams(name string) string {
	if i := strings.IndexByte(name, '['); i >= 0 {
		return name[:i]
	}
	return name
}
