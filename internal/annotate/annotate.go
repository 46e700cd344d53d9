// Package annotate recovers the source text of observation arguments.
//
// Go keeps no argument names at runtime, so the recorder asks an Annotator
// for the expressions written at a call site and uses them as value names.
// Results are best-effort: a missing or unparsable file yields no arguments.
package annotate

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"sync"

	"golang.org/x/tools/go/ast/inspector"
)

// Arg is one argument expression of an observation call. Literals carry
// no name, so their Expr is empty.
type Arg struct {
	Expr            string
	IsStringLiteral bool
}

// Annotator resolves the argument expressions of the observation call at a
// source position. The list may be shorter than the call's argument list.
type Annotator interface {
	ArgumentExpressions(file string, line int) []Arg
}

// Nop never resolves anything.
type Nop struct{}

func (Nop) ArgumentExpressions(string, int) []Arg { return nil }

// DefaultMethods maps recognised call names to the number of leading
// arguments that are not observed values.
var DefaultMethods = map[string]int{
	"Log":      0,
	"LogNamed": 1,
}

// Source parses Go files on demand and caches the result per path.
type Source struct {
	methods map[string]int

	mu    sync.Mutex
	fset  *token.FileSet
	files map[string]*parsedFile
}

type parsedFile struct {
	file    *ast.File
	inspect *inspector.Inspector
}

// NewSource returns an Annotator over Go source files. methods overrides
// DefaultMethods when non-nil.
func NewSource(methods map[string]int) *Source {
	if methods == nil {
		methods = DefaultMethods
	}
	return &Source{
		methods: methods,
		fset:    token.NewFileSet(),
		files:   make(map[string]*parsedFile),
	}
}

// ArgumentExpressions returns the arguments of the innermost recognised
// call spanning line in file. Two unrelated recognised calls starting on
// the same line cannot be told apart and yield nil.
func (s *Source) ArgumentExpressions(file string, line int) []Arg {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf := s.load(file)
	if pf == nil {
		return nil
	}

	var (
		best      *ast.CallExpr
		lead      int
		start     int
		ambiguous bool
	)
	pf.inspect.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		skip, ok := s.methods[callName(call)]
		if !ok {
			return
		}
		first := s.fset.Position(call.Pos()).Line
		last := s.fset.Position(call.End()).Line
		if line < first || line > last || first < start {
			return
		}
		switch {
		case best == nil || first > start:
			ambiguous = false
		case call.Pos() >= best.Pos() && call.End() <= best.End():
			// nested in the current match
		default:
			// sibling call starting on the same line
			ambiguous = true
			return
		}
		best, lead, start = call, skip, first
	})
	if best == nil || ambiguous || len(best.Args) < lead {
		return nil
	}

	args := make([]Arg, 0, len(best.Args)-lead)
	for _, expr := range best.Args[lead:] {
		if lit, ok := expr.(*ast.BasicLit); ok {
			args = append(args, Arg{IsStringLiteral: lit.Kind == token.STRING})
			continue
		}
		args = append(args, Arg{Expr: s.render(expr)})
	}
	if best.Ellipsis.IsValid() && len(args) > 0 {
		// a spread slice has no per-value expressions
		args = args[:len(args)-1]
	}
	return args
}

// load parses file once. Failures are cached as nil.
func (s *Source) load(file string) *parsedFile {
	if pf, ok := s.files[file]; ok {
		return pf
	}
	var pf *parsedFile
	if f, err := parser.ParseFile(s.fset, file, nil, parser.SkipObjectResolution); err == nil {
		pf = &parsedFile{file: f, inspect: inspector.New([]*ast.File{f})}
	}
	s.files[file] = pf
	return pf
}

func (s *Source) render(expr ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, s.fset, expr); err != nil {
		return ""
	}
	return buf.String()
}

func callName(call *ast.CallExpr) string {
	switch fn := call.Fun.(type) {
	case *ast.Ident:
		return fn.Name
	case *ast.SelectorExpr:
		return fn.Sel.Name
	}
	return ""
}
