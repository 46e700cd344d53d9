package callstack

// Query is a frame at a relative depth that has not been resolved yet.
//
// Caller only increments the depth, so long chains are free. Accessors
// resolve on demand and return a Result; when the depth is out of range
// every accessor carries that original error, so a chain fails once at
// its final Value call.
type Query struct {
	provider Provider
	offset   int
}

// QueryAt returns a query against p at depth.
func QueryAt(p Provider, depth int) Query {
	return Query{provider: p, offset: depth}
}

// AutopsyOpaque marks Query as library-internal for the value codec.
func (Query) AutopsyOpaque() {}

// Depth returns the relative depth this query points at.
func (q Query) Depth() int { return q.offset }

// Caller returns the query one level further out.
func (q Query) Caller() Query {
	return Query{provider: q.provider, offset: q.offset + 1}
}

// Resolve asks the provider for the frame at this depth.
func (q Query) Resolve() Result[*Frame] {
	if q.provider == nil {
		return Err[*Frame](outOfRange(q.offset, 0))
	}
	return q.provider.Frame(q.offset)
}

// IsOk reports whether the query resolves.
func (q Query) IsOk() bool { return q.Resolve().IsOk() }

// IsErr reports whether the query fails to resolve.
func (q Query) IsErr() bool { return q.Resolve().IsErr() }

// Value returns the resolved frame. It panics when resolution fails.
func (q Query) Value() *Frame { return q.Resolve().Value() }

// Error returns the resolution error. It panics when the query resolves.
func (q Query) Error() ErrorInfo { return q.Resolve().Error() }

// Function is the resolved frame's function name.
func (q Query) Function() Result[string] {
	return Map(q.Resolve(), (*Frame).Function)
}

// TypeName is the receiver type of the resolved frame, or "".
func (q Query) TypeName() Result[string] {
	return Map(q.Resolve(), (*Frame).TypeName)
}

// File is the resolved frame's source file.
func (q Query) File() Result[string] {
	return Map(q.Resolve(), (*Frame).File)
}

// Line is the resolved frame's line number.
func (q Query) Line() Result[int] {
	return Map(q.Resolve(), (*Frame).Line)
}

// Module is the resolved frame's package path.
func (q Query) Module() Result[string] {
	return Map(q.Resolve(), (*Frame).Module)
}

// FullyQualifiedName joins module, type and function.
func (q Query) FullyQualifiedName() Result[string] {
	return Map(q.Resolve(), (*Frame).FullyQualifiedName)
}

// Variables returns the locals attached to the resolved frame.
func (q Query) Variables() Result[map[string]any] {
	return Map(q.Resolve(), (*Frame).Variables)
}

// Variable looks up name in the resolved frame. A resolution failure is
// returned as is, ahead of any lookup failure.
func (q Query) Variable(name string) Result[Variable] {
	return Then(q.Resolve(), func(f *Frame) Result[Variable] {
		return f.Variable(name)
	})
}
