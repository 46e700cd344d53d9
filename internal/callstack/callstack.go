package callstack

import (
	"maps"
	"path"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/roach88/autopsy/internal/value"
)

// defaultMaxFrames bounds a runtime capture.
const defaultMaxFrames = 128

// FrameRecord is the JSON-safe form of a frame stored in a snapshot.
type FrameRecord struct {
	Filename       string       `json:"filename"`
	FunctionName   string       `json:"function_name"`
	LineNumber     int          `json:"line_number"`
	CodeContext    string       `json:"code_context"`
	LocalVariables value.Object `json:"local_variables"`
}

// StackTrace is an immutable capture of a call chain.
// Timestamp is seconds since the Unix epoch.
type StackTrace struct {
	Frames    []FrameRecord `json:"frames"`
	Timestamp float64       `json:"timestamp"`
}

// Provider resolves frames at relative depth and captures the chain.
type Provider interface {
	Frame(depth int) Result[*Frame]
	Len() int
	// Snapshot is computed once and cached for the provider's lifetime.
	Snapshot() *StackTrace
}

// CallStack is a Provider over a captured goroutine stack, or over frames
// supplied with FromFrames. Local bindings are never read implicitly; the
// caller passes them with WithLocals or WithFrameLocals.
type CallStack struct {
	frames []*Frame
	now    func() time.Time

	once  sync.Once
	trace *StackTrace
}

var _ Provider = (*CallStack)(nil)

type options struct {
	skip        int
	maxFrames   int
	now         func() time.Time
	frameLocals map[int]map[string]any
}

// Option configures New and FromFrames.
type Option func(*options)

// WithSkip skips n additional caller frames before capture.
func WithSkip(n int) Option {
	return func(o *options) { o.skip = n }
}

// WithMaxFrames bounds how many frames are captured.
func WithMaxFrames(n int) Option {
	return func(o *options) { o.maxFrames = n }
}

// WithClock sets the clock used to timestamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocals binds variables to the current frame.
func WithLocals(locals map[string]any) Option {
	return WithFrameLocals(0, locals)
}

// WithFrameLocals binds variables to the frame at depth.
func WithFrameLocals(depth int, locals map[string]any) Option {
	return func(o *options) {
		if o.frameLocals == nil {
			o.frameLocals = make(map[int]map[string]any)
		}
		if o.frameLocals[depth] == nil {
			o.frameLocals[depth] = make(map[string]any, len(locals))
		}
		maps.Copy(o.frameLocals[depth], locals)
	}
}

func buildOptions(opts []Option) options {
	o := options{maxFrames: defaultMaxFrames, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New captures the calling goroutine's stack. Frames inside this library
// are dropped, so depth 0 is the function that called New.
func New(opts ...Option) *CallStack {
	o := buildOptions(opts)

	var frames []*Frame
	for _, f := range runtimeFrames(o.skip+2, o.maxFrames) {
		if IsLibraryFile(f.file) {
			continue
		}
		frames = append(frames, f)
	}
	return newCallStack(frames, o)
}

// FromFrames builds a CallStack from explicit frame descriptions,
// innermost first.
func FromFrames(infos []FrameInfo, opts ...Option) *CallStack {
	o := buildOptions(opts)
	frames := make([]*Frame, len(infos))
	for i, info := range infos {
		frames[i] = newFrame(info)
	}
	return newCallStack(frames, o)
}

func newCallStack(frames []*Frame, o options) *CallStack {
	for depth, locals := range o.frameLocals {
		if depth < 0 || depth >= len(frames) {
			continue
		}
		if frames[depth].locals == nil {
			frames[depth].locals = make(map[string]any, len(locals))
		}
		maps.Copy(frames[depth].locals, locals)
	}
	return &CallStack{frames: frames, now: o.now}
}

// AutopsyOpaque marks CallStack as library-internal for the value codec.
func (*CallStack) AutopsyOpaque() {}

// Len returns the number of frames available.
func (cs *CallStack) Len() int { return len(cs.frames) }

// Frame returns the frame at depth, 0 being the innermost.
func (cs *CallStack) Frame(depth int) Result[*Frame] {
	if depth < 0 || depth >= len(cs.frames) {
		return Err[*Frame](outOfRange(depth, len(cs.frames)))
	}
	return Ok(cs.frames[depth])
}

// Current returns a query for depth 0.
func (cs *CallStack) Current() Query { return Query{provider: cs} }

// Caller returns a query for depth 1.
func (cs *CallStack) Caller() Query { return Query{provider: cs, offset: 1} }

// At returns a query for the given depth.
func (cs *CallStack) At(depth int) Query { return Query{provider: cs, offset: depth} }

// Snapshot renders every frame with its code context and canonicalized
// locals. The result is computed on first use and then shared.
func (cs *CallStack) Snapshot() *StackTrace {
	cs.once.Do(func() {
		records := make([]FrameRecord, 0, len(cs.frames))
		for _, f := range cs.frames {
			records = append(records, FrameRecord{
				Filename:       f.file,
				FunctionName:   f.function,
				LineNumber:     f.line,
				CodeContext:    CodeContext(f.file, f.line),
				LocalVariables: canonicalLocals(f.locals),
			})
		}
		cs.trace = &StackTrace{Frames: records, Timestamp: unixSeconds(cs.now())}
	})
	return cs.trace
}

// canonicalLocals drops private names, funcs and library objects, then
// canonicalizes what remains.
func canonicalLocals(locals map[string]any) value.Object {
	out := make(value.Object, len(locals))
	for name, v := range locals {
		if name == "" || strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := v.(value.Opaque); ok || isFunc(v) {
			continue
		}
		out[name] = value.Canonicalize(v)
	}
	return out
}

func outOfRange(requested, available int) ErrorInfo {
	validRange := []int{0, available - 1}
	if available == 0 {
		validRange = []int{0, -1}
	}
	return ErrorInfo{
		Message: "Frame index out of range",
		Context: map[string]any{
			"requested_index": requested,
			"available_count": available,
			"valid_range":     validRange,
		},
		Location: callerLocation(),
	}
}

// CallerFrame returns the first frame outside this library, starting skip
// frames above its caller. When every frame belongs to the library the
// first captured frame is returned. It never returns nil.
func CallerFrame(skip int) *Frame {
	frames := runtimeFrames(skip+2, defaultMaxFrames)
	for _, f := range frames {
		if !IsLibraryFile(f.file) {
			return f
		}
	}
	if len(frames) > 0 {
		return frames[0]
	}
	return &Frame{function: "<unknown>", module: "<unknown>", file: "<unknown>"}
}

func callerLocation() Location {
	return CallerFrame(1).Location()
}

// runtimeFrames walks the stack up to the goroutine entry point.
func runtimeFrames(skip, limit int) []*Frame {
	if limit <= 0 {
		limit = defaultMaxFrames
	}
	pcs := make([]uintptr, limit)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return nil
	}

	iter := runtime.CallersFrames(pcs[:n])
	var out []*Frame
	for {
		rf, more := iter.Next()
		if isEntryPoint(rf.Function) {
			break
		}
		out = append(out, frameFromRuntime(rf.Function, rf.File, rf.Line))
		if !more {
			break
		}
	}
	return out
}

func isEntryPoint(function string) bool {
	return function == "runtime.main" || function == "runtime.goexit"
}

var libraryDirs = func() map[string]bool {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return nil
	}
	dir := path.Dir(file)
	root := path.Dir(path.Dir(dir))
	dirs := map[string]bool{dir: true, root: true}
	dirs[path.Join(root, "internal", "report")] = true
	return dirs
}()

// IsLibraryFile reports whether file is non-test source of the packages
// that record observations. Such frames never count as call sites.
func IsLibraryFile(file string) bool {
	if strings.HasSuffix(file, "_test.go") {
		return false
	}
	return libraryDirs[path.Dir(file)]
}

func isFunc(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Func
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
