package report

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/autopsy/internal/annotate"
	"github.com/roach88/autopsy/internal/callstack"
	"github.com/roach88/autopsy/internal/value"
)

// Configuration controls what a Report captures.
type Configuration struct {
	// AutoStackTrace captures a stack trace for every observation.
	AutoStackTrace bool
	// LiveMode streams updates to the sink started by the live starter.
	LiveMode bool
	LiveHost string
	LivePort int
}

// DefaultConfiguration returns the configuration used by New when none is
// given.
func DefaultConfiguration() Configuration {
	return Configuration{
		AutoStackTrace: true,
		LiveHost:       "localhost",
		LivePort:       8765,
	}
}

// LiveStarter starts a live sink for cfg. Report calls it from Init when
// LiveMode is on and no sink is running.
type LiveStarter func(cfg Configuration) (Sink, error)

// Report records observations from any number of goroutines.
//
// All state sits behind one mutex. Every observation resolves its call
// site, reads source for names and captures its stack trace before taking
// the lock, then assigns the next global index and stores under it. Index
// order is therefore linearizable with respect to the lock.
type Report struct {
	cfg       atomic.Pointer[Configuration]
	logger    *slog.Logger
	now       func() time.Time
	annotator annotate.Annotator
	providers func() callstack.Provider
	starter   LiveStarter

	mu          sync.Mutex
	sink        Sink
	live        bool
	index       int
	initialized bool
	written     bool

	logs        siteMap[[]*logGroup]
	dashboard   siteMap[[]*dashboardLog]
	counts      siteMap[*countView]
	hists       siteMap[*histView]
	happened    siteMap[*occurrence]
	timeline    []timelineEvent
	stackTraces map[int]*callstack.StackTrace
}

// Option configures a Report.
type Option func(*Report)

// WithLogger sets the logger for warnings and dropped updates.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Report) { r.logger = logger }
}

// WithClock sets the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Report) { r.now = now }
}

// WithAnnotator sets how Log recovers argument names.
func WithAnnotator(a annotate.Annotator) Option {
	return func(r *Report) { r.annotator = a }
}

// WithProviderFactory sets how stack traces are captured. The factory is
// called once per observation from the observing goroutine.
func WithProviderFactory(fn func() callstack.Provider) Option {
	return func(r *Report) { r.providers = fn }
}

// WithSink sets a live sink used whenever LiveMode is on.
func WithSink(s Sink) Option {
	return func(r *Report) { r.sink = s }
}

// WithLiveStarter sets the function that starts a live sink on Init.
func WithLiveStarter(fn LiveStarter) Option {
	return func(r *Report) { r.starter = fn }
}

// New returns an empty, uninitialized Report.
func New(cfg Configuration, opts ...Option) *Report {
	r := &Report{
		logger:      slog.Default(),
		now:         time.Now,
		annotator:   annotate.NewSource(nil),
		stackTraces: make(map[int]*callstack.StackTrace),
	}
	r.cfg.Store(&cfg)
	r.reset()
	for _, opt := range opts {
		opt(r)
	}
	if r.providers == nil {
		r.providers = func() callstack.Provider {
			return callstack.New(callstack.WithClock(r.now))
		}
	}
	return r
}

// AutopsyOpaque marks Report as library-internal for the value codec.
func (*Report) AutopsyOpaque() {}

// reset discards all recorded state. Caller holds mu or owns r.
func (r *Report) reset() {
	r.index = 0
	r.written = false
	r.logs = newSiteMap[[]*logGroup]()
	r.dashboard = newSiteMap[[]*dashboardLog]()
	r.counts = newSiteMap[*countView]()
	r.hists = newSiteMap[*histView]()
	r.happened = newSiteMap[*occurrence]()
	r.timeline = nil
	clear(r.stackTraces)
}

// Config returns the current configuration.
func (r *Report) Config() Configuration {
	return *r.cfg.Load()
}

// InitOptions controls Init.
type InitOptions struct {
	// Clear discards all state and restarts the index at zero.
	Clear bool
	// NoWarn suppresses the warning for re-initializing a populated report.
	NoWarn bool
	// Config replaces the configuration when non-nil.
	Config *Configuration
}

// Init marks the report initialized, optionally clearing it or replacing
// its configuration, and starts the live sink when LiveMode is on.
func (r *Report) Init(opts InitOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !opts.NoWarn && r.initialized && r.hasData() {
		if opts.Clear {
			r.logger.Warn("report init clearing existing data")
		} else {
			r.logger.Warn("report init called on initialized report with existing data")
		}
	}

	if opts.Clear {
		r.reset()
	}
	r.initialized = true

	if opts.Config != nil {
		cfg := *opts.Config
		r.cfg.Store(&cfg)
	}

	cfg := r.Config()
	if cfg.LiveMode && !r.live {
		r.startLive(cfg)
	}
}

func (r *Report) startLive(cfg Configuration) {
	if r.starter != nil {
		sink, err := r.starter(cfg)
		if err != nil {
			r.logger.Warn("failed to start live server", "error", err)
			return
		}
		r.sink = sink
	}
	if r.sink == nil {
		r.logger.Warn("live mode requested without a live sink")
		return
	}
	r.live = true
}

// Initialized reports whether any observation or Init has happened.
func (r *Report) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// Written reports whether the report was exported to a file since the
// last clear.
func (r *Report) Written() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// MarkWritten records that the report was exported to a file.
func (r *Report) MarkWritten() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written = true
}

// LiveMode reports whether updates are being streamed.
func (r *Report) LiveMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// HasData reports whether anything was recorded.
func (r *Report) HasData() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasData()
}

func (r *Report) hasData() bool {
	return r.logs.len() > 0 || r.dashboard.len() > 0 || r.counts.len() > 0 ||
		r.hists.len() > 0 || r.happened.len() > 0 || len(r.timeline) > 0
}

// Len returns the index the next observation will receive.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// CallSites returns the sites that called Log, in first-seen order.
func (r *Report) CallSites() []CallSite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CallSite(nil), r.logs.order...)
}

// StackTrace returns the trace stored under a log index.
func (r *Report) StackTrace(index int) (*callstack.StackTrace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stackTraces[index]
	return st, ok
}

// observation is the part of an observation computed outside the lock.
type observation struct {
	site  CallSite
	who   producer
	trace *callstack.StackTrace
}

// prepare resolves the call site and captures the stack trace. provider
// overrides the default capture when non-nil.
func (r *Report) prepare(provider callstack.Provider) observation {
	frame := callstack.CallerFrame(0)
	obs := observation{
		site: CallSite{File: frame.File(), Line: frame.Line()},
		who:  producer{function: frame.Function(), typeName: frame.TypeName()},
	}
	if !r.Config().AutoStackTrace {
		return obs
	}
	obs.trace = r.capture(provider)
	return obs
}

// capture never panics. A failed capture leaves the observation without
// a stack trace.
func (r *Report) capture(provider callstack.Provider) (trace *callstack.StackTrace) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("stack trace capture failed", "panic", rec)
			trace = nil
		}
	}()
	if provider == nil {
		provider = r.providers()
	}
	if provider == nil {
		return nil
	}
	return provider.Snapshot()
}

// commit assigns the next index and stores the trace under it. Caller
// holds mu.
func (r *Report) commit(obs observation) (index, ref int) {
	r.initialized = true
	index = r.index
	r.index++
	ref = noRef
	if obs.trace != nil {
		r.stackTraces[index] = obs.trace
		ref = index
	}
	return index, ref
}

// guard recovers a panic escaping an observation.
func (r *Report) guard(kind string) {
	if rec := recover(); rec != nil {
		r.logger.Debug("observation failed", "kind", kind, "panic", rec)
	}
}

// Log records args as one group at the calling site.
//
// Arguments built with Named keep their name; others are named after the
// argument expression found in source. When the first argument is a string
// literal it becomes the group name and is not stored as a value. A
// callstack.Provider among the arguments supplies the stack trace.
func (r *Report) Log(args ...any) {
	defer r.guard(KindLog)
	r.log(nil, args)
}

// LogNamed is Log with an explicit group name. The first argument is
// never taken as a name.
func (r *Report) LogNamed(name string, args ...any) {
	defer r.guard(KindLog)
	r.log(&name, args)
}

func (r *Report) log(name *string, args []any) {
	var provider callstack.Provider
	for _, a := range args {
		if b, ok := a.(Binding); ok {
			a = b.Value
		}
		if p, ok := a.(callstack.Provider); ok {
			provider = p
			break
		}
	}
	obs := r.prepare(provider)

	exprs := r.annotator.ArgumentExpressions(obs.site.File, obs.site.Line)
	if name == nil && len(args) > 0 && len(exprs) > 0 && exprs[0].IsStringLiteral {
		if label, ok := args[0].(string); ok {
			name = &label
			args = args[1:]
			exprs = exprs[1:]
		}
	}

	values := make([]LoggedValue, len(args))
	for i, a := range args {
		lv := LoggedValue{}
		if i < len(exprs) {
			lv.Name = exprs[i].Expr
		}
		if b, ok := a.(Binding); ok {
			lv.Name = b.Name
			a = b.Value
		}
		lv.Value = value.Canonicalize(a)
		values[i] = lv
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	index, ref := r.commit(obs)
	group := &logGroup{values: values, producer: obs.who, name: name, index: index, ref: ref}
	groups := r.logs.get(obs.site, func() []*logGroup { return nil })
	r.logs.set(obs.site, append(groups, group))

	if r.live {
		r.publish(Update{
			Type:       KindLog,
			CallSite:   updateSite(obs.site, obs.who),
			ValueGroup: group.project(),
			StackTrace: r.traceFor(ref),
		})
	}
}

// Count counts how often v is seen at the calling site. Comparable values
// are bucketed by equality, others by their canonical JSON text.
func (r *Report) Count(v any) {
	defer r.guard(KindCount)
	obs := r.prepare(nil)
	key := value.Key(v)
	canonical := value.Canonicalize(v)

	r.mu.Lock()
	defer r.mu.Unlock()

	index, ref := r.commit(obs)
	r.recordDashboard(obs, &dashboardLog{kind: KindCount, producer: obs.who, index: index, ref: ref, value: canonical})

	view := r.counts.get(obs.site, func() *countView {
		return &countView{producer: obs.who, buckets: make(map[any][]countRef)}
	})
	if _, ok := view.buckets[key]; !ok {
		view.order = append(view.order, key)
	}
	view.buckets[key] = append(view.buckets[key], countRef{ref: ref, index: index})
}

// Hist adds n to the calling site's histogram. Non-finite numbers are kept
// as is and rendered as strings on export.
func (r *Report) Hist(n float64) {
	defer r.guard(KindHist)
	obs := r.prepare(nil)

	r.mu.Lock()
	defer r.mu.Unlock()

	index, ref := r.commit(obs)
	r.recordDashboard(obs, &dashboardLog{kind: KindHist, producer: obs.who, index: index, ref: ref, number: n})

	view := r.hists.get(obs.site, func() *histView { return &histView{producer: obs.who} })
	view.samples = append(view.samples, histSample{number: n, ref: ref, index: index})
}

// Timeline records a named event at the current wall-clock time.
func (r *Report) Timeline(name string) {
	defer r.guard(KindTimeline)
	obs := r.prepare(nil)
	ts := unixSeconds(r.now())

	r.mu.Lock()
	defer r.mu.Unlock()

	index, ref := r.commit(obs)
	r.recordDashboard(obs, &dashboardLog{
		kind: KindTimeline, producer: obs.who, index: index, ref: ref,
		eventName: name, timestamp: ts,
	})
	r.timeline = append(r.timeline, timelineEvent{
		timestamp: ts, name: name, site: obs.site, producer: obs.who, ref: ref, index: index,
	})
}

// Happened counts that the calling site ran. The first non-empty message
// given at a site is kept.
func (r *Report) Happened(message ...string) {
	defer r.guard(KindHappened)
	obs := r.prepare(nil)
	var msg *string
	if len(message) > 0 && message[0] != "" {
		msg = &message[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	index, ref := r.commit(obs)
	r.recordDashboard(obs, &dashboardLog{kind: KindHappened, producer: obs.who, index: index, ref: ref, message: msg})

	occ := r.happened.get(obs.site, func() *occurrence { return &occurrence{producer: obs.who} })
	occ.count++
	occ.refs = append(occ.refs, countRef{ref: ref, index: index})
	if occ.message == nil && msg != nil {
		occ.message = msg
	}
}

// recordDashboard appends the raw dashboard entry and publishes it. Caller
// holds mu.
func (r *Report) recordDashboard(obs observation, entry *dashboardLog) {
	entries := r.dashboard.get(obs.site, func() []*dashboardLog { return nil })
	r.dashboard.set(obs.site, append(entries, entry))

	if r.live {
		r.publish(Update{
			Type:       entry.kind,
			CallSite:   updateSite(obs.site, obs.who),
			ValueGroup: entry.project(),
			StackTrace: r.traceFor(entry.ref),
		})
	}
}

// publish hands u to the sink. Sink failures are dropped.
func (r *Report) publish(u Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("live update dropped", "type", u.Type, "panic", rec)
		}
	}()
	r.sink.Publish(u)
}

func (r *Report) traceFor(ref int) map[string]*callstack.StackTrace {
	if ref == noRef {
		return nil
	}
	st, ok := r.stackTraces[ref]
	if !ok {
		return nil
	}
	return map[string]*callstack.StackTrace{refID(ref): st}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
