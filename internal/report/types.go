package report

import (
	"github.com/roach88/autopsy/internal/value"
)

// CallSite identifies where an observation was made.
type CallSite struct {
	File string
	Line int
}

// Dashboard observation kinds, also used as live update types.
const (
	KindLog      = "log"
	KindCount    = "count"
	KindHist     = "hist"
	KindTimeline = "timeline"
	KindHappened = "happened"
)

// noRef marks an observation without a stored stack trace.
const noRef = -1

// Binding names a value passed to Log.
type Binding struct {
	Name  string
	Value any
}

// Named binds name to v for Log.
func Named(name string, v any) Binding {
	return Binding{Name: name, Value: v}
}

// producer is the function an observation was made from.
type producer struct {
	function string
	typeName string
}

// logGroup is one Log call. Immutable once stored.
type logGroup struct {
	values []LoggedValue
	producer
	name  *string
	index int
	ref   int
}

// dashboardLog is one count, hist, timeline or happened call, kept so the
// raw view lists dashboard call sites too.
type dashboardLog struct {
	kind string
	producer
	index int
	ref   int

	value     value.Value // count
	number    float64     // hist
	eventName string      // timeline
	timestamp float64     // timeline
	message   *string     // happened
}

// countRef is one counted occurrence.
type countRef struct {
	ref   int
	index int
}

// countView buckets one call site's counted values by key.
type countView struct {
	producer
	order   []any
	buckets map[any][]countRef
}

// histSample is one histogram number, stored verbatim.
type histSample struct {
	number float64
	ref    int
	index  int
}

type histView struct {
	producer
	samples []histSample
}

// timelineEvent is a named instant.
type timelineEvent struct {
	timestamp float64
	name      string
	site      CallSite
	producer
	ref   int
	index int
}

// occurrence counts how often a call site ran. The first message sticks.
type occurrence struct {
	producer
	count   int
	refs    []countRef
	message *string
}

// siteMap keeps per call site state in first-seen order.
type siteMap[V any] struct {
	order []CallSite
	items map[CallSite]V
}

func newSiteMap[V any]() siteMap[V] {
	return siteMap[V]{items: make(map[CallSite]V)}
}

// get returns the entry for site, creating it with create on first use.
func (m *siteMap[V]) get(site CallSite, create func() V) V {
	if v, ok := m.items[site]; ok {
		return v
	}
	v := create()
	m.items[site] = v
	m.order = append(m.order, site)
	return v
}

func (m *siteMap[V]) set(site CallSite, v V) {
	if _, ok := m.items[site]; !ok {
		m.order = append(m.order, site)
	}
	m.items[site] = v
}

func (m *siteMap[V]) len() int { return len(m.order) }

func (m *siteMap[V]) each(fn func(CallSite, V)) {
	for _, site := range m.order {
		fn(site, m.items[site])
	}
}
