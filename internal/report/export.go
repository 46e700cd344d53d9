package report

import (
	"slices"
	"strconv"
	"time"

	"github.com/valyala/fastjson"

	"github.com/roach88/autopsy/internal/callstack"
	"github.com/roach88/autopsy/internal/value"
)

// Export projects the report into a Snapshot. Everything but GeneratedAt
// is a pure function of the recorded state.
func (r *Report) Export() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &Snapshot{
		GeneratedAt: r.now().UTC().Format(time.RFC3339Nano),
		CallSites:   make([]CallSiteEntry, 0, r.logs.len()+r.dashboard.len()),
		StackTraces: make(map[string]*callstack.StackTrace, len(r.stackTraces)),
	}

	r.logs.each(func(site CallSite, groups []*logGroup) {
		entry := siteEntry(site, groups[0].producer)
		for _, g := range groups {
			entry.ValueGroups = append(entry.ValueGroups, g.project())
		}
		snap.CallSites = append(snap.CallSites, entry)
	})
	r.dashboard.each(func(site CallSite, entries []*dashboardLog) {
		entry := siteEntry(site, entries[0].producer)
		entry.IsDashboard = true
		for _, d := range entries {
			entry.ValueGroups = append(entry.ValueGroups, d.project())
		}
		snap.CallSites = append(snap.CallSites, entry)
	})

	for index, st := range r.stackTraces {
		snap.StackTraces[refID(index)] = st
	}

	if r.counts.len() > 0 || r.hists.len() > 0 || len(r.timeline) > 0 || r.happened.len() > 0 {
		snap.Dashboard = r.exportDashboard()
	}
	return snap
}

func (r *Report) exportDashboard() *Dashboard {
	d := &Dashboard{
		Counts:     make([]CountEntry, 0, r.counts.len()),
		Histograms: make([]HistogramEntry, 0, r.hists.len()),
		Timeline:   make([]TimelineEntry, 0, len(r.timeline)),
		Happened:   make([]HappenedEntry, 0, r.happened.len()),
	}

	r.counts.each(func(site CallSite, view *countView) {
		entry := CountEntry{CallSite: siteRef(site, view.producer), ValueCounts: make(map[string]ValueCount)}
		for _, key := range view.order {
			name := countKey(key)
			vc := entry.ValueCounts[name]
			vc.add(view.buckets[key])
			entry.ValueCounts[name] = vc
		}
		for name, vc := range entry.ValueCounts {
			entry.ValueCounts[name] = vc.sorted()
		}
		d.Counts = append(d.Counts, entry)
	})

	r.hists.each(func(site CallSite, view *histView) {
		entry := HistogramEntry{CallSite: siteRef(site, view.producer), Values: make([]HistogramValue, 0, len(view.samples))}
		for _, s := range view.samples {
			entry.Values = append(entry.Values, HistogramValue{
				Value:        value.SanitizeFloat(s.number),
				StackTraceID: refPtr(s.ref),
				LogIndex:     s.index,
			})
		}
		d.Histograms = append(d.Histograms, entry)
	})

	events := slices.Clone(r.timeline)
	slices.SortStableFunc(events, func(a, b timelineEvent) int {
		switch {
		case a.timestamp < b.timestamp:
			return -1
		case a.timestamp > b.timestamp:
			return 1
		}
		return 0
	})
	for _, ev := range events {
		d.Timeline = append(d.Timeline, TimelineEntry{
			Timestamp:    ev.timestamp,
			EventName:    ev.name,
			CallSite:     siteRef(ev.site, ev.producer),
			StackTraceID: refPtr(ev.ref),
			LogIndex:     ev.index,
		})
	}

	r.happened.each(func(site CallSite, occ *occurrence) {
		vc := ValueCount{}
		vc.add(occ.refs)
		d.Happened = append(d.Happened, HappenedEntry{
			CallSite:      siteRef(site, occ.producer),
			Count:         occ.count,
			StackTraceIDs: vc.StackTraceIDs,
			LogIndices:    vc.LogIndices,
			Message:       occ.message,
		})
	})
	return d
}

// countKey renders a count bucket key as a JSON object key. A string that
// is already valid JSON is used as is; anything else is rendered as its
// canonical JSON text. Distinct keys may therefore share an exported name
// and are merged.
func countKey(key any) string {
	if s, ok := key.(string); ok && fastjson.Validate(s) == nil {
		return s
	}
	return value.CanonicalString(key)
}

func (vc *ValueCount) add(refs []countRef) {
	if vc.StackTraceIDs == nil {
		vc.StackTraceIDs = []string{}
	}
	for _, ref := range refs {
		vc.Count++
		vc.LogIndices = append(vc.LogIndices, ref.index)
		if ref.ref != noRef {
			vc.StackTraceIDs = append(vc.StackTraceIDs, refID(ref.ref))
		}
	}
	if vc.LogIndices == nil {
		vc.LogIndices = []int{}
	}
}

// sorted orders merged buckets by log index. Stack trace ids are log
// indices too.
func (vc ValueCount) sorted() ValueCount {
	slices.Sort(vc.LogIndices)
	slices.SortFunc(vc.StackTraceIDs, func(a, b string) int {
		x, _ := strconv.Atoi(a)
		y, _ := strconv.Atoi(b)
		return x - y
	})
	return vc
}

func (g *logGroup) project() ValueGroup {
	vg := ValueGroup{
		Values:       slices.Clone(g.values),
		FunctionName: g.function,
		ClassName:    g.typeName,
		LogIndex:     g.index,
		Name:         g.name,
	}
	if vg.Values == nil {
		vg.Values = []LoggedValue{}
	}
	if g.ref != noRef {
		vg.StackTraceID = refID(g.ref)
	}
	return vg
}

func (d *dashboardLog) project() ValueGroup {
	vg := ValueGroup{
		FunctionName:  d.function,
		ClassName:     d.typeName,
		LogIndex:      d.index,
		DashboardType: d.kind,
	}
	if d.ref != noRef {
		vg.StackTraceID = refID(d.ref)
	}
	switch d.kind {
	case KindCount:
		vg.Value = d.value
	case KindHist:
		vg.Value = value.SanitizeFloat(d.number)
	case KindTimeline:
		name, ts := d.eventName, d.timestamp
		vg.EventName = &name
		vg.Timestamp = &ts
	case KindHappened:
		vg.Message = d.message
	}
	return vg
}

func siteEntry(site CallSite, who producer) CallSiteEntry {
	return CallSiteEntry{
		Filename:     site.File,
		Line:         site.Line,
		FunctionName: who.function,
		ClassName:    who.typeName,
		ValueGroups:  []ValueGroup{},
	}
}

func siteRef(site CallSite, who producer) SiteRef {
	return SiteRef{
		Filename:     site.File,
		Line:         site.Line,
		FunctionName: who.function,
		ClassName:    who.typeName,
	}
}

func updateSite(site CallSite, who producer) UpdateSite {
	us := UpdateSite{Filename: site.File, Line: site.Line, FunctionName: who.function}
	if who.typeName != "" {
		name := who.typeName
		us.ClassName = &name
	}
	return us
}

func refID(ref int) string {
	return strconv.Itoa(ref)
}

func refPtr(ref int) *string {
	if ref == noRef {
		return nil
	}
	id := refID(ref)
	return &id
}
