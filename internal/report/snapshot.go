package report

import (
	"github.com/roach88/autopsy/internal/callstack"
	"github.com/roach88/autopsy/internal/value"
)

// Snapshot is the JSON-safe projection of a Report.
//
// Slices are copied per export. Value trees and stack traces are shared
// with the Report and must be treated as read-only.
type Snapshot struct {
	GeneratedAt string                           `json:"generated_at"`
	CallSites   []CallSiteEntry                  `json:"call_sites"`
	StackTraces map[string]*callstack.StackTrace `json:"stack_traces"`
	Dashboard   *Dashboard                       `json:"dashboard,omitempty"`
}

// CallSiteEntry lists the groups recorded at one call site. Dashboard call
// sites carry IsDashboard and one group per count, hist, timeline or
// happened call.
type CallSiteEntry struct {
	Filename     string       `json:"filename"`
	Line         int          `json:"line"`
	FunctionName string       `json:"function_name"`
	ClassName    string       `json:"class_name,omitempty"`
	ValueGroups  []ValueGroup `json:"value_groups"`
	IsDashboard  bool         `json:"is_dashboard,omitempty"`
}

// ValueGroup is one observation call.
type ValueGroup struct {
	Values        []LoggedValue `json:"values,omitzero"`
	FunctionName  string        `json:"function_name"`
	LogIndex      int           `json:"log_index"`
	ClassName     string        `json:"class_name,omitempty"`
	StackTraceID  string        `json:"stack_trace_id,omitempty"`
	Name          *string       `json:"name,omitempty"`
	DashboardType string        `json:"dashboard_type,omitempty"`
	Value         value.Value   `json:"value,omitzero"`
	EventName     *string       `json:"event_name,omitempty"`
	Timestamp     *float64      `json:"timestamp,omitempty"`
	Message       *string       `json:"message,omitempty"`
}

// LoggedValue is one value of a Log call with its source name, if known.
type LoggedValue struct {
	Name  string      `json:"name,omitempty"`
	Value value.Value `json:"value"`
}

// Dashboard holds the four aggregate views.
type Dashboard struct {
	Counts     []CountEntry     `json:"counts"`
	Histograms []HistogramEntry `json:"histograms"`
	Timeline   []TimelineEntry  `json:"timeline"`
	Happened   []HappenedEntry  `json:"happened"`
}

// SiteRef names the call site of an aggregate entry.
type SiteRef struct {
	Filename     string `json:"filename"`
	Line         int    `json:"line"`
	FunctionName string `json:"function_name"`
	ClassName    string `json:"class_name,omitempty"`
}

// CountEntry holds the value buckets of one Count call site.
type CountEntry struct {
	CallSite    SiteRef               `json:"call_site"`
	ValueCounts map[string]ValueCount `json:"value_counts"`
}

// ValueCount is one bucket of a CountEntry.
type ValueCount struct {
	Count         int      `json:"count"`
	StackTraceIDs []string `json:"stack_trace_ids"`
	LogIndices    []int    `json:"log_indices"`
}

// HistogramEntry holds the samples of one Hist call site.
type HistogramEntry struct {
	CallSite SiteRef          `json:"call_site"`
	Values   []HistogramValue `json:"values"`
}

// HistogramValue is one Hist sample.
type HistogramValue struct {
	Value        value.Value `json:"value"`
	StackTraceID *string     `json:"stack_trace_id"`
	LogIndex     int         `json:"log_index"`
}

// TimelineEntry is one Timeline event.
type TimelineEntry struct {
	Timestamp    float64 `json:"timestamp"`
	EventName    string  `json:"event_name"`
	CallSite     SiteRef `json:"call_site"`
	StackTraceID *string `json:"stack_trace_id"`
	LogIndex     int     `json:"log_index"`
}

// HappenedEntry counts the runs of one Happened call site.
type HappenedEntry struct {
	CallSite      SiteRef  `json:"call_site"`
	Count         int      `json:"count"`
	StackTraceIDs []string `json:"stack_trace_ids"`
	LogIndices    []int    `json:"log_indices"`
	Message       *string  `json:"message,omitempty"`
}

// Update is an incremental live message. Its ValueGroup has the same shape
// as the matching entry of a full Snapshot.
type Update struct {
	Type       string                           `json:"type"`
	CallSite   UpdateSite                       `json:"call_site"`
	ValueGroup ValueGroup                       `json:"value_group"`
	StackTrace map[string]*callstack.StackTrace `json:"stack_trace,omitempty"`
}

// UpdateSite is the call site of an Update. ClassName is null for plain
// functions.
type UpdateSite struct {
	Filename     string  `json:"filename"`
	Line         int     `json:"line"`
	FunctionName string  `json:"function_name"`
	ClassName    *string `json:"class_name"`
}

// Sink receives live updates. Publish must not block.
type Sink interface {
	Publish(Update)
}
