// Package report records observations made by a running program and
// projects them into a JSON-safe snapshot.
//
// A Report keeps five kinds of observation, each stamped with a global
// index: logged value groups, value counts, numeric histograms, a timeline
// of named events and "happened" counters. Observations are grouped by the
// file and line that made them. When automatic stack traces are on, each
// observation also stores a stack trace under its index.
//
// Export builds the full snapshot. When a live Sink is attached, every
// observation is also published as an Update whose value group matches
// the snapshot entry it will later appear as.
package report
