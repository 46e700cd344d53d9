// Package value provides the JSON-safe value model used by every exported
// autopsy structure.
//
// Captured program values are opaque to the event store. Before they leave
// the process (JSON export, HTML embedding, live updates, archive rows) they
// are converted by Canonicalize into a small sealed tree of Value variants:
// Null, Bool, Int, Float, String, Array and Object.
//
// Key design constraints:
//   - Float is always finite. +Inf, -Inf and NaN become the strings
//     "Infinity", "-Infinity" and "NaN"
//   - Object keys marshal in RFC 8785 order (UTF-16 code units)
//   - Canonicalize never panics; undecomposable values become
//     "<TypeName: repr>" strings
//   - Recursion is bounded by MaxDepth and guarded against reference cycles
//
// This package imports nothing internal.
package value
