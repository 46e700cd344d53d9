// Package callstack captures call chains and navigates them safely.
//
// Navigation never fails mid-chain. A Query at an out-of-range depth still
// answers every accessor with a Result, and the first error is carried to
// the end of the chain:
//
//	cs := callstack.New(callstack.WithLocals(map[string]any{"total": total}))
//	r := cs.Caller().Caller().Caller().Variable("total")
//	if r.IsErr() {
//		// r.Error().Context["requested_index"] == 3 when fewer frames exist
//	}
//
// Go cannot read another frame's local variables, so bindings are supplied
// by the caller with WithLocals and WithFrameLocals and captured at
// construction.
//
// Frames from the observation packages of this module are excluded from
// every capture; test files are never excluded.
package callstack
