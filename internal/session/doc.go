// Package session implements the slide change detection state machine.
//
// A Session receives captured frames, collapses bursts with a debounce window,
// compares the surviving frame against the last accepted slide and emits a
// SlideChangeEvent when the difference is large enough.
//
// # Lifecycle
//
//	uninitialized ──first frame──▶ armed ──ProcessFrame──▶ debouncing
//	      ▲                          ▲                          │
//	      └────────── Reset ─────────┴──── Tick / Flush ────────┘
//
// ProcessFrame never analyzes. Analysis happens when Tick observes that the
// debounce window of the pending frame has elapsed, when Flush forces it, or
// when Analyze is called directly. Run drives Tick from a ticker.
//
// # Events
//
// Accepted changes are delivered by value to every channel returned by
// Subscribe, and are also returned from Tick, Flush and Analyze. Delivery never
// blocks the session: a subscriber whose buffer is full misses the event and
// the drop is counted.
//
// # Failures
//
// Per-frame failures never reach the caller. Malformed frames, dimension
// changes and recovered panics are logged through zap, counted by the
// Collector, and treated as "no event".
package session
