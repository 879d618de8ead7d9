// Package exchange orchestrates one request/response cycle between the
// conversation store and the completion session.
//
// # State Machine
//
// Each accepted submission walks one path:
//
//	Idle -> Submitting -> Streaming -> {Completed | Failed} -> Idle
//
//   - Submitting: busy flag acquired, user message appended, typing
//     placeholder appended.
//   - Streaming: stream opened (placeholder swapped for an empty reply),
//     then each increment folds onto the reply in arrival order.
//   - Completed: the stream exhausts; the last fold already finished the
//     reply.
//   - Failed: open-time or mid-stream failure; the reply (or placeholder)
//     is replaced with a fixed error message and any partial text is
//     discarded. Failures never propagate to the submitter.
//
// The busy flag is released on every terminal path via defer, so no
// failure mode can wedge the widget shut.
//
// # Single-Flight
//
// Submit rejects silently while an exchange is in flight. Combined with
// the store's atomic Acquire this serializes all session access: the
// session never sees concurrent streams, and the store never sees
// interleaved exchanges.
package exchange
