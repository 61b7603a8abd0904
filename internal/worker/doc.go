// Package worker spawns worker subprocesses and exposes their output as a
// message stream.
//
// A worker is started once per run. The request envelope is written to its
// stdin, which is then closed. Its stdout carries newline-delimited messages
// and is read lazily through Run.Next, in arrival order.
//
// Termination:
//   - Cancelling the start context, or an expired per-worker timeout, sends
//     SIGTERM, then SIGKILL after the grace period.
//   - Close waits up to the grace period for a natural exit before
//     terminating, so workers that linger after "done" are reaped.
//   - There is no timeout by default; a worker that never emits "done" and
//     never exits keeps the reader waiting.
//
// Stderr is captured (capped at 64KB) for diagnostics.
package worker
