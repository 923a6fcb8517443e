// Package workers implements the worker pool executing conversion attempts.
//
// The pool manages a fixed number of goroutines that:
//   - Accept jobs from the orchestrator's scheduling loop via Dispatch
//   - Run one task attempt to completion or suspension
//   - Report busy/idle state to the health monitor
//
// Dispatch blocks while all workers are busy, so the pool size is the hard
// concurrency bound of the pipeline.
package workers
