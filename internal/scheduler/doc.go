// Package scheduler is the control nucleus: a cooperative, fixed-tick task
// dispatcher with CPU load metering, per-task runtime monitoring and
// optional profiling capture.
//
// The model is strictly single-threaded and non-preemptive. Every task
// action, meter update and profiler write happens inside one logical
// tick-handling context. The hardware interrupt path's only duty is to
// latch the tick flag; the poll loop in Run consumes it.
//
// Lifecycle: Uninitialized -> Armed -> Running -> Stopped. Tick() is a
// no-op once Stopped; a stopped engine must be re-armed before it runs
// again.
package scheduler
