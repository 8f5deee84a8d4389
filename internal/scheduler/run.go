package scheduler

import (
	"context"
	"fmt"

	"taskmgr/pkg/logx"
)

// stopPollMask bounds how often the idle loop checks for shutdown. The
// check costs a lock, so it runs once per 1024 iterations; everything in
// between is the same bare flag poll the calibration constant was measured
// against.
const stopPollMask = 0x3ff

// Run owns the polling context. It busy-waits on the tick flag counting
// idle iterations (the load meter input), clears the flag, handles the tick
// and feeds the meters. It blocks until the context is canceled, Stop is
// called, or a task fault escalates.
//
// A fault return leaves the engine Stopped; cancellation and Stop return
// nil, also leaving it Stopped. Either way a fresh Arm is required before
// the engine runs again.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateArmed:
	case StateRunning:
		e.mu.Unlock()
		return ErrAlreadyRunning
	default:
		st := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrNotArmed, st)
	}
	src := e.deps.Source
	e.setStateLocked(StateRunning)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.setStateLocked(StateStopped)
		e.mu.Unlock()
	}()

	e.log.Info("scheduler running", logx.Uint32("period_cycles", src.ReadPeriod()))

	for {
		// Idle wait. One writer (the interrupt path) sets the flag; this
		// loop is the only reader and clearer.
		var idle uint32
		for !src.TickFlagIsSet() {
			idle++
			if idle&stopPollMask == 0 {
				if ctx.Err() != nil {
					return nil
				}
				e.mu.Lock()
				stop := e.stopRequested
				e.mu.Unlock()
				if stop {
					return nil
				}
			}
		}
		src.ClearTickFlag()

		ran, err := e.Tick()
		e.RecordIdle(idle)
		if err != nil {
			return err
		}
		_ = ran

		if ctx.Err() != nil {
			return nil
		}
		e.mu.Lock()
		stop := e.stopRequested
		e.mu.Unlock()
		if stop {
			return nil
		}
	}
}
