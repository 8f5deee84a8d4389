// Package monitor measures per-task execution time against configured
// quotas.
//
// Measurement is detective, never preventive: a task that blows its quota
// runs to completion and later tasks in the same tick still dispatch. The
// monitor only records what happened.
package monitor

import (
	"golang.org/x/time/rate"

	"taskmgr/internal/hal"
	"taskmgr/pkg/logx"
)

// Sample is one per-dispatch runtime measurement.
type Sample struct {
	Tick         uint32
	TaskID       string
	RuntimeTicks uint32
	QuotaTicks   uint32
	Overrun      bool
}

// Monitor brackets each dispatch with fine-counter reads.
type Monitor struct {
	src hal.TickSource
	log logx.Logger

	// A task stuck over quota would otherwise emit one warning per tick,
	// which at a 100µs tick is a log storm. One line per second is enough
	// for an operator to notice.
	warnLimit *rate.Limiter

	overruns uint64
}

func New(src hal.TickSource, log logx.Logger) *Monitor {
	return &Monitor{
		src:       src,
		log:       log,
		warnLimit: rate.NewLimiter(rate.Limit(1), 3),
	}
}

// Begin captures the fine counter before a dispatch.
func (m *Monitor) Begin() uint32 { return m.src.ReadCounter() }

// End returns the counter distance since start, wrap-aware against the
// timer period. Runtimes longer than one full period alias; the quota model
// assumes tasks stay well inside a tick.
func (m *Monitor) End(start uint32) uint32 {
	end := m.src.ReadCounter()
	if end >= start {
		return end - start
	}
	return m.src.ReadPeriod() - start + end
}

// Observe records a finished dispatch and classifies it against the quota.
// A zero quota disables overrun detection for the task.
func (m *Monitor) Observe(tick uint32, taskID string, runtime, quota uint32) Sample {
	s := Sample{
		Tick:         tick,
		TaskID:       taskID,
		RuntimeTicks: runtime,
		QuotaTicks:   quota,
		Overrun:      quota > 0 && runtime > quota,
	}
	if s.Overrun {
		m.overruns++
		if m.warnLimit.Allow() {
			m.log.Warn("task exceeded execution quota",
				logx.String("task", taskID),
				logx.Uint32("tick", tick),
				logx.Uint32("runtime_ticks", runtime),
				logx.Uint32("quota_ticks", quota),
				logx.Uint64("total_overruns", m.overruns))
		}
	}
	return s
}

// Overruns reports the lifetime overrun count.
func (m *Monitor) Overruns() uint64 { return m.overruns }
