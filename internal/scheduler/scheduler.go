package scheduler

import (
	"fmt"
	"sync"
	"time"

	"taskmgr/internal/cpumeter"
	"taskmgr/internal/eventbus"
	"taskmgr/internal/hal"
	"taskmgr/internal/monitor"
	"taskmgr/internal/profiler"
	"taskmgr/pkg/logx"
)

// Deps are the collaborators the engine dispatches through. Meter, Monitor,
// Profiler and Bus are optional; a nil collaborator simply isn't fed.
type Deps struct {
	Source   hal.TickSource
	Meter    *cpumeter.Meter
	Monitor  *monitor.Monitor
	Profiler *profiler.Profiler
	Bus      eventbus.Bus
	Log      logx.Logger
}

// Engine owns the task table and the tick counter. It is the sole mutator
// of both.
//
// The mutex exists for the daemon-side callers (Register from setup code,
// Snapshot from a reporting job); the tick path itself is single-threaded.
// Because Tick holds the lock for the whole dispatch pass, an Unregister
// issued mid-tick takes effect from the next not-yet-started dispatch,
// never mid-pass.
type Engine struct {
	mu sync.Mutex

	cfg  Config
	deps Deps
	log  logx.Logger

	state State
	tick  uint32
	tasks []*taskEntry

	stopRequested bool
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.MaxTasks <= 0 {
		return nil, fmt.Errorf("max tasks must be > 0, got %d", cfg.MaxTasks)
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:   cfg,
		deps:  deps,
		log:   log,
		state: StateUninitialized,
		tasks: make([]*taskEntry, 0, cfg.MaxTasks),
	}, nil
}

// Register adds a task descriptor. Insertion order is dispatch order.
func (e *Engine) Register(spec TaskSpec) error {
	if spec.Action == nil || spec.PeriodTicks == 0 || spec.ID == "" {
		return fmt.Errorf("%w: id, action and a non-zero period are required", ErrInvalidTask)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tasks) >= e.cfg.MaxTasks {
		return fmt.Errorf("%w: table holds %d tasks", ErrCapacityExceeded, e.cfg.MaxTasks)
	}
	if e.indexOfLocked(spec.ID) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateID, spec.ID)
	}

	e.tasks = append(e.tasks, &taskEntry{
		id:          spec.ID,
		periodTicks: spec.PeriodTicks,
		quotaTicks:  spec.QuotaTicks,
		action:      spec.Action,
		enabled:     !spec.Disabled,
		lastRunTick: e.tick,
	})
	e.log.Debug("task registered",
		logx.String("task", spec.ID),
		logx.Uint32("period_ticks", spec.PeriodTicks),
		logx.Uint32("quota_ticks", spec.QuotaTicks),
		logx.Int("slot", len(e.tasks)-1))
	return nil
}

// Unregister removes a task. Subsequent ticks never invoke it.
func (e *Engine) Unregister(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	e.tasks = append(e.tasks[:i], e.tasks[i+1:]...)
	e.log.Debug("task unregistered", logx.String("task", id))
	return nil
}

// Enable resumes dispatching of a registered task. The last-run bookkeeping
// is refreshed so a long-disabled task does not fire immediately on a stale
// deadline.
func (e *Engine) Enable(id string) error {
	return e.setEnabled(id, true)
}

// Disable stops dispatching of a registered task without removing it.
func (e *Engine) Disable(id string) error {
	return e.setEnabled(id, false)
}

func (e *Engine) setEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	t := e.tasks[i]
	if enabled && !t.enabled {
		t.lastRunTick = e.tick
	}
	t.enabled = enabled
	return nil
}

func (e *Engine) indexOfLocked(id string) int {
	for i, t := range e.tasks {
		if t.id == id {
			return i
		}
	}
	return -1
}

// Arm transitions the engine to Armed: tasks may be registered, the timer
// is live, Tick is accepted. Re-arming a Stopped engine is the only way
// back toward Running.
func (e *Engine) Arm() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateRunning:
		return ErrAlreadyRunning
	case StateUninitialized, StateArmed, StateStopped:
	}
	if e.deps.Source == nil {
		return fmt.Errorf("cannot arm: no tick source")
	}
	e.stopRequested = false
	e.setStateLocked(StateArmed)
	return nil
}

// Stop halts dispatching. Tick becomes a no-op until the engine is
// re-armed. Safe to call from any goroutine; a Run loop in progress exits
// at the next tick boundary.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped || e.state == StateUninitialized {
		return
	}
	e.stopRequested = true
	if e.state == StateArmed {
		e.setStateLocked(StateStopped)
	}
}

// State reports the current lifecycle phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TickCounter reports the confirmed tick count (wraps at 2^32).
func (e *Engine) TickCounter() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Tick handles exactly one confirmed hardware tick event: it increments the
// tick counter and dispatches every enabled, due task in registration
// order, each synchronously to completion.
//
// A task is due on tick T iff enabled and T - last_run >= period (wrap-safe
// unsigned arithmetic); at most one dispatch per task per tick. A task
// fault aborts the remaining dispatch for this tick and is escalated, not
// swallowed; tasks already run are still reported.
func (e *Engine) Tick() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateUninitialized:
		return nil, ErrNotArmed
	case StateStopped:
		return nil, nil
	}

	e.tick++

	var ran []string
	for slot, t := range e.tasks {
		if !t.enabled {
			continue
		}
		if e.tick-t.lastRunTick < t.periodTicks {
			continue
		}
		t.lastRunTick = e.tick

		if p := e.deps.Profiler; p != nil {
			p.TaskBegin(slot)
		}
		var start uint32
		if m := e.deps.Monitor; m != nil {
			start = m.Begin()
		}

		err := runAction(t.action)

		var runtimeTicks uint32
		if m := e.deps.Monitor; m != nil {
			runtimeTicks = m.End(start)
		}
		if p := e.deps.Profiler; p != nil {
			p.TaskEnd()
		}

		t.lastRuntimeTicks = runtimeTicks
		t.dispatches++
		ran = append(ran, t.id)

		if m := e.deps.Monitor; m != nil {
			s := m.Observe(e.tick, t.id, runtimeTicks, t.quotaTicks)
			if s.Overrun {
				t.overruns++
			}
			if p := e.deps.Profiler; p != nil {
				p.RecordRuntime(s)
			}
			if b := e.deps.Bus; b != nil {
				typ := eventbus.TypeRuntimeSample
				if s.Overrun {
					typ = eventbus.TypeOverrun
				}
				b.Publish(eventbus.Event{Type: typ, Data: s})
			}
		}

		if err != nil {
			fault := fmt.Errorf("task %q faulted on tick %d: %w", t.id, e.tick, err)
			e.log.Error("task fault; aborting remaining dispatch for this tick",
				logx.String("task", t.id), logx.Uint32("tick", e.tick), logx.Err(err))
			if b := e.deps.Bus; b != nil {
				b.Publish(eventbus.Event{Type: eventbus.TypeTaskFault, Data: fault.Error()})
			}
			return ran, fault
		}
	}
	return ran, nil
}

// RecordIdle feeds the load meter with the idle iteration count observed
// while waiting for the tick that was just handled, and routes the sample
// to the profiler and the bus. Called by Run; exposed for external drivers
// of Tick.
func (e *Engine) RecordIdle(idleIters uint32) cpumeter.Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recordIdleLocked(idleIters)
}

func (e *Engine) recordIdleLocked(idleIters uint32) cpumeter.Sample {
	m := e.deps.Meter
	if m == nil {
		return cpumeter.Sample{Tick: e.tick, IdleIters: idleIters}
	}
	s := m.Sample(e.tick, idleIters)
	if p := e.deps.Profiler; p != nil {
		p.RecordLoad(s)
	}
	if b := e.deps.Bus; b != nil {
		b.Publish(eventbus.Event{Type: eventbus.TypeLoadSample, Data: s})
	}
	return s
}

// Snapshot returns a diagnostics view of the engine.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		State:       e.state,
		TickCounter: e.tick,
		MaxTasks:    e.cfg.MaxTasks,
		Tasks:       make([]TaskInfo, 0, len(e.tasks)),
	}
	if m := e.deps.Meter; m != nil {
		snap.Utilization = m.Last().Percent
	}
	if m := e.deps.Monitor; m != nil {
		snap.Overruns = m.Overruns()
	}
	for _, t := range e.tasks {
		snap.Tasks = append(snap.Tasks, TaskInfo{
			ID:               t.id,
			PeriodTicks:      t.periodTicks,
			QuotaTicks:       t.quotaTicks,
			Enabled:          t.enabled,
			LastRunTick:      t.lastRunTick,
			LastRuntimeTicks: t.lastRuntimeTicks,
			Dispatches:       t.dispatches,
			Overruns:         t.overruns,
		})
	}
	return snap
}

func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	old := e.state
	e.state = s
	e.log.Info("scheduler state change",
		logx.String("from", old.String()), logx.String("to", s.String()))
	if b := e.deps.Bus; b != nil {
		b.Publish(eventbus.Event{Type: eventbus.TypeStateChange, Time: time.Now(), Data: s.String()})
	}
}

// runAction invokes a task body, converting a panic into a fault error so
// the dispatch loop can escalate it uniformly.
func runAction(a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a()
}
