// Package profiler is the instrumentation sink of the engine.
//
// It drives the debug clockout pin around task execution windows so an
// oscilloscope can see where CPU time goes, and it retains bounded history
// buffers of recent load and runtime samples for inspection from a debugger
// breakpoint. It has no feedback into scheduling.
package profiler

import (
	"taskmgr/internal/cpumeter"
	"taskmgr/internal/hal"
	"taskmgr/internal/monitor"
	"taskmgr/internal/ring"
)

type Config struct {
	Enabled         bool
	DetailedPattern bool
	HistoryLength   int
}

// Profiler is a pure sink. When disabled every method is a no-op: no pin
// writes, no ring appends, and the scheduler behaves identically.
type Profiler struct {
	cfg Config
	pin hal.DebugPin

	load     *ring.Buffer[cpumeter.Sample]
	runtimes *ring.Buffer[monitor.Sample]
}

func New(cfg Config, pin hal.DebugPin) *Profiler {
	p := &Profiler{cfg: cfg, pin: pin}
	if !cfg.Enabled {
		return p
	}
	if p.cfg.HistoryLength <= 0 {
		p.cfg.HistoryLength = 16
	}
	p.load = ring.New[cpumeter.Sample](p.cfg.HistoryLength)
	p.runtimes = ring.New[monitor.Sample](p.cfg.HistoryLength)
	if pin != nil {
		pin.Init()
	}
	return p
}

func (p *Profiler) Enabled() bool { return p.cfg.Enabled }

// TaskBegin raises the clockout line at the start of a task window. In
// detailed mode it first emits slot+1 short pulses so tasks sharing the
// line can be told apart on a scope.
func (p *Profiler) TaskBegin(slot int) {
	if !p.cfg.Enabled || p.pin == nil {
		return
	}
	if p.cfg.DetailedPattern {
		for i := 0; i <= slot; i++ {
			p.pin.Set(true)
			p.pin.Set(false)
		}
	}
	p.pin.Set(true)
}

// TaskEnd drops the line at the end of the window.
func (p *Profiler) TaskEnd() {
	if !p.cfg.Enabled || p.pin == nil {
		return
	}
	p.pin.Set(false)
}

func (p *Profiler) RecordLoad(s cpumeter.Sample) {
	if !p.cfg.Enabled {
		return
	}
	p.load.Push(s)
}

func (p *Profiler) RecordRuntime(s monitor.Sample) {
	if !p.cfg.Enabled {
		return
	}
	p.runtimes.Push(s)
}

// LoadHistory returns recent load samples, oldest first.
func (p *Profiler) LoadHistory() []cpumeter.Sample {
	if !p.cfg.Enabled {
		return nil
	}
	return p.load.Snapshot()
}

// RuntimeHistory returns recent runtime samples, oldest first.
func (p *Profiler) RuntimeHistory() []monitor.Sample {
	if !p.cfg.Enabled {
		return nil
	}
	return p.runtimes.Snapshot()
}
