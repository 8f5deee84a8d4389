package hal

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// simCounterHz is the simulated instruction clock driving the fine counter.
// 100 MHz gives a 10000-count period at the default 100µs tick.
const simCounterHz = 100_000_000

func init() {
	Register("sim", func() Target { return &simTarget{} })
}

// simTarget is the host-side device family. It exists so the whole engine,
// meters included, runs and is testable without hardware.
type simTarget struct {
	mu   sync.Mutex
	pins map[string]*SimPin
}

func (t *simTarget) Family() string { return "sim" }

func (t *simTarget) Timer(opts Options) (TickSource, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.TimerSelector < 1 || opts.TimerSelector > 4 {
		return nil, fmt.Errorf("sim target has timers 1..4, got %d", opts.TimerSelector)
	}

	period := uint64(opts.TickPeriod.Seconds() * simCounterHz)
	if period == 0 || period > 1<<31 {
		return nil, fmt.Errorf("tick period %s out of simulated timer range", opts.TickPeriod)
	}

	st := &simTimer{
		period:     uint32(period),
		tickPeriod: opts.TickPeriod,
		done:       make(chan struct{}),
	}
	st.windowStart.Store(time.Now().UnixNano())
	go st.interruptLoop()
	return st, nil
}

func (t *simTarget) DebugPin(name string) (DebugPin, error) {
	if name == "" {
		return nil, fmt.Errorf("debug pin name is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pins == nil {
		t.pins = map[string]*SimPin{}
	}
	p := t.pins[name]
	if p == nil {
		p = &SimPin{name: name}
		t.pins[name] = p
	}
	return p, nil
}

// simTimer emulates a periodic hardware timer with one interrupt flag bit.
//
// The interrupt loop is the sole writer of the flag (it latches, never
// clears); the poll side is the sole reader/clearer. The flag is a latch:
// if the poll side is late, consecutive periods collapse into one pending
// tick, which is exactly how a flag bit behaves on silicon.
type simTimer struct {
	period      uint32
	tickPeriod  time.Duration
	flag        atomic.Bool
	windowStart atomic.Int64 // unix nanos of the current tick window
	done        chan struct{}
	closeOnce   sync.Once
}

func (s *simTimer) interruptLoop() {
	tk := time.NewTicker(s.tickPeriod)
	defer tk.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-tk.C:
			s.windowStart.Store(now.UnixNano())
			s.flag.Store(true)
		}
	}
}

func (s *simTimer) ReadCounter() uint32 {
	elapsed := time.Duration(time.Now().UnixNano() - s.windowStart.Load())
	counts := uint64(elapsed.Seconds() * simCounterHz)
	return uint32(counts % uint64(s.period))
}

func (s *simTimer) ReadPeriod() uint32 { return s.period }

func (s *simTimer) TickFlagIsSet() bool { return s.flag.Load() }

func (s *simTimer) ClearTickFlag() { s.flag.Store(false) }

func (s *simTimer) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// SimPin records writes instead of driving a latch register. Counters are
// atomic so test assertions can read them while the engine runs.
type SimPin struct {
	name   string
	inited atomic.Bool
	level  atomic.Bool
	writes atomic.Uint64
}

func (p *SimPin) Init() { p.inited.Store(true) }

func (p *SimPin) Set(level bool) {
	p.level.Store(level)
	p.writes.Add(1)
}

func (p *SimPin) Name() string   { return p.name }
func (p *SimPin) Level() bool    { return p.level.Load() }
func (p *SimPin) Writes() uint64 { return p.writes.Load() }
func (p *SimPin) Inited() bool   { return p.inited.Load() }
