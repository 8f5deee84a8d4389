package hal

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedTarget is returned when the configured device family has no
// registered implementation.
var ErrUnsupportedTarget = errors.New("unsupported target device family")

// TickSource is the periodic hardware timer feeding the scheduler.
//
// One flag bit carries the "tick available" signal. The interrupt path is
// the only writer of the flag; the polling context is the only reader and
// clearer. ReadCounter exposes the timer's fine counter for runtime
// measurement; it wraps at ReadPeriod.
type TickSource interface {
	ReadCounter() uint32
	ReadPeriod() uint32
	TickFlagIsSet() bool
	ClearTickFlag()
	Close() error
}

// DebugPin is the profiling clockout line.
type DebugPin interface {
	Init()
	Set(level bool)
}

// Options carries the timer wiring parameters from the configuration
// contract. ISRPriority and ISREnabled are recorded by targets that have a
// real interrupt controller; the sim target only validates them.
type Options struct {
	TickPeriod    time.Duration
	TimerSelector int
	ISRPriority   int
	ISREnabled    bool
}

func (o Options) validate() error {
	if o.TickPeriod <= 0 {
		return fmt.Errorf("tick period must be > 0, got %s", o.TickPeriod)
	}
	if o.ISRPriority < 0 || o.ISRPriority > 7 {
		return fmt.Errorf("isr priority must be in [0,7], got %d", o.ISRPriority)
	}
	return nil
}

// Target is one device family: it hands out the timer selected by the
// configuration and, when profiling is enabled, the debug output pin.
type Target interface {
	Family() string
	Timer(opts Options) (TickSource, error)
	DebugPin(name string) (DebugPin, error)
}
