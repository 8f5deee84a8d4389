// Package cpumeter derives CPU utilization from idle-wait loop counts.
//
// While the scheduler polls for the next tick it counts loop iterations.
// Relating that count to the calibrated iterations-per-tick at 0% load
// yields the fraction of the tick spent busy. All hot-path arithmetic is
// integer; the only floating point lives in construction.
package cpumeter

import (
	"errors"
	"fmt"
)

var ErrInvalidCalibration = errors.New("idle calibration constant must be > 0")

// Sample is one per-tick utilization measurement.
type Sample struct {
	Tick      uint32
	IdleIters uint32
	Percent   uint8 // 0..100
}

// Meter computes bounded utilization values.
//
// The fixed-point load factor mirrors the millisecond scaling of the
// original contract: (1000 / period_cycles) << 16, for targets that want a
// Q16 milliseconds-per-count multiplier without floating point.
type Meter struct {
	fullIdle      uint32
	loadFactorQ16 uint32

	last Sample
}

// New builds a meter from the calibrated full-idle iteration count and the
// timer period in counter cycles.
func New(fullIdleIters, periodCycles uint32) (*Meter, error) {
	if fullIdleIters == 0 {
		return nil, ErrInvalidCalibration
	}
	if periodCycles == 0 {
		return nil, fmt.Errorf("timer period cycles must be > 0")
	}
	return &Meter{
		fullIdle:      fullIdleIters,
		loadFactorQ16: uint32((1000.0 / float64(periodCycles)) * 65536.0),
	}, nil
}

// FullIdleIters reports the calibration constant in use.
func (m *Meter) FullIdleIters() uint32 { return m.fullIdle }

// Sample converts an observed idle iteration count into a clamped
// utilization percentage for the given tick.
//
// idle == 0 means the whole tick was busy (100%); idle >= the calibration
// constant means fully idle (0%). Jitter can push the observed count past
// the constant; the clamp absorbs that.
func (m *Meter) Sample(tick, idleIters uint32) Sample {
	var pct uint32
	switch {
	case idleIters >= m.fullIdle:
		pct = 0
	default:
		pct = (100 * (m.fullIdle - idleIters)) / m.fullIdle
		if pct > 100 {
			pct = 100
		}
	}
	s := Sample{Tick: tick, IdleIters: idleIters, Percent: uint8(pct)}
	m.last = s
	return s
}

// Last returns the most recent sample.
func (m *Meter) Last() Sample { return m.last }

// ScaleQ16 multiplies a counter-cycle quantity by the Q16 millisecond load
// factor, returning milliseconds in Q16 fixed point.
func (m *Meter) ScaleQ16(cycles uint32) uint64 {
	return uint64(cycles) * uint64(m.loadFactorQ16)
}
