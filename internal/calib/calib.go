// Package calib supplies the idle-loop calibration constant the CPU load
// meter divides by.
//
// The constant is the number of idle-wait loop iterations that fit in one
// tick when the CPU does nothing else. It depends on the code generation of
// the build (optimization level, compiler version), so it cannot be computed
// portably at runtime from first principles. Two sources are supported:
//
//   - a versioned table of measured values keyed by optimization profile,
//     carried in configuration;
//   - SelfCalibrate, which measures the value on the live tick source during
//     a quiet startup window.
//
// A toolchain mismatch against the table is an advisory, not an error: the
// engine keeps running but the integrator must re-validate the constants.
package calib

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"taskmgr/internal/hal"
	"taskmgr/pkg/logx"
)

var ErrUnknownProfile = errors.New("unknown optimization profile")

// Table maps optimization profiles to cycles consumed by one idle-wait loop
// iteration, measured against a specific toolchain version.
type Table struct {
	Toolchain string
	Cycles    map[string]uint32
}

// Default returns the shipped measurements for the reference target.
func Default() Table {
	return Table{
		Toolchain: "1.40",
		Cycles: map[string]uint32{
			"O0":   28,
			"O1":   20,
			"O2":   23,
			"Os":   23,
			"O3":   23,
			"user": 21,
		},
	}
}

// CyclesPerLoop resolves the idle loop cost for the given profile.
func (t Table) CyclesPerLoop(profile string) (uint32, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "O2"
	}
	c, ok := t.Cycles[profile]
	if !ok || c == 0 {
		return 0, fmt.Errorf("%w: %q (known: %s)", ErrUnknownProfile, profile, strings.Join(t.profiles(), ", "))
	}
	return c, nil
}

// IterationsPerTick converts a per-loop cycle cost into the full-idle
// iteration count for a timer period given in counter cycles.
func IterationsPerTick(periodCycles, cyclesPerLoop uint32) uint32 {
	if cyclesPerLoop == 0 {
		return 0
	}
	return periodCycles / cyclesPerLoop
}

// CheckToolchain compares the running build's toolchain against the version
// the table was measured with. Mismatch is advisory only.
func (t Table) CheckToolchain(current string, log logx.Logger) {
	current = strings.TrimSpace(current)
	if current == "" || current == t.Toolchain {
		return
	}
	log.Warn("calibration table was measured against a different toolchain; re-validate the idle calibration constant",
		logx.String("table_toolchain", t.Toolchain),
		logx.String("build_toolchain", current))
}

func (t Table) profiles() []string {
	out := make([]string, 0, len(t.Cycles))
	for k := range t.Cycles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SelfCalibrate measures iterations-per-tick at 0% load by running the same
// poll loop the scheduler uses, over a quiet window of ticks. The caller
// must not have started the scheduler yet; any concurrent work skews the
// result downward.
//
// The median of the sampled ticks is returned to shed scheduling jitter.
func SelfCalibrate(src hal.TickSource, ticks int) (uint32, error) {
	if src == nil {
		return 0, errors.New("nil tick source")
	}
	if ticks < 3 {
		ticks = 3
	}

	// Align to a tick boundary first so the initial partial window is not
	// counted.
	for !src.TickFlagIsSet() {
	}
	src.ClearTickFlag()

	samples := make([]uint32, 0, ticks)
	for i := 0; i < ticks; i++ {
		var iters uint32
		for !src.TickFlagIsSet() {
			iters++
		}
		src.ClearTickFlag()
		samples = append(samples, iters)
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	med := samples[len(samples)/2]
	if med == 0 {
		return 0, errors.New("self-calibration observed zero idle iterations; tick period too short for this host")
	}
	return med, nil
}
