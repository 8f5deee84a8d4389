package calib

import (
	"errors"
	"testing"

	"taskmgr/pkg/logx"
)

func TestDefaultTable(t *testing.T) {
	t.Parallel()
	tbl := Default()

	if tbl.Toolchain != "1.40" {
		t.Fatalf("toolchain = %q, want 1.40", tbl.Toolchain)
	}

	tests := []struct {
		profile string
		want    uint32
	}{
		{profile: "O0", want: 28},
		{profile: "O1", want: 20},
		{profile: "O2", want: 23},
		{profile: "Os", want: 23},
		{profile: "O3", want: 23},
		{profile: "user", want: 21},
		{profile: "", want: 23}, // empty defaults to O2
	}
	for _, tt := range tests {
		got, err := tbl.CyclesPerLoop(tt.profile)
		if err != nil {
			t.Fatalf("CyclesPerLoop(%q): %v", tt.profile, err)
		}
		if got != tt.want {
			t.Fatalf("CyclesPerLoop(%q) = %d, want %d", tt.profile, got, tt.want)
		}
	}
}

func TestUnknownProfile(t *testing.T) {
	t.Parallel()
	if _, err := Default().CyclesPerLoop("O9"); !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("error = %v, want ErrUnknownProfile", err)
	}
}

func TestIterationsPerTick(t *testing.T) {
	t.Parallel()
	// 100us tick at 40 MIPS is 4000 cycles; O2 burns 23 per loop.
	if got := IterationsPerTick(4000, 23); got != 173 {
		t.Fatalf("IterationsPerTick(4000, 23) = %d, want 173", got)
	}
	if got := IterationsPerTick(4000, 0); got != 0 {
		t.Fatalf("IterationsPerTick with zero loop cost = %d, want 0", got)
	}
}

func TestCheckToolchainMatchIsQuiet(t *testing.T) {
	t.Parallel()
	tbl := Default()
	// Nop logger: the point is that neither call panics or errors.
	tbl.CheckToolchain("1.40", logx.Nop())
	tbl.CheckToolchain("", logx.Nop())
	tbl.CheckToolchain("2.00", logx.Nop())
}

// calibSource raises the tick flag once every `every` polls.
type calibSource struct {
	every int
	polls int
}

func (c *calibSource) ReadCounter() uint32 { return 0 }
func (c *calibSource) ReadPeriod() uint32  { return 10000 }
func (c *calibSource) TickFlagIsSet() bool {
	c.polls++
	return c.polls%c.every == 0
}
func (c *calibSource) ClearTickFlag() {}
func (c *calibSource) Close() error   { return nil }

func TestSelfCalibrate(t *testing.T) {
	t.Parallel()
	// Flag set on every 100th poll: each tick window observes 99 idle
	// iterations before the set poll.
	src := &calibSource{every: 100}
	got, err := SelfCalibrate(src, 8)
	if err != nil {
		t.Fatalf("SelfCalibrate: %v", err)
	}
	if got != 99 {
		t.Fatalf("median idle iterations = %d, want 99", got)
	}
}

func TestSelfCalibrateRejectsZeroMedian(t *testing.T) {
	t.Parallel()
	// Flag always set: zero idle iterations per window, unusable.
	src := &calibSource{every: 1}
	if _, err := SelfCalibrate(src, 8); err == nil {
		t.Fatal("zero-median calibration must fail")
	}
}

func TestSelfCalibrateNilSource(t *testing.T) {
	t.Parallel()
	if _, err := SelfCalibrate(nil, 8); err == nil {
		t.Fatal("nil source must fail")
	}
}
