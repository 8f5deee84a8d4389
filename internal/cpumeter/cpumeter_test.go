package cpumeter

import (
	"errors"
	"testing"
)

func TestNewRejectsZeroCalibration(t *testing.T) {
	t.Parallel()
	if _, err := New(0, 10000); !errors.Is(err, ErrInvalidCalibration) {
		t.Fatalf("New(0, _) error = %v, want ErrInvalidCalibration", err)
	}
	if _, err := New(100, 0); err == nil {
		t.Fatal("New(_, 0) should fail")
	}
}

func TestSampleBoundaries(t *testing.T) {
	t.Parallel()
	m, err := New(200, 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name string
		idle uint32
		want uint8
	}{
		{name: "fully busy", idle: 0, want: 100},
		{name: "fully idle", idle: 200, want: 0},
		{name: "idle beyond calibration (jitter)", idle: 350, want: 0},
		{name: "three quarters busy", idle: 50, want: 75},
		{name: "half busy", idle: 100, want: 50},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := m.Sample(7, tt.idle)
			if s.Percent != tt.want {
				t.Fatalf("Percent = %d, want %d", s.Percent, tt.want)
			}
			if s.Tick != 7 || s.IdleIters != tt.idle {
				t.Fatalf("sample bookkeeping wrong: %+v", s)
			}
		})
	}
}

func TestSampleAlwaysBounded(t *testing.T) {
	t.Parallel()
	const full = 137
	m, err := New(full, 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for idle := uint32(0); idle <= 2*full; idle++ {
		s := m.Sample(idle, idle)
		if s.Percent > 100 {
			t.Fatalf("utilization out of bounds for idle=%d: %d", idle, s.Percent)
		}
	}
}

func TestLastTracksMostRecentSample(t *testing.T) {
	t.Parallel()
	m, _ := New(100, 10000)
	m.Sample(1, 100)
	m.Sample(2, 0)
	if got := m.Last(); got.Tick != 2 || got.Percent != 100 {
		t.Fatalf("Last = %+v, want tick 2 at 100%%", got)
	}
}

func TestScaleQ16(t *testing.T) {
	t.Parallel()
	// period 1000 cycles -> load factor = (1000/1000) << 16 = 65536.
	m, err := New(10, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := m.ScaleQ16(2); got != 2*65536 {
		t.Fatalf("ScaleQ16(2) = %d, want %d", got, 2*65536)
	}
}
