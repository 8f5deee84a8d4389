package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskmgr/pkg/logx"
)

func intPtr(v int) *int { return &v }

func validLoad() LoadConfig {
	return LoadConfig{OptimizationProfile: "O2"}
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{Load: validLoad()}
	r, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if r.TickPeriod != 100*time.Microsecond {
		t.Fatalf("TickPeriod = %v, want 100us", r.TickPeriod)
	}
	if r.TimerSelector != 1 {
		t.Fatalf("TimerSelector = %d, want 1", r.TimerSelector)
	}
	if r.ISRPriority != 1 || r.ISREnabled {
		t.Fatalf("ISR defaults = (%d, %v), want (1, false)", r.ISRPriority, r.ISREnabled)
	}
	if r.MaxTasks != 16 {
		t.Fatalf("MaxTasks = %d, want 16", r.MaxTasks)
	}
	if r.TargetFamily != "sim" {
		t.Fatalf("TargetFamily = %q, want sim", r.TargetFamily)
	}
	if r.HistoryLength != 16 {
		t.Fatalf("HistoryLength = %d, want 16", r.HistoryLength)
	}
	if r.SelfCalibrateTicks != 32 {
		t.Fatalf("SelfCalibrateTicks = %d, want 32", r.SelfCalibrateTicks)
	}
	if !r.LogConsole {
		t.Fatal("console logging must default on")
	}
	if r.ReportSpec != "@every 1m" || r.PruneSpec != "@every 1h" || r.PruneMaxAge != 24*time.Hour {
		t.Fatalf("maintenance defaults wrong: %q %q %v", r.ReportSpec, r.PruneSpec, r.PruneMaxAge)
	}
	if r.StorageDriver != "" {
		t.Fatalf("StorageDriver = %q, want empty (persistence off)", r.StorageDriver)
	}
}

func TestResolveRejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "explicit zero tick period", cfg: Config{TickPeriod: "0s", Load: validLoad()}},
		{name: "negative tick period", cfg: Config{TickPeriod: "-1ms", Load: validLoad()}},
		{name: "unparsable tick period", cfg: Config{TickPeriod: "soon", Load: validLoad()}},
		{name: "isr priority above range", cfg: Config{ISRPriority: intPtr(8), Load: validLoad()}},
		{name: "isr priority below range", cfg: Config{ISRPriority: intPtr(-1), Load: validLoad()}},
		{name: "negative max tasks", cfg: Config{MaxTasks: -1, Load: validLoad()}},
		{name: "debug enabled without pin", cfg: Config{
			Debug: DebugConfig{OutputEnabled: true},
			Load:  validLoad(),
		}},
		{name: "no calibration source", cfg: Config{}},
		{name: "unknown storage driver", cfg: Config{
			Load:    validLoad(),
			Storage: &StorageConfig{Driver: "postgres"},
		}},
		{name: "file logging without path", cfg: Config{
			Load:    validLoad(),
			Logging: LoggingConfig{File: FileConfig{Enabled: true}},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tt.cfg.Resolve(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Resolve error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestResolveExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := Config{
		TickPeriod:    "1ms",
		TimerSelector: 3,
		ISRPriority:   intPtr(4),
		ISREnabled:    true,
		MaxTasks:      8,
		Debug: DebugConfig{
			OutputEnabled:   true,
			OutputPin:       "RB14",
			DetailedPattern: true,
			HistoryLength:   64,
		},
		Load: LoadConfig{CalibrationConstant: 180},
		Storage: &StorageConfig{
			Driver:      "File",
			Path:        "/var/lib/taskmgr/samples",
			BusyTimeout: "5s",
		},
	}
	r, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.TickPeriod != time.Millisecond || r.TimerSelector != 3 || r.ISRPriority != 4 || !r.ISREnabled {
		t.Fatalf("timer settings wrong: %+v", r)
	}
	if !r.DebugOutputEnabled || r.DebugOutputPin != "RB14" || !r.DebugDetailedPattern || r.HistoryLength != 64 {
		t.Fatalf("debug settings wrong: %+v", r)
	}
	if r.CalibrationConstant != 180 {
		t.Fatalf("CalibrationConstant = %d, want 180", r.CalibrationConstant)
	}
	if r.StorageDriver != "file" || r.StorageBusyTimeout != 5*time.Second {
		t.Fatalf("storage settings wrong: %q %v", r.StorageDriver, r.StorageBusyTimeout)
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestManagerLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, "taskmgr.yaml", `
tick_period: 200us
max_tasks: 4
load:
  optimization_profile: O1
  toolchain_version: "1.40"
debug:
  output_enabled: true
  output_pin: RB14
`)
	mgr := NewManager(path, logx.Nop())
	cfg, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickPeriod != "200us" || cfg.MaxTasks != 4 {
		t.Fatalf("decoded config wrong: %+v", cfg)
	}
	if got := mgr.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}

	r, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.TickPeriod != 200*time.Microsecond || r.OptimizationProfile != "O1" {
		t.Fatalf("resolved config wrong: %+v", r)
	}
}

func TestManagerRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, "taskmgr.yaml", `
tick_period: 100us
tick_perido_typo: 1ms
load:
  self_calibrate: true
`)
	if _, err := NewManager(path, logx.Nop()).Load(); err == nil {
		t.Fatal("unknown field must be rejected")
	}
}

func TestManagerRejectsTrailingJSON(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, "taskmgr.json",
		`{"load":{"self_calibrate":true}}{"max_tasks":4}`)
	if _, err := NewManager(path, logx.Nop()).Load(); err == nil {
		t.Fatal("trailing JSON document must be rejected")
	}
}

func TestManagerRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	// Parses fine, fails validation (no calibration source).
	path := writeConfigFile(t, "taskmgr.yaml", "max_tasks: 4\n")
	if _, err := NewManager(path, logx.Nop()).Load(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Load error = %v, want ErrInvalid", err)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "1500us"); err != nil || d != 1500*time.Microsecond {
		t.Fatalf("ParseDurationField = (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty field = (%v, %v), want (0, nil)", d, err)
	}
	if _, err := ParseDurationField("x", "fast"); err == nil {
		t.Fatal("garbage duration must fail")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault = (%v, %v), want (1m, nil)", d, err)
	}
}
