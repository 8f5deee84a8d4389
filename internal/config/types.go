package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid wraps every validation failure. Configuration problems are
// fatal at initialization; the engine never starts on a half-valid config.
var ErrInvalid = errors.New("invalid configuration")

// Config is the engine's configuration contract, supplied once at
// initialization. YAML and strict JSON are accepted.
//
// All durations are Go duration strings (e.g. "100us", "1ms", "24h").
type Config struct {
	// TickPeriod is the fixed scheduling quantum. All task periods are
	// expressed in ticks of this length. Default "100us".
	TickPeriod string `json:"tick_period,omitempty"`

	// TimerSelector picks which hardware timer drives the tick signal.
	TimerSelector int `json:"timer_selector,omitempty"`

	// ISRPriority and ISREnabled configure the tick interrupt. The shipped
	// defaults mirror a poll-mode setup: priority 1, interrupt disabled.
	ISRPriority *int `json:"isr_priority,omitempty"`
	ISREnabled  bool `json:"isr_enabled,omitempty"`

	// MaxTasks fixes the task table capacity. Default 16.
	MaxTasks int `json:"max_tasks,omitempty"`

	Target  TargetConfig   `json:"target,omitempty"`
	Debug   DebugConfig    `json:"debug,omitempty"`
	Load    LoadConfig     `json:"load,omitempty"`
	Logging LoggingConfig  `json:"logging,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`

	Maintenance   MaintenanceConfig   `json:"maintenance,omitempty"`
	Observability ObservabilityConfig `json:"observability,omitempty"`
}

// TargetConfig selects the device family implementation.
type TargetConfig struct {
	Family string `json:"family,omitempty"` // default "sim"
}

// DebugConfig controls the profiler.
//
// OutputEnabled without a pin is a configuration error, matching the
// original contract where a missing clockout pin broke the build.
type DebugConfig struct {
	OutputEnabled   bool   `json:"output_enabled,omitempty"`
	OutputPin       string `json:"output_pin,omitempty"`
	DetailedPattern bool   `json:"detailed_pattern,omitempty"`
	HistoryLength   int    `json:"history_length,omitempty"` // default 16
}

// LoadConfig supplies the CPU meter calibration.
//
// Exactly one source must resolve a non-zero full-idle iteration count:
// an explicit CalibrationConstant, a table lookup via OptimizationProfile,
// or runtime SelfCalibrate.
type LoadConfig struct {
	// CalibrationConstant is iterations-per-tick at 0% load, measured for
	// this build's code generation. Takes precedence when set.
	CalibrationConstant uint32 `json:"calibration_constant,omitempty"`

	// OptimizationProfile keys the shipped calibration table (O0..O3, Os,
	// user).
	OptimizationProfile string `json:"optimization_profile,omitempty"`

	// ToolchainVersion is the toolchain this binary was built with. A
	// mismatch against the calibration table logs an advisory.
	ToolchainVersion string `json:"toolchain_version,omitempty"`

	// SelfCalibrate measures the constant on the live tick source during a
	// quiet startup window instead of trusting the table.
	SelfCalibrate      bool `json:"self_calibrate,omitempty"`
	SelfCalibrateTicks int  `json:"self_calibrate_ticks,omitempty"` // default 32
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console *bool      `json:"console,omitempty"` // default true
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the optional sample persistence layer.
type StorageConfig struct {
	Driver      string `json:"driver"` // "file", "sqlite", "" / "none"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ObservabilityConfig controls the optional debug HTTP server (pprof plus
// an engine snapshot). Empty DebugAddr disables it; a non-loopback address
// requires Token.
type ObservabilityConfig struct {
	DebugAddr string `json:"debug_addr,omitempty"`
	Token     string `json:"token,omitempty"`
}

// MaintenanceConfig schedules the daemon's housekeeping jobs (cron specs).
type MaintenanceConfig struct {
	// ReportSpec periodically logs an engine snapshot. Default "@every 1m".
	ReportSpec string `json:"report_spec,omitempty"`
	// PruneSpec prunes persisted samples older than PruneMaxAge.
	// Default "@every 1h" / "24h".
	PruneSpec   string `json:"prune_spec,omitempty"`
	PruneMaxAge string `json:"prune_max_age,omitempty"`
}

// Resolved carries the validated, defaulted view of a Config.
type Resolved struct {
	TickPeriod    time.Duration
	TimerSelector int
	ISRPriority   int
	ISREnabled    bool
	MaxTasks      int

	TargetFamily string

	DebugOutputEnabled   bool
	DebugOutputPin       string
	DebugDetailedPattern bool
	HistoryLength        int

	CalibrationConstant uint32
	OptimizationProfile string
	ToolchainVersion    string
	SelfCalibrate       bool
	SelfCalibrateTicks  int

	LogLevel   string
	LogConsole bool
	LogFile    FileConfig

	StorageDriver      string
	StoragePath        string
	StorageBusyTimeout time.Duration

	ReportSpec  string
	PruneSpec   string
	PruneMaxAge time.Duration

	DebugAddr  string
	DebugToken string
}

// Resolve validates the config and applies defaults. Every failure wraps
// ErrInvalid with the offending field path.
func (c *Config) Resolve() (Resolved, error) {
	var r Resolved

	if raw := strings.TrimSpace(c.TickPeriod); raw == "" {
		r.TickPeriod = 100 * time.Microsecond
	} else {
		tick, err := ParseDurationField("tick_period", raw)
		if err != nil {
			return r, invalid(err)
		}
		if tick <= 0 {
			return r, invalidf("tick_period: must be > 0, got %q", raw)
		}
		r.TickPeriod = tick
	}

	r.TimerSelector = c.TimerSelector
	if r.TimerSelector == 0 {
		r.TimerSelector = 1
	}
	if r.TimerSelector < 0 {
		return r, invalidf("timer_selector: must be >= 1, got %d", r.TimerSelector)
	}

	r.ISRPriority = 1
	if c.ISRPriority != nil {
		r.ISRPriority = *c.ISRPriority
	}
	if r.ISRPriority < 0 || r.ISRPriority > 7 {
		return r, invalidf("isr_priority: must be in [0,7], got %d", r.ISRPriority)
	}
	r.ISREnabled = c.ISREnabled

	r.MaxTasks = c.MaxTasks
	if r.MaxTasks == 0 {
		r.MaxTasks = 16
	}
	if r.MaxTasks < 0 {
		return r, invalidf("max_tasks: must be > 0, got %d", r.MaxTasks)
	}

	r.TargetFamily = strings.TrimSpace(c.Target.Family)
	if r.TargetFamily == "" {
		r.TargetFamily = "sim"
	}

	r.DebugOutputEnabled = c.Debug.OutputEnabled
	r.DebugOutputPin = strings.TrimSpace(c.Debug.OutputPin)
	r.DebugDetailedPattern = c.Debug.DetailedPattern
	if r.DebugOutputEnabled && r.DebugOutputPin == "" {
		return r, invalidf("debug.output_pin: required when debug.output_enabled is set")
	}
	r.HistoryLength = c.Debug.HistoryLength
	if r.HistoryLength == 0 {
		r.HistoryLength = 16
	}
	if r.HistoryLength < 0 {
		return r, invalidf("debug.history_length: must be > 0, got %d", r.HistoryLength)
	}

	r.CalibrationConstant = c.Load.CalibrationConstant
	r.OptimizationProfile = strings.TrimSpace(c.Load.OptimizationProfile)
	r.ToolchainVersion = strings.TrimSpace(c.Load.ToolchainVersion)
	r.SelfCalibrate = c.Load.SelfCalibrate
	r.SelfCalibrateTicks = c.Load.SelfCalibrateTicks
	if r.SelfCalibrateTicks == 0 {
		r.SelfCalibrateTicks = 32
	}
	if r.CalibrationConstant == 0 && r.OptimizationProfile == "" && !r.SelfCalibrate {
		return r, invalidf("load: one of calibration_constant, optimization_profile or self_calibrate is required")
	}

	r.LogLevel = c.Logging.Level
	r.LogConsole = true
	if c.Logging.Console != nil {
		r.LogConsole = *c.Logging.Console
	}
	r.LogFile = c.Logging.File
	if r.LogFile.Enabled && strings.TrimSpace(r.LogFile.Path) == "" {
		return r, invalidf("logging.file.path: required when logging.file.enabled is set")
	}

	if c.Storage != nil {
		driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
		switch driver {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return r, invalidf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		r.StorageDriver = driver
		r.StoragePath = c.Storage.Path
		bt, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
		if err != nil {
			return r, invalid(err)
		}
		r.StorageBusyTimeout = bt
	}

	r.ReportSpec = strings.TrimSpace(c.Maintenance.ReportSpec)
	if r.ReportSpec == "" {
		r.ReportSpec = "@every 1m"
	}
	r.PruneSpec = strings.TrimSpace(c.Maintenance.PruneSpec)
	if r.PruneSpec == "" {
		r.PruneSpec = "@every 1h"
	}
	age, err := ParseDurationOrDefault("maintenance.prune_max_age", c.Maintenance.PruneMaxAge, 24*time.Hour)
	if err != nil {
		return r, invalid(err)
	}
	r.PruneMaxAge = age

	r.DebugAddr = strings.TrimSpace(c.Observability.DebugAddr)
	r.DebugToken = strings.TrimSpace(c.Observability.Token)

	return r, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
