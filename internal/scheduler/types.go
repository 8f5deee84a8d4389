package scheduler

// State is the engine lifecycle phase.
type State int

const (
	StateUninitialized State = iota
	StateArmed
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config sizes the engine.
type Config struct {
	// MaxTasks fixes the task table capacity. The table is allocated once
	// at construction; registration beyond it fails.
	MaxTasks int
}

// Action is a task body. It runs to completion inside the tick context;
// a non-nil error is a fault and aborts the remaining dispatch of the
// current tick.
//
// Actions must not call back into the engine; Tick holds the table lock
// for the whole dispatch pass.
type Action func() error

// TaskSpec is the registration request for one periodic task.
type TaskSpec struct {
	ID          string
	PeriodTicks uint32
	QuotaTicks  uint32 // 0 disables overrun detection for this task
	Action      Action
	Disabled    bool // registered but not dispatched until enabled
}

// taskEntry is the table-resident descriptor. It is created at
// registration, mutated only by the engine, and destroyed on
// deregistration or teardown.
type taskEntry struct {
	id          string
	periodTicks uint32
	quotaTicks  uint32
	action      Action

	enabled          bool
	lastRunTick      uint32
	lastRuntimeTicks uint32
	dispatches       uint64
	overruns         uint64
}

// TaskInfo is the read-only view of a table entry.
type TaskInfo struct {
	ID               string `json:"id"`
	PeriodTicks      uint32 `json:"period_ticks"`
	QuotaTicks       uint32 `json:"quota_ticks"`
	Enabled          bool   `json:"enabled"`
	LastRunTick      uint32 `json:"last_run_tick"`
	LastRuntimeTicks uint32 `json:"last_runtime_ticks"`
	Dispatches       uint64 `json:"dispatches"`
	Overruns         uint64 `json:"overruns"`
}

// Snapshot is a point-in-time diagnostics view.
type Snapshot struct {
	State       State
	TickCounter uint32
	MaxTasks    int
	Utilization uint8
	Overruns    uint64
	Tasks       []TaskInfo
}
