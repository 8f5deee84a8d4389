package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines files next to Path
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// LoadRecord is one persisted CPU utilization sample.
type LoadRecord struct {
	At      time.Time `json:"at"`
	Tick    uint32    `json:"tick"`
	Percent uint8     `json:"percent"`
}

// RuntimeRecord is one persisted task runtime sample.
type RuntimeRecord struct {
	At           time.Time `json:"at"`
	Tick         uint32    `json:"tick"`
	TaskID       string    `json:"task_id"`
	RuntimeTicks uint32    `json:"runtime_ticks"`
	QuotaTicks   uint32    `json:"quota_ticks"`
	Overrun      bool      `json:"overrun"`
}

// Store is the persistence API fed by the daemon's bus subscriber.
type Store interface {
	AppendLoad(ctx context.Context, r LoadRecord) error
	AppendRuntime(ctx context.Context, r RuntimeRecord) error
	// Prune removes records older than the cutoff, returning how many.
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Close() error
}
