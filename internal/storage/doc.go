package storage

// Package storage persists metering samples for offline analysis.
//
// It lives entirely on the daemon side of the event bus: the tick loop
// never blocks on it. Backends:
//   - "file": dependency-free JSON Lines files
//   - "sqlite": SQLite database (build with -tags sqlite)
