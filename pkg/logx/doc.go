// Package logx is a small structured logging layer over zerolog.
//
// It exists so the engine packages can log through a stable, minimal API
// while the daemon owns sink configuration (console, file) and can re-apply
// it at runtime without handing out new logger values.
package logx
