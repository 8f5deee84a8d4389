// Package hal is the hardware capability boundary of the engine.
//
// The scheduler core never touches timer registers, flag bits or port
// latches directly; it consumes the narrow TickSource and DebugPin
// interfaces. Device families register themselves in a factory table, so
// selecting a target is a configuration decision, not conditional
// compilation scattered through the scheduler logic.
//
// The repository ships one family, "sim": a host-side simulated timer whose
// interrupt path only latches the tick flag, mirroring the single-producer /
// single-consumer handoff the engine requires.
package hal
