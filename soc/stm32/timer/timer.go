// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package timer provides the monotonic tick source used for datasheet-exact
// busy-wait delays and for the firmware's uptime/wall-clock features.
//
// The microcontroller's free-running cycle counter is measured against a
// reference frequency once at init, following the same timerFn/
// timerMultiplier pattern tamago uses to bridge a SoC's raw counter to a
// nanosecond timebase. Every flash and bus timing constant in this
// firmware is expressed as a tick count derived from that measured rate,
// never as a fixed number of compiler-dependent loop iterations.
package timer

import "time"

const nsecPerSec = 1_000_000_000

// Source reads the free-running hardware tick counter.
type Source func() uint64

var readTicks Source
var ticksPerSec uint64

// Init records the measured counter frequency (in Hz) and the function used
// to read the raw counter, deriving the conversion factors used by
// NsecToTicks and TicksToUsec.
func Init(freqHz uint64, src Source) {
	ticksPerSec = freqHz
	readTicks = src
}

// Now returns the current raw tick count.
func Now() uint64 {
	if readTicks == nil {
		return 0
	}
	return readTicks()
}

// NsecToTicks converts a nanosecond duration to a tick count, rounding up so
// that busy-waits never return early on a datasheet-mandated minimum delay.
func NsecToTicks(nsec uint32) uint64 {
	return NsecToTicks64(uint64(nsec))
}

// NsecToTicks64 is NsecToTicks for durations that don't fit in a uint32
// (flash erase timeouts run tens of seconds).
func NsecToTicks64(nsec uint64) uint64 {
	if ticksPerSec == 0 {
		return 0
	}
	num := nsec * ticksPerSec
	ticks := num / nsecPerSec
	if num%nsecPerSec != 0 {
		ticks++
	}
	return ticks
}

// TicksToUsec converts a tick delta to elapsed microseconds.
func TicksToUsec(ticks uint64) uint64 {
	if ticksPerSec == 0 {
		return 0
	}
	return ticks * 1_000_000 / ticksPerSec
}

// BusyWaitTicks spins until at least the given number of ticks has elapsed.
// It is used for the flash read/write timing floor (t_OE, t_DF, WE pulse
// width), where interrupts must remain masked by the caller across the
// whole per-word cycle to avoid jitter.
func BusyWaitTicks(ticks uint64) {
	if ticks == 0 {
		return
	}
	start := Now()
	for Now()-start < ticks {
	}
}

// BusyWaitNsec spins for at least the given number of nanoseconds.
func BusyWaitNsec(nsec uint32) {
	BusyWaitTicks(NsecToTicks(nsec))
}

// Deadline returns the tick count at which the given duration from now will
// have elapsed, for use with Expired in polling loops (flash program/erase
// completion, reply DMA safety caps).
func Deadline(d time.Duration) uint64 {
	return Now() + NsecToTicks64(uint64(d.Nanoseconds()))
}

// Expired reports whether the current tick count has reached or passed the
// given deadline.
func Expired(deadline uint64) bool {
	return Now() >= deadline
}
