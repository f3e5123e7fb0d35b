// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package flash

import "errors"

var (
	// ErrOutOfRange is returned when an operation's address range falls
	// outside the addressable device size.
	ErrOutOfRange = errors.New("flash: address out of range")
	// ErrProgramFailure is returned when the device's status toggle bits
	// report a program failure (DQ5 set while DQ6 still toggling).
	ErrProgramFailure = errors.New("flash: program failure")
	// ErrProgramTimeout is returned when a program operation's status
	// never settles within its datasheet timeout.
	ErrProgramTimeout = errors.New("flash: program timeout")
	// ErrProgramMismatch is returned when a programmed word reads back
	// with a 0->1 bit transition, which no amount of retrying can fix
	// (see SPEC_FULL.md Open Questions: only 1->0 mismatches are retried),
	// or when a 1->0 mismatch is still present after the retries.
	ErrProgramMismatch = errors.New("flash: program verify mismatch")
	// ErrEraseFailure is returned when the device's status toggle bits
	// report an erase failure.
	ErrEraseFailure = errors.New("flash: erase failure")
	// ErrEraseTimeout is returned when an erase operation's status never
	// settles within its datasheet timeout.
	ErrEraseTimeout = errors.New("flash: erase timeout")
)
