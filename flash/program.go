// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package flash

import "github.com/cdhooper/kicksmash32fw/soc/stm32/timer"

// Standard JEDEC unlock sequence addresses, in 16-bit-word units.
const (
	unlockAddr1 = 0x00555
	unlockAddr2 = 0x002aa
)

const (
	cmdUnlock1   = 0x00aa00aa
	cmdUnlock2   = 0x00550055
	cmdProgram   = 0x00a000a0
	cmdResetRead = 0x00f000f0
	cmdIdentify  = 0x00900090
	cmdErase1    = 0x00800080
	cmdErase2    = 0x00300030
)

// statusToggleMask is DQ6 (also present at DQ6+16 for the high die): while
// a program or erase is in progress consecutive reads of the same address
// toggle this bit.
const statusToggleMask = 0x00400040

// statusFailMask is DQ5: set alongside a toggling DQ6 indicates the
// operation failed rather than merely being slow.
const statusFailMask = 0x00200020

// cmd sends a JEDEC command, shifted and masked for the active die(s),
// after the two-write unlock prefix. Commands sent without the unlock
// prefix (read/reset, erase confirm) go through Bus.WriteWord directly.
func (f *Flash) cmd(addr uint32, c uint32) {
	c = f.mode.shiftCommand(c)
	f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdUnlock1))
	f.bus.WriteWord(unlockAddr2, f.mode.shiftCommand(cmdUnlock2))
	f.bus.WriteWord(addr, c)
	timer.BusyWaitNsec(2000) // command latch settle
}

// readMode returns the device(s) to normal array read mode.
func (f *Flash) readMode() {
	f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdResetRead))
}

// waitDone polls the toggle-bit status at address 0 until two
// consecutive reads match, DQ5 has been seen set on two reads, or
// timeout elapses. mask restricts which
// die's status bits are examined, so a single-die mode never waits on a
// floating, unconnected half of the bus.
func (f *Flash) waitDone(timeout timer.Source, deadline uint64, failErr, timeoutErr error) error {
	var last uint32
	haveLast := false
	fails := 0
	mask := f.mode.mask()

	for !timer.Expired(deadline) {
		status := f.bus.ReadWord(0) & mask

		if haveLast && status == last {
			return nil
		}
		last = status
		haveLast = true

		if status&statusFailMask&mask != 0 {
			fails++
			if fails >= 2 {
				f.readMode()
				return failErr
			}
		}
	}
	f.readMode()
	return timeoutErr
}

// programWord writes a single word with the standard program unlock
// sequence and waits for completion.
func (f *Flash) programWord(addr uint32, word uint32) error {
	f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdUnlock1))
	f.bus.WriteWord(unlockAddr2, f.mode.shiftCommand(cmdUnlock2))
	f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdProgram))
	f.bus.WriteWord(addr, word&f.mode.mask())

	deadline := timer.Deadline(programTimeout)
	return f.waitDone(timer.Now, deadline, ErrProgramFailure, ErrProgramTimeout)
}

const programTimeout = 360_000 // ns; 360us max per datasheet, per word

// Program writes data to the device starting at word address addr,
// verifying each word after write and retrying up to twice on a
// recoverable mismatch (see Open Questions: only a 1->0 bit mismatch,
// meaning a bit that needed to be cleared failed to be, is retryable; a
// 0->1 mismatch means a bit that should already have been 1 read back 0,
// which no amount of retrying the same program command can fix).
func (f *Flash) Program(addr uint32, data []byte) error {
	wordSize := f.mode.wordSize()
	count := len(data) / wordSize
	if uint64(addr)+uint64(count) > DeviceWords {
		return ErrOutOfRange
	}

	off := 0
	for i := 0; i < count; i++ {
		value := f.wordFromBytes(data[off : off+wordSize])
		if err := f.programVerified(addr, value); err != nil {
			return err
		}
		addr++
		off += wordSize
	}

	f.readMode()
	return nil
}

// programVerified programs one word and reads it back, retrying up to
// twice total when the mismatch is recoverable (every differing bit is
// one that needed to go from 1 to 0, so programming again can still
// succeed); a 0->1 mismatch is fatal on the first attempt.
func (f *Flash) programVerified(addr uint32, value uint32) error {
	for try := 0; ; try++ {
		err := f.programWord(addr, value)
		if err == nil {
			rvalue := f.bus.ReadWord(addr) & f.mode.mask()
			xvalue := (value ^ rvalue) & f.mode.mask()
			if xvalue == 0 {
				return nil
			}
			if xvalue&^rvalue != 0 {
				return ErrProgramMismatch
			}
			err = ErrProgramMismatch
		}
		if try >= 2 {
			return err
		}
	}
}

func (f *Flash) wordFromBytes(b []byte) uint32 {
	switch f.mode.wordSize() {
	case 4:
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	default:
		v := uint32(b[0]) | uint32(b[1])<<8
		if f.mode == Mode16High {
			return v << 16
		}
		return v
	}
}
