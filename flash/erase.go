// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package flash

import (
	"time"

	"github.com/cdhooper/kicksmash32fw/soc/stm32/timer"
)

const (
	chipEraseTimeout  = 32 * time.Second // 32s max per datasheet
	blockEraseTimeout = 1 * time.Second  // 1s base + 1s per sector
)

// EraseChip erases the entire device.
func (f *Flash) EraseChip() error {
	f.statusClear()

	f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdUnlock1))
	f.bus.WriteWord(unlockAddr2, f.mode.shiftCommand(cmdUnlock2))
	f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdErase1))
	f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdUnlock1))
	f.bus.WriteWord(unlockAddr2, f.mode.shiftCommand(cmdUnlock2))
	f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(0x00100010))

	timer.BusyWaitNsec(100_000) // tBAL

	deadline := timer.Deadline(chipEraseTimeout)
	err := f.waitDone(timer.Now, deadline, ErrEraseFailure, ErrEraseTimeout)
	f.readMode()
	return err
}

// EraseRange erases every sector overlapping [addr, addr+length), where
// addr and length are in device words. A length of 0 still erases the one
// sector containing addr. Multiple whole and boot-block sub-sectors are
// unlocked and queued for simultaneous erase in a single command burst,
// matching the device's native multi-sector erase support.
func (f *Flash) EraseRange(addr uint32, length uint32) error {
	if length == 0 {
		length = 1
	}

	chip, _ := f.identify()
	f.statusClear()

	for length > 0 {
		if uint64(addr) >= DeviceWords {
			return ErrOutOfRange
		}

		f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdUnlock1))
		f.bus.WriteWord(unlockAddr2, f.mode.shiftCommand(cmdUnlock2))
		f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdErase1))
		f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdUnlock1))
		f.bus.WriteWord(unlockAddr2, f.mode.shiftCommand(cmdUnlock2))

		timeout := blockEraseTimeout
		for length > 0 {
			size := sectorSizeWords(chip, addr)
			base := addr &^ (size - 1)
			f.bus.WriteWord(base, f.mode.shiftCommand(cmdErase2))
			timeout += time.Second

			span := base + size - addr
			if length <= span {
				length = 0
				break
			}
			length -= span
			addr = base + size
		}

		timer.BusyWaitNsec(100_000) // tBAL

		deadline := timer.Deadline(timeout)
		if err := f.waitDone(timer.Now, deadline, ErrEraseFailure, ErrEraseTimeout); err != nil {
			f.readMode()
			return err
		}
	}

	f.readMode()
	return nil
}

// statusClear resets any latched error status and returns the device to
// read mode.
func (f *Flash) statusClear() {
	f.bus.WriteWord(unlockAddr1, f.mode.shiftCommand(cmdResetRead))
	f.readMode()
}
