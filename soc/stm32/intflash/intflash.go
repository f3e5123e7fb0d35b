// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package intflash drives the microcontroller's own internal program
// flash, used solely as the backing store for the non-volatile
// configuration log. It is a distinct peripheral from the external
// parallel NOR flash that backs the emulated ROM banks (package flash):
// the internal flash is byte-addressable for reads, word-write-only, and
// sector-erase-only, with its own unlock-key and status-register protocol
// rather than the external flash's JEDEC command/address unlock sequence.
package intflash

import (
	"errors"
	"unsafe"

	"github.com/cdhooper/kicksmash32fw/internal/reg"
)

// Flash controller register block offsets.
const (
	KeyReg    = 0x00 // Unlock key register
	StatusReg = 0x04 // Status register (busy bit, etc)
	ControlReg = 0x08 // Control register (program enable, erase enable, start)
)

const (
	statusBusy = 0
	ctrlPG     = 0 // program enable
	ctrlPER    = 1 // page/sector erase enable
	ctrlStart  = 6
)

const (
	unlockKey1 = 0x45670123
	unlockKey2 = 0xcdef89ab
)

// ErrWriteProtected names a locked-controller failure. No function in
// this package returns it: the program and erase paths do not check the
// controller's lock state.
var ErrWriteProtected = errors.New("intflash: controller locked")

// Controller drives one internal-flash controller instance.
type Controller struct {
	// Base is the flash controller peripheral's register base address.
	Base uint32
	// SectorSize is the erase granularity in bytes.
	SectorSize uint32
}

func (c *Controller) unlock() {
	reg.Write(c.Base+KeyReg, unlockKey1)
	reg.Write(c.Base+KeyReg, unlockKey2)
}

func (c *Controller) waitBusy() {
	for reg.Get(c.Base+StatusReg, statusBusy, 1) == 1 {
	}
}

// ReadWord reads a 32-bit word directly from the memory-mapped flash
// address space; no unlock or controller interaction is required for
// reads.
func ReadWord(addr uint32) uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(addr)))
}

// ReadBytes copies length bytes starting at addr out of flash.
func ReadBytes(addr uint32, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), length)
}

// WriteWord programs one 32-bit word at addr. The target word must
// already be erased (all-ones); programming only clears bits.
func (c *Controller) WriteWord(addr uint32, val uint32) {
	c.unlock()
	reg.Set(c.Base+ControlReg, ctrlPG)
	*(*uint32)(unsafe.Pointer(uintptr(addr))) = val
	c.waitBusy()
	reg.Clear(c.Base+ControlReg, ctrlPG)
}

// WriteBytes programs a byte slice starting at addr, word by word. len(buf)
// must be a multiple of 4; any remainder is padded with 0xff (erased
// value, a no-op once programmed).
func (c *Controller) WriteBytes(addr uint32, buf []byte) {
	for i := 0; i < len(buf); i += 4 {
		var word uint32
		for j := 0; j < 4; j++ {
			var b byte = 0xff
			if i+j < len(buf) {
				b = buf[i+j]
			}
			word |= uint32(b) << uint(8*j)
		}
		c.WriteWord(addr+uint32(i), word)
	}
}

// EraseSector erases the sector containing addr, setting every byte in it
// to 0xff.
func (c *Controller) EraseSector(addr uint32) {
	c.unlock()
	reg.Set(c.Base+ControlReg, ctrlPER)
	reg.Write(c.Base+0x10, addr)
	reg.Set(c.Base+ControlReg, ctrlStart)
	c.waitBusy()
	reg.Clear(c.Base+ControlReg, ctrlPER)
}

// EraseRegion erases every sector overlapping [base, base+size).
func (c *Controller) EraseRegion(base, size uint32) {
	for addr := base; addr < base+size; addr += c.SectorSize {
		c.EraseSector(addr)
	}
}
