// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package gpio implements typed GPIO port/pin access for the STM32-class
// microcontroller driving the flash and host address/data buses.
//
// Each STM32 GPIO port packs one 4-bit mode field per pin into a pair of
// 32-bit configuration registers (CRL for pins 0-7, CRH for pins 8-15) plus
// a 32-bit output-data register (ODR, bits 0-15 writable), a 16-bit
// input-data register (IDR) and a bit-set/reset register (BSRR) that can
// atomically set or clear individual output bits.
package gpio

import (
	"fmt"

	"github.com/cdhooper/kicksmash32fw/internal/reg"
)

// Port register block offsets, relative to a port's base address.
const (
	CRL  = 0x00 // Configuration register low (pins 0-7)
	CRH  = 0x04 // Configuration register high (pins 8-15)
	IDR  = 0x08 // Input data register
	ODR  = 0x0c // Output data register
	BSRR = 0x10 // Bit set/reset register
	BRR  = 0x14 // Bit reset register
)

// Mode is the 4-bit per-pin configuration field written into CRL/CRH.
type Mode uint8

// Pin configuration modes, matching the STM32F1 CRL/CRH encoding.
const (
	ModeInputAnalog      Mode = 0x0 // Analog input
	ModeInputFloating    Mode = 0x4 // Floating input (reset state)
	ModeInputPullUpDown  Mode = 0x8 // Input with pull-up / pull-down
	ModeOutputPushPull2  Mode = 0x2 // 2 MHz, push-pull output
	ModeOutputOpenDrain2 Mode = 0x6 // 2 MHz, open-drain output
	ModeOutputPushPull10 Mode = 0x1 // 10 MHz, push-pull output
	ModeOutputOpenDrain10 Mode = 0x5 // 10 MHz, open-drain output
	ModeOutputPushPull50 Mode = 0x3 // 50 MHz, push-pull output
	ModeOutputOpenDrain50 Mode = 0x7 // 50 MHz, open-drain output
)

// Port represents one GPIO port (A, B, C, ...).
type Port struct {
	// Name identifies the port for diagnostics, e.g. "A".
	Name string
	// Base is the port's register block base address.
	Base uint32
}

func (p *Port) crlAddr() uint32 { return p.Base + CRL }
func (p *Port) crhAddr() uint32 { return p.Base + CRH }

// Pin identifies a single pin (0-15) within a Port.
type Pin struct {
	Port *Port
	Num  int
}

// Init returns a Pin handle for the given pin number, 0-15.
func (p *Port) Init(num int) (*Pin, error) {
	if num < 0 || num > 15 {
		return nil, fmt.Errorf("gpio: invalid pin number %d on port %s", num, p.Name)
	}
	return &Pin{Port: p, Num: num}, nil
}

// SetMode configures the pin's electrical mode (input float/pull or output
// push-pull/open-drain at a given drive strength).
func (pin *Pin) SetMode(mode Mode) {
	if pin.Num < 8 {
		reg.SetN(pin.Port.crlAddr(), pin.Num*4, 0xf, uint32(mode))
	} else {
		reg.SetN(pin.Port.crhAddr(), (pin.Num-8)*4, 0xf, uint32(mode))
	}
}

// High drives the pin high, or enables its pull-up when configured as an
// input with pull-up/pull-down.
func (pin *Pin) High() {
	reg.Write(pin.Port.Base+BSRR, 1<<uint(pin.Num))
}

// Low drives the pin low, or enables its pull-down when configured as an
// input with pull-up/pull-down.
func (pin *Pin) Low() {
	reg.Write(pin.Port.Base+BSRR, 1<<uint(pin.Num+16))
}

// Value returns the pin's current input level.
func (pin *Pin) Value() bool {
	return reg.Get(pin.Port.Base+IDR, pin.Num, 1) == 1
}

// SetPort configures an entire port's 16 pins to the given mode in one
// write to each of CRL and CRH, mirroring the bulk CRL/CRH assignment the
// original firmware uses for the address and data buses (a single 32-bit
// write per register instead of 16 per-pin calls).
func (p *Port) SetPort(crl, crh uint32) {
	reg.Write(p.crlAddr(), crl)
	reg.Write(p.crhAddr(), crh)
}

// Write sets the full 16-bit output level of the port in one write.
func (p *Port) Write(val uint16) {
	reg.Write(p.Base+ODR, uint32(val))
}

// Read returns the full 16-bit input level of the port.
func (p *Port) Read() uint16 {
	return uint16(reg.Read(p.Base + IDR))
}

// SetBits atomically sets the bits in mask high and clears the bits in
// clearMask low, via BSRR, mirroring the GPIO_BSRR idiom used throughout
// the original firmware to drive several pins of a port in one write.
func (p *Port) SetBits(setMask, clearMask uint16) {
	reg.Write(p.Base+BSRR, uint32(setMask)|(uint32(clearMask)<<16))
}
