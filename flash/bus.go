// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package flash

import (
	"github.com/cdhooper/kicksmash32fw/soc/stm32/gpio"
	"github.com/cdhooper/kicksmash32fw/soc/stm32/timer"
)

// OverrideAction selects the behavior of Bus.AddressOverride.
type OverrideAction uint8

const (
	// OverrideRecord drives the given bits as the new steady-state
	// override.
	OverrideRecord OverrideAction = iota
	// OverrideSuspend temporarily releases any recorded override (used
	// while the reply engine needs A17-A19 to reflect the real bank
	// address rather than a forced value) without forgetting it.
	OverrideSuspend
	// OverrideRestore re-applies whatever override was active before the
	// most recent Suspend.
	OverrideRestore
)

// overridePin is one of the three high address lines (A17, A18, A19) that
// the bank manager can individually force to a fixed logic level instead
// of letting them follow the host's address bus.
type overridePin struct {
	pin *gpio.Pin
}

// Bus drives the shared parallel-NOR address, data, OE# and WE# lines. A
// single Bus instance is shared by both dies in 32-bit mode; in 16-bit
// mode each die still shares the same address and control lines, only
// its half of the data bus differing.
type Bus struct {
	// AddrLow drives address bits 0-15 directly via the port's output
	// data register.
	AddrLow *gpio.Port
	// AddrHigh drives address bits 16-19 (and reads the override-capable
	// A17-A19 lines back) via a handful of pins on a second port.
	AddrHigh     *gpio.Port
	AddrHighMask uint16 // which AddrHigh bits carry address, pre-shift
	AddrHighShift uint   // left-shift from address bits 16-19 to AddrHigh pin positions, applied before the mask

	DataLow  *gpio.Port // D0-D15
	DataHigh *gpio.Port // D16-D31 (unused in 16-bit modes)

	WE *gpio.Pin
	OE *gpio.Pin

	// OEWE drives a mux that, when asserted, makes the flash WE# line
	// follow the host's OE# strobe instead of this board's own WE#
	// output. The reply engine uses this to let a normal read-looking
	// host cycle also latch a flash write (see RerouteOEToWE).
	OEWE *gpio.Pin

	// Overrides holds the three high address line pins in A17, A18, A19
	// order, each independently switchable between driven-output and
	// weak-pull input.
	Overrides [3]*gpio.Pin

	enabled bool

	overrideLast uint8
	overrideOld  uint8
	overrideHasOld bool
}

// AddressOutput drives addr (bits 0-19 significant) onto the address bus.
func (b *Bus) AddressOutput(addr uint32) {
	b.AddrLow.Write(uint16(addr))
	high := uint16((addr>>16)&0xf) << b.AddrHighShift
	b.AddrHigh.SetBits(high&b.AddrHighMask, (^high)&b.AddrHighMask)
}

// AddressInput returns the value currently present on the address pins,
// for use while the bus is configured as input (bus-capture mode).
func (b *Bus) AddressInput() uint32 {
	addr := uint32(b.AddrLow.Read())
	high := uint32(b.AddrHigh.Read() & b.AddrHighMask)
	addr |= (high >> b.AddrHighShift) << 16
	return addr
}

// AddressOverride implements the three-state override protocol the bank
// manager uses to force A17-A19 to a fixed logical bank regardless of
// what the host drives, with the ability to transparently suspend and
// restore that override around operations (flash programming, bus
// capture) that need the real address lines.
//
// bits: bit i (0-2) set means drive override line i; bit i+4 gives the
// driven value for that line.
func (b *Bus) AddressOverride(bits uint8, action OverrideAction) {
	switch action {
	case OverrideSuspend:
		if !b.overrideHasOld {
			b.overrideOld = b.overrideLast
			b.overrideHasOld = true
		}
		bits = 0
	case OverrideRestore:
		if !b.overrideHasOld {
			return
		}
		bits = b.overrideOld
		b.overrideHasOld = false
	}

	if bits == b.overrideLast {
		return
	}
	b.overrideLast = bits

	for i, pin := range b.Overrides {
		if pin == nil {
			continue
		}
		if bits&(1<<uint(i)) != 0 {
			pin.SetMode(gpio.ModeOutputPushPull2)
			if bits&(1<<uint(i+4)) != 0 {
				pin.High()
			} else {
				pin.Low()
			}
		} else {
			pin.SetMode(gpio.ModeInputPullUpDown)
			pin.Low()
		}
	}
}

// AddressOutputEnable switches the address bus to output, suspending any
// recorded high-address override for the duration.
func (b *Bus) AddressOutputEnable() {
	b.AddressOverride(0, OverrideSuspend)
	b.AddrLow.SetPort(0x11111111, 0x00011111)
}

// AddressOutputDisable reverts the address bus to input and restores
// whatever override was active before AddressOutputEnable.
func (b *Bus) AddressOutputDisable() {
	b.AddrLow.SetPort(0x44444444, 0x44444444)
	b.AddressOverride(0, OverrideRestore)
}

// DataOutput drives data onto the data bus (all 32 bits in 32-bit mode;
// callers in a 16-bit mode are expected to have already confined data to
// the active half via Mode.mask).
func (b *Bus) DataOutput(data uint32) {
	b.DataLow.Write(uint16(data))
	if b.DataHigh != nil {
		b.DataHigh.Write(uint16(data >> 16))
	}
}

// DataInput returns the value currently present on the data pins.
func (b *Bus) DataInput() uint32 {
	v := uint32(b.DataLow.Read())
	if b.DataHigh != nil {
		v |= uint32(b.DataHigh.Read()) << 16
	}
	return v
}

// DataOutputEnable switches the data bus to output (push-pull).
func (b *Bus) DataOutputEnable() {
	b.DataLow.SetPort(0x11111111, 0x11111111)
	if b.DataHigh != nil {
		b.DataHigh.SetPort(0x11111111, 0x11111111)
	}
}

// DataOutputDisable reverts the data bus to input (weak pull).
func (b *Bus) DataOutputDisable() {
	b.DataLow.SetPort(0x88888888, 0x88888888)
	if b.DataHigh != nil {
		b.DataHigh.SetPort(0x88888888, 0x88888888)
	}
}

func (b *Bus) weOutput(high bool) {
	if high {
		b.WE.High()
	} else {
		b.WE.Low()
	}
}

func (b *Bus) weEnable(on bool) {
	if on {
		b.WE.SetMode(gpio.ModeOutputPushPull50)
	} else {
		b.WE.SetMode(gpio.ModeInputPullUpDown)
	}
}

func (b *Bus) oeOutput(high bool) {
	if high {
		b.OE.High()
	} else {
		b.OE.Low()
	}
}

func (b *Bus) oeOutputEnable() {
	b.OE.SetMode(gpio.ModeOutputPushPull50)
}

func (b *Bus) oeOutputDisable() {
	b.OE.SetMode(gpio.ModeInputPullUpDown)
}

// RerouteOEToWE asserts OEWE so the flash device's WE# line tracks the
// host's OE# strobe, used by the reply engine when a reply must also
// latch a flash write (e.g. completing a queued program word once the
// host's read of the status phase arrives).
func (b *Bus) RerouteOEToWE() {
	b.weOutput(true)
	b.weEnable(false) // release WE#, let OEWE's mux drive it
	if b.OEWE != nil {
		b.OEWE.High()
	}
}

// RestoreOE reverts RerouteOEToWE, giving this board's own WE# output
// back control of the flash WE# line.
func (b *Bus) RestoreOE() {
	if b.OEWE != nil {
		b.OEWE.Low()
	}
}

// Enable brings up drivers to the flash pair, leaving the data lines
// floating until a read or write actually needs them.
func (b *Bus) Enable() {
	if b.enabled {
		return
	}
	b.AddressOutput(0)
	b.AddressOutputEnable()
	b.weOutput(true) // WE# deasserted
	b.oeOutput(true)
	b.oeOutputEnable()
	b.DataOutputDisable()
	b.enabled = true
}

// Disable tri-states every address and data line to the device.
func (b *Bus) Disable() {
	b.weOutput(true)
	b.oeOutputDisable()
	b.AddressOutputDisable()
	b.DataOutputDisable()
	timer.BusyWaitNsec(50_000)
	b.enabled = false
}

// ReadWord performs one address read with tOE/tDF timing.
func (b *Bus) ReadWord(addr uint32) uint32 {
	b.AddressOutput(addr)
	b.AddressOutputEnable()
	b.oeOutput(false)
	b.oeOutputEnable()
	timer.BusyWaitNsec(20) // tOE
	data := b.DataInput()
	b.oeOutput(true)
	b.oeOutputDisable()
	timer.BusyWaitNsec(15) // tDF
	return data
}

// WriteWord performs one address write with tWP/tDS timing. OE# is held
// high for the whole cycle, as the device requires.
func (b *Bus) WriteWord(addr uint32, data uint32) {
	b.AddressOutput(addr)
	b.oeOutput(true)
	b.oeOutputEnable()

	b.weEnable(true)
	b.weOutput(false)
	b.DataOutput(data)
	b.DataOutputEnable()

	timer.BusyWaitNsec(30) // tWP=30ns, tDS=20ns
	b.weOutput(true)
	b.DataOutputDisable()
	b.oeOutputDisable()
}
