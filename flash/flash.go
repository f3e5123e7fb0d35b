// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package flash

import "github.com/cdhooper/kicksmash32fw/soc/stm32/timer"

// Flash drives one or two parallel NOR dies sharing an address/control
// bus, presenting them as a single logical device per the active Mode.
type Flash struct {
	bus  *Bus
	mode Mode
}

// New returns a Flash bound to bus, driven in the given mode. bus.Enable
// is not called here; callers decide when drivers to the device should
// come up (typically once at board init, torn down only for an
// external-master bus-capture session).
func New(bus *Bus, mode Mode) *Flash {
	return &Flash{bus: bus, mode: mode}
}

// Mode reports the currently configured bus mode.
func (f *Flash) Mode() Mode { return f.mode }

// SetMode changes the active bus mode, affecting subsequent command
// framing, masking and address shifting.
func (f *Flash) SetMode(m Mode) { f.mode = m }

// Enable brings up the shared bus drivers and leaves the device(s) in
// read mode.
func (f *Flash) Enable() {
	f.bus.Enable()
	f.readMode()
}

// Disable tri-states the shared bus, releasing it for an external master
// (the bus-capture engine, or the host itself).
func (f *Flash) Disable() {
	f.bus.Disable()
}

// AddressOverride forwards to the underlying Bus, letting the bank
// manager force the high address lines independently of flash access.
func (f *Flash) AddressOverride(bits uint8, action OverrideAction) {
	f.bus.AddressOverride(bits, action)
}

// identify reads the JEDEC manufacturer/device ID pair for the active
// die (or die pair, in 32-bit mode, packed as part1/part2 the same way
// the wire ID command reports them) and returns the device to read mode.
func (f *Flash) identify() (chip uint16, full uint32) {
	f.cmd(unlockAddr1, cmdIdentify)
	low := f.bus.ReadWord(0x00000)
	high := f.bus.ReadWord(0x00001)
	f.readMode()

	var part1 uint32
	switch f.mode {
	case Mode16High:
		part1 = (low & 0xffff0000) | (high >> 16)
	default:
		part1 = (low << 16) | uint32(uint16(high))
	}
	return uint16(part1), part1
}

// Identify returns the device name string and raw JEDEC ID for the
// active die.
func (f *Flash) Identify() (name string, id uint32) {
	chip, full := f.identify()
	return IDName(chip), full
}

// Read reads count words (word size per the active Mode) starting at
// word address addr into a freshly allocated byte slice.
func (f *Flash) Read(addr uint32, count int) ([]byte, error) {
	if uint64(addr)+uint64(count) > DeviceWords {
		return nil, ErrOutOfRange
	}
	wordSize := f.mode.wordSize()
	out := make([]byte, count*wordSize)

	off := 0
	for i := 0; i < count; i++ {
		v := f.bus.ReadWord(addr) & f.mode.mask()
		switch wordSize {
		case 4:
			out[off] = byte(v)
			out[off+1] = byte(v >> 8)
			out[off+2] = byte(v >> 16)
			out[off+3] = byte(v >> 24)
		default:
			if f.mode == Mode16High {
				v >>= 16
			}
			out[off] = byte(v)
			out[off+1] = byte(v >> 8)
		}
		addr++
		off += wordSize
	}
	return out, nil
}

// Poll reports whether the device's ready/busy status has settled,
// without blocking: a single status read compared against itself after
// the minimal settle delay used elsewhere in this package.
func (f *Flash) Poll() bool {
	first := f.bus.ReadWord(0) & f.mode.mask()
	timer.BusyWaitNsec(20)
	second := f.bus.ReadWord(0) & f.mode.mask()
	return first == second
}
