// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package reply implements the bus-usurpation reply engine: the firmware
// briefly becomes the flash device, disabling the real chip's output
// drivers and clocking a staged reply buffer onto the data bus itself,
// one word per host OE strobe, using the same DMA channels and timer
// capture/compare events the bus-capture engine otherwise uses to
// record incoming strobes.
package reply

import (
	"errors"
	"hash/crc32"

	"github.com/cdhooper/kicksmash32fw/crc32r"
	"github.com/cdhooper/kicksmash32fw/dma"
	"github.com/cdhooper/kicksmash32fw/flash"
	stm32dma "github.com/cdhooper/kicksmash32fw/soc/stm32/dma"
)

// Flag selects reply framing and bus behavior, matching the KS_REPLY_*
// bits a command handler passes to Engine.Send.
type Flag uint8

const (
	// FlagRaw sends rbuf1||rbuf2 verbatim with no magic, length, status
	// or CRC wrapper, used for flash/bank data replies that the host
	// parses positionally rather than by frame.
	FlagRaw Flag = 1 << iota
	// FlagWriteEnable reroutes the host's next OE strobe to the flash
	// WE# line instead, used when a reply must also latch a write into
	// the flash device (e.g. a FLASH_WRITE data phase).
	FlagWriteEnable
)

// bufWords is the per-die staging buffer size in words, the same as the
// bus-capture ring size. stage does not check a reply's length against it.
const bufWords = 1024

// ErrTimeout is returned if the host does not strobe OE often enough to
// drain the staged reply within the safety window.
var ErrTimeout = errors.New("reply: host stopped reading before reply drained")

// peripheral addresses for the data bus output registers, supplied by
// the board at construction since they are SoC-specific GPIO register
// addresses rather than anything this package can compute.
type Peripherals struct {
	DataLowODR  uint32
	DataHighODR uint32
}

// Engine owns the reply staging buffers and the two DMA channels (low and
// high die in 32-bit mode) that clock them onto the data bus.
type Engine struct {
	bus   *flash.Bus
	mode  func() flash.Mode
	chLo  *stm32dma.Channel
	chHi  *stm32dma.Channel
	peri  Peripherals

	txLo, txHi []uint16
}

// New returns an Engine that reuses region for its staging buffers and
// drives the data bus via bus, sharing chLo/chHi with the capture rings
// (the reply and capture phases never run concurrently). modeFn reports
// the currently configured flash.Mode, since 32-bit replies split their
// payload across both channels while 16-bit replies use only chLo.
func New(region *dma.Region, bus *flash.Bus, modeFn func() flash.Mode, chLo, chHi *stm32dma.Channel, peri Peripherals) *Engine {
	_, lo := region.Reserve(bufWords*2, 2)
	_, hi := region.Reserve(bufWords*2, 2)
	return &Engine{
		bus:  bus,
		mode: modeFn,
		chLo: chLo,
		chHi: chHi,
		peri: peri,
		txLo: bytesToWords(lo),
		txHi: bytesToWords(hi),
	}
}

// Send usurps the bus and clocks a reply out to the host. status is
// ignored when flags has FlagRaw set, in which case
// rbuf1 followed by rbuf2 is sent verbatim (both must be a whole number
// of flash-bus words; the original firmware's byte-granular RAW carry
// between buffers is not reachable from any command handler and is not
// reproduced here).
func (e *Engine) Send(flags Flag, status uint16, rbuf1, rbuf2 []byte) error {
	e.bus.OE.High()
	e.bus.DataOutputEnable()
	if flags&FlagWriteEnable != 0 {
		e.bus.RerouteOEToWE()
	}

	n := e.stage(flags, status, rbuf1, rbuf2)

	switch e.mode() {
	case flash.Mode32:
		e.chHi.ConfigureMemoryToPeripheral(addrOf(e.txHi), e.peri.DataHighODR, uint16(n))
		e.chLo.ConfigureMemoryToPeripheral(addrOf(e.txLo), e.peri.DataLowODR, uint16(n))
		e.chHi.Enable()
		e.chLo.Enable()
	default:
		e.chLo.ConfigureMemoryToPeripheral(addrOf(e.txLo), e.peri.DataLowODR, uint16(n))
		e.chLo.Enable()
	}

	err := e.waitDrained()

	if flags&FlagWriteEnable != 0 {
		e.bus.RestoreOE()
	}
	e.bus.DataOutputDisable()
	e.bus.OE.High()

	return err
}

// stage fills txLo/txHi and returns the word count clocked by the DMA
// channel(s) (one word per host strobe; 32-bit mode clocks both channels
// in lockstep off the same count).
func (e *Engine) stage(flags Flag, status uint16, rbuf1, rbuf2 []byte) int {
	if flags&FlagRaw != 0 {
		return e.stageRaw(rbuf1, rbuf2)
	}
	return e.stageFramed(status, rbuf1, rbuf2)
}

func (e *Engine) stageRaw(rbuf1, rbuf2 []byte) int {
	if e.mode() == flash.Mode32 {
		pos := 0
		pos = splitWords32(e.txLo, e.txHi, pos, rbuf1)
		pos = splitWords32(e.txLo, e.txHi, pos, rbuf2)
		return pos
	}
	pos := 0
	pos += copy(e.txLo[pos:], bytesToWords(rbuf1))
	pos += copy(e.txLo[pos:], bytesToWords(rbuf2))
	return pos
}

func (e *Engine) stageFramed(status uint16, rbuf1, rbuf2 []byte) int {
	// The length and status words are folded in byte-reversed (matching
	// the host's wire order for those fields, per crc32r), but the
	// payload itself is folded in straight, unreversed order: it already
	// sits in the firmware's native byte order in rbuf1/rbuf2.
	rlen := uint16(len(rbuf1) + len(rbuf2))
	crc := crc32r.Update(0, le16(rlen))
	crc = crc32r.Update(crc, le16(status))
	crc = crc32.Update(crc, crc32.IEEETable, rbuf1)
	crc = crc32.Update(crc, crc32.IEEETable, rbuf2)

	if e.mode() == flash.Mode32 {
		// The magic words are replicated on both dies. Length and
		// status share one 32-bit word (length on the high die, status
		// on the low die), the trailing CRC is split high half/low half
		// the same way, and the payload is split by half-word across
		// the low and high die streams.
		pos := 0
		for _, w := range magic {
			e.txHi[pos], e.txLo[pos] = w, w
			pos++
		}
		e.txHi[pos], e.txLo[pos] = rlen, status
		pos++
		pos = splitWords32(e.txLo, e.txHi, pos, rbuf1)
		pos = splitWords32(e.txLo, e.txHi, pos, rbuf2)
		e.txHi[pos], e.txLo[pos] = uint16(crc>>16), uint16(crc)
		pos++
		return pos
	}

	pos := 0
	for _, w := range magic {
		e.txLo[pos] = w
		pos++
	}
	e.txLo[pos] = rlen
	pos++
	e.txLo[pos] = status
	pos++
	pos += copy(e.txLo[pos:], bytesToWords(rbuf1))
	pos += copy(e.txLo[pos:], bytesToWords(rbuf2))
	e.txLo[pos] = uint16(crc >> 16)
	pos++
	e.txLo[pos] = uint16(crc)
	pos++
	return pos
}

// magic mirrors framer.Magic but is declared locally so the reply engine
// never needs to import the framer package just for this constant.
var magic = [4]uint16{0x0204, 0x1017, 0x0119, 0x0117}

// maxStallLoops bounds the spin while waiting for the host to strobe the
// next word, matching the original firmware's count > 100000 safety cap
// on an otherwise unbounded wait for a host that may have gone away.
const maxStallLoops = 100000

func (e *Engine) waitDrained() error {
	last := e.chLo.Remaining()
	for last != 0 {
		left := e.chLo.Remaining()
		for last == left {
			stalled := 0
			for ; last == left; stalled++ {
				if stalled > maxStallLoops {
					e.chLo.Disable()
					e.chHi.Disable()
					return ErrTimeout
				}
				left = e.chLo.Remaining()
			}
		}
		last = left
	}
	return nil
}

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }

// splitWords32 appends src (padded to a whole number of 32-bit words) to
// lo/hi starting at pos, placing each word's low half in lo and high
// half in hi, and returns the new pos.
func splitWords32(lo, hi []uint16, pos int, src []byte) int {
	for i := 0; i < len(src); i += 4 {
		var v uint32
		for j := 0; j < 4 && i+j < len(src); j++ {
			v |= uint32(src[i+j]) << (8 * uint(j))
		}
		lo[pos] = uint16(v)
		hi[pos] = uint16(v >> 16)
		pos++
	}
	return pos
}
