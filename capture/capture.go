// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package capture implements the bus-capture engine: a pair of 1024-word
// ring buffers, each filled by a timer-clocked DMA channel copying a GPIO
// input register on every host output-enable strobe, with no CPU
// involvement on the write side. The consumer side belongs to whatever
// drains the ring (ordinarily the command framer); this package only
// owns ring geometry, producer/consumer bookkeeping and the backpressure
// policy, not the act of interpreting what's captured.
package capture

import (
	"github.com/cdhooper/kicksmash32fw/dma"
	stm32dma "github.com/cdhooper/kicksmash32fw/soc/stm32/dma"
)

// Size is the word capacity of one capture ring.
const Size = 1024

// MaxWrapsBehind is the number of full ring wraps the consumer is
// allowed to fall behind before the ring reports backpressure. At that
// point the caller is expected to stop draining from interrupt context
// (disabling the capture-compare interrupt) and let the main loop catch
// up and re-arm it.
const MaxWrapsBehind = 10

// Mode selects what the secondary ring captures: the high address bits,
// or the data bus (for bus-snoop tracing).
type Mode uint8

const (
	ModeAddress Mode = iota
	ModeData
)

// Ring is one capture ring: a circular buffer whose producer is a DMA
// channel (slaved to a timer capture/compare event) and whose consumer
// is tracked here as a plain index.
type Ring struct {
	words   []uint16
	channel *stm32dma.Channel

	consumer     uint16
	wraps        uint32
	wrapsAtPoll  uint32
}

// NewRing reserves ring storage from region and configures channel to
// continuously copy peripheral (a GPIO input data register) into it.
func NewRing(region *dma.Region, channel *stm32dma.Channel, peripheral uint32) *Ring {
	_, buf := region.Reserve(Size*2, 2)
	words := bytesToWords(buf)

	channel.ConfigureCaptureToMemory(peripheral, addrOf(words), Size)
	channel.Enable()

	return &Ring{words: words, channel: channel}
}

// Producer returns the ring index one past the most recently captured
// word.
func (r *Ring) Producer() uint16 {
	return r.channel.ProducerIndex(Size)
}

// Next returns the next unconsumed word, advancing the consumer index.
// ok is false if the consumer has caught up to the producer.
func (r *Ring) Next() (val uint16, ok bool) {
	if r.consumer == r.Producer() {
		return 0, false
	}
	val = r.words[r.consumer]
	r.consumer++
	if r.consumer == Size {
		r.consumer = 0
		r.wraps++
	}
	return val, true
}

// Behind reports whether the consumer has fallen more than
// MaxWrapsBehind wraps behind since the last call to MarkPolled.
func (r *Ring) Behind() bool {
	return r.wraps-r.wrapsAtPoll > MaxWrapsBehind
}

// MarkPolled records the current wrap count as the baseline Behind
// measures from; call this from the main loop each time it re-arms
// draining after backpressure tripped.
func (r *Ring) MarkPolled() {
	r.wrapsAtPoll = r.wraps
}

// Wraps returns the total number of times the consumer has wrapped the
// ring, for diagnostics.
func (r *Ring) Wraps() uint32 {
	return r.wraps
}
