// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package dma models the STM32 DMA controller's per-channel configuration
// registers used by the bus-capture and reply engines: a channel either
// copies a GPIO input register into a circular memory ring (capture, one
// channel per ring) or copies a memory buffer out to a GPIO output register
// (reply), both slaved to a timer's capture/compare event rather than the
// CPU.
package dma

import (
	"github.com/cdhooper/kicksmash32fw/internal/reg"
)

// Channel register block offsets, relative to a channel's base address
// (CCR/CNDTR/CPAR/CMAR in STM32 terminology).
const (
	CCR   = 0x00 // Configuration register
	CNDTR = 0x04 // Number of data register
	CPAR  = 0x08 // Peripheral address register
	CMAR  = 0x0c // Memory address register
)

// CCR bit positions.
const (
	ccrEN   = 0
	ccrDIR  = 4 // 0 = read from peripheral, 1 = read from memory
	ccrCirc = 5 // circular mode
)

// Channel represents one DMA controller channel.
type Channel struct {
	Base uint32
}

// ConfigureCaptureToMemory programs the channel to repeatedly copy
// peripheral (a GPIO input data register) into the circular ring [mem,
// mem+count*2), one 16-bit transfer per slaved timer event.
func (c *Channel) ConfigureCaptureToMemory(peripheral, mem uint32, count uint16) {
	c.disable()
	reg.Write(c.Base+CPAR, peripheral)
	reg.Write(c.Base+CMAR, mem)
	reg.Write(c.Base+CNDTR, uint32(count))
	reg.Clear(c.Base+CCR, ccrDIR)
	reg.Set(c.Base+CCR, ccrCirc)
}

// ConfigureMemoryToPeripheral reprograms the channel (used by the reply
// engine to hand the data bus GPIO output register a staging buffer
// instead of a capture ring) to copy count 16-bit words from mem out to
// peripheral, one per slaved timer event, non-circular so Remaining()
// reaches zero once the reply is fully clocked out.
func (c *Channel) ConfigureMemoryToPeripheral(mem, peripheral uint32, count uint16) {
	c.disable()
	reg.Write(c.Base+CPAR, peripheral)
	reg.Write(c.Base+CMAR, mem)
	reg.Write(c.Base+CNDTR, uint32(count))
	reg.Set(c.Base+CCR, ccrDIR)
	reg.Clear(c.Base+CCR, ccrCirc)
}

// Enable starts the channel running.
func (c *Channel) Enable() {
	reg.Set(c.Base+CCR, ccrEN)
}

func (c *Channel) disable() {
	reg.Clear(c.Base+CCR, ccrEN)
}

// Disable stops the channel.
func (c *Channel) Disable() {
	c.disable()
}

// Remaining returns the number of transfers left to perform. For a
// circular capture channel this counts down from Count to 0 and wraps; the
// producer index into the ring is therefore Count-Remaining().
func (c *Channel) Remaining() uint16 {
	return uint16(reg.Read(c.Base + CNDTR))
}

// ProducerIndex returns the ring index one past the most recently written
// sample, given the ring's total word count — the capture ring's producer
// position, read as (ring size - DMA-remaining), per the bus-capture
// engine's design (DMA is the implicit producer; there is no separate
// producer variable to race with the consumer ISR).
func (c *Channel) ProducerIndex(ringSize uint16) uint16 {
	return ringSize - c.Remaining()
}
