// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package kicksmash wires together the flash, bank, nvconfig, capture,
// framer, reply, mailbox, clock and cmdtable packages into a running
// board, following the per-board layout tamago uses: pin assignment
// constants, peripheral base addresses, an Init that brings the board
// up, and the foreground polling loop.
//
// Build this package only for the real target (kicksmash,arm); host
// development and the simulation CLI use cmd/kicksmash-sim instead.
package kicksmash

import (
	"io"
	"log/slog"
	"time"

	"github.com/cdhooper/kicksmash32fw/bank"
	"github.com/cdhooper/kicksmash32fw/capture"
	"github.com/cdhooper/kicksmash32fw/clock"
	"github.com/cdhooper/kicksmash32fw/cmdtable"
	"github.com/cdhooper/kicksmash32fw/diag"
	"github.com/cdhooper/kicksmash32fw/dma"
	"github.com/cdhooper/kicksmash32fw/flash"
	"github.com/cdhooper/kicksmash32fw/framer"
	"github.com/cdhooper/kicksmash32fw/mailbox"
	"github.com/cdhooper/kicksmash32fw/nvconfig"
	"github.com/cdhooper/kicksmash32fw/reply"
	"github.com/cdhooper/kicksmash32fw/soc/stm32/gpio"
	"github.com/cdhooper/kicksmash32fw/soc/stm32/intflash"
	stm32dma "github.com/cdhooper/kicksmash32fw/soc/stm32/dma"
	"github.com/cdhooper/kicksmash32fw/soc/stm32/timer"
)

// STM32F1 AHB1/APB2 peripheral base addresses for the ports and
// controllers this board drives.
const (
	gpioABase = 0x40010800
	gpioBBase = 0x40010c00
	gpioCBase = 0x40011000
	gpioDBase = 0x40011400
	gpioEBase = 0x40011800

	dma1Base = 0x40020000
	dma2Base = 0x40020400

	intFlashBase  = 0x40022000
	intFlashSector = 1024

	sramBase = 0x20000000
	sramSize = 20 * 1024

	// nvconfig reserves the last 4 sectors of internal flash for its
	// append-with-invalidate log.
	nvconfigBase = 0x0800f000
	nvconfigSize = 4 * intFlashSector
)

var (
	gpioA = &gpio.Port{Name: "A", Base: gpioABase}
	gpioB = &gpio.Port{Name: "B", Base: gpioBBase}
	gpioC = &gpio.Port{Name: "C", Base: gpioCBase}
	gpioD = &gpio.Port{Name: "D", Base: gpioDBase}
	gpioE = &gpio.Port{Name: "E", Base: gpioEBase}
)

// pin resolves a port+number into a *gpio.Pin, panicking on an out of
// range pin number since these are all compile-time-known constants.
func pin(p *gpio.Port, num int) *gpio.Pin {
	pp, err := p.Init(num)
	if err != nil {
		panic(err)
	}
	return pp
}

// System is the board singleton: every subsystem the command table and
// foreground loop touch.
type System struct {
	Bus     *flash.Bus
	Flash   *flash.Flash
	Banks   *bank.Manager
	Store   *nvconfig.Store
	ARing   *capture.Ring
	Framer  *framer.Framer
	Reply   *reply.Engine
	Mailbox *mailbox.Mailbox
	Clock   *clock.Clock
	Cmds    *cmdtable.System
	Diag    *diag.Alert
	Log     *slog.Logger

	intCtrl *intflash.Controller
	dmaReg  *dma.Region
}

// New brings up the board: configures the flash bus, restores persisted
// configuration (falling back to defaults), and wires the bus-capture,
// reply and command-dispatch pipeline. console is the UART the firmware
// logs to.
func New(console io.Writer) *System {
	sys := &System{Log: diag.New(console, slog.LevelInfo)}
	sys.Diag = &diag.Alert{}

	sys.Bus = &flash.Bus{
		AddrLow:       gpioC,
		AddrHigh:      gpioA,
		AddrHighMask:  0x00e0, // A17(PA5), A18(PA6), A19(PA7)
		AddrHighShift: 4,
		DataLow:       gpioD,
		DataHigh:      gpioE,
		WE:            pin(gpioB, 14),
		OE:            pin(gpioB, 13),
		OEWE:          pin(gpioB, 9),
		Overrides: [3]*gpio.Pin{
			pin(gpioA, 5), // A17
			pin(gpioB, 10), // A18
			pin(gpioB, 11), // A19
		},
	}
	sys.Bus.Enable()

	sys.Flash = flash.New(sys.Bus, flash.Mode32)

	sys.intCtrl = &intflash.Controller{Base: intFlashBase, SectorSize: intFlashSector}
	sys.Store = nvconfig.NewStore(sys.intCtrl, nvconfigBase, nvconfigSize)

	sys.dmaReg = dma.NewRegion(sramBase, sramSize)

	// Channel register blocks start at offset 0x08 from the controller
	// base, 0x14 bytes apart; channel 5 is (5-1)*0x14 past that.
	const dmaChannel5Offset = 0x08 + 4*0x14
	tim2ch1 := &stm32dma.Channel{Base: dma1Base + dmaChannel5Offset}
	tim5ch1 := &stm32dma.Channel{Base: dma2Base + dmaChannel5Offset}
	sys.ARing = capture.NewRing(sys.dmaReg, tim2ch1, gpioA.Base+gpio.IDR)

	sys.Framer = framer.New()

	sys.Reply = reply.New(sys.dmaReg, sys.Bus, sys.Flash.Mode, tim2ch1, tim5ch1, reply.Peripherals{
		DataLowODR:  gpioD.Base + gpio.ODR,
		DataHighODR: gpioE.Base + gpio.ODR,
	})

	sys.Mailbox = mailbox.New(4096)
	sys.Clock = clock.New(func() uint64 { return timer.TicksToUsec(timer.Now()) })

	sys.restoreConfig()

	sys.Cmds = &cmdtable.System{
		Flash:      sys.Flash,
		Banks:      sys.Banks,
		Mailbox:    sys.Mailbox,
		Clock:      sys.Clock,
		Reply:      sys.Reply,
		UptimeUsec: func() uint64 { return timer.TicksToUsec(timer.Now()) },
		Reboot:     sys.reboot,
		ConfigChanged: func() {
			sys.Store.MarkDirty()
		},
	}

	return sys
}

func (sys *System) restoreConfig() {
	rec, err := sys.Store.Read()
	if err != nil {
		sys.Log.Info("no valid configuration record, using defaults")
		rec = nvconfig.Record{EEMode: flash.Mode32, Bank: bank.DefaultInfo()}
	}
	sys.Flash.SetMode(rec.EEMode)
	sys.Banks = bank.NewManager(sys.Bus, rec.Bank)
	if err := sys.Banks.UpdateAtPowerOn(); err != nil {
		sys.Log.Warn("power-on bank select failed", "err", err)
	}
}

func (sys *System) reboot() {
	// Board-level reset is a single register write on real hardware
	// (AIRCR SYSRESETREQ); left for the final board bring-up since it
	// has no host-testable behavior of its own.
}

// DrainFramer feeds every word the address-capture ring has produced
// since the last call through the framer, dispatching any complete
// frame. It is the cooperative stand-in for the interrupt-context
// framer described in the original design: this codebase has no
// preemptive ISR, so the foreground loop calls DrainFramer on every
// pass instead, and backpressure is handled the same way (Behind/
// MarkPolled) rather than by disabling a hardware interrupt.
func (sys *System) DrainFramer() {
	for {
		word, ok := sys.ARing.Next()
		if !ok {
			break
		}
		frame, err := sys.Framer.Feed(word)
		if err != nil {
			sys.Log.Warn("frame CRC mismatch", "err", err)
			continue
		}
		if frame == nil {
			continue
		}
		if err := cmdtable.Dispatch(sys.Cmds, frame); err != nil {
			sys.Log.Warn("reply failed", "err", err)
		}
	}
	if sys.ARing.Behind() {
		sys.Log.Warn("capture ring backpressure, words dropped")
		sys.ARing.MarkPolled()
	}
}

// Run is the foreground polling loop: drain the framer, service the
// non-volatile config flush debounce, and repeat. A real board also
// drains USB and a command shell here; those are out of scope.
func (sys *System) Run() {
	for {
		sys.DrainFramer()
		sys.Store.Poll(sys.currentRecord())
		time.Sleep(time.Millisecond)
	}
}

func (sys *System) currentRecord() nvconfig.Record {
	return nvconfig.Record{
		Name:   "kicksmash",
		EEMode: sys.Flash.Mode(),
		Bank:   sys.Banks.Info(),
	}
}
