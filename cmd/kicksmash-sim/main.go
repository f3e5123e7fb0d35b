// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// kicksmash-sim drives the protocol/bank/mailbox/clock logic through the
// same command table (package cmdtable) the real firmware dispatches
// through, without any STM32 hardware: flash's bus, address-capture DMA
// and the reply engine's GPIO drive are all memory-mapped register
// access that only makes sense on the target MCU, so this harness
// stands in a recordingReplier for reply.Engine and a board with no
// address-override pins for bank.Manager, and drives both through
// cmdtable.Dispatch exactly as board/kicksmash's foreground loop does.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cdhooper/kicksmash32fw/bank"
	"github.com/cdhooper/kicksmash32fw/clock"
	"github.com/cdhooper/kicksmash32fw/cmdtable"
	"github.com/cdhooper/kicksmash32fw/flash"
	"github.com/cdhooper/kicksmash32fw/framer"
	"github.com/cdhooper/kicksmash32fw/mailbox"

	"gopkg.in/urfave/cli.v2"
)

// board is the simulated system singleton the CLI's commands dispatch
// against, rebuilt fresh each process invocation (there is no persisted
// configuration in the simulation).
type board struct {
	sys     *cmdtable.System
	replier *recordingReplier
	start   time.Time
}

var brd *board

func newBoard() *board {
	start := time.Now()
	b := &board{start: start, replier: &recordingReplier{}}

	b.sys = &cmdtable.System{
		Flash:   flash.New(&flash.Bus{}, flash.Mode32),
		Banks:   bank.NewManager(noopOverrider{}, bank.DefaultInfo()),
		Mailbox: mailbox.New(4096),
		Clock:   clock.New(func() uint64 { return uint64(time.Since(start) / time.Microsecond) }),
		Reply:   b.replier,
		UptimeUsec: func() uint64 {
			return uint64(time.Since(start) / time.Microsecond)
		},
		Reboot:        func() { fmt.Println("(reboot requested)") },
		ConfigChanged: func() {},
	}
	return b
}

// noopOverrider satisfies bank.Overrider without any address lines to
// drive: the simulation has no bus, so bank selection only updates the
// in-memory bank.Info the same way a real board's override register
// write would.
type noopOverrider struct{}

func (noopOverrider) AddressOverride(bits uint8, action flash.OverrideAction) {}

// dispatch builds a frame from opcode/flags/payload, runs it through the
// real command table, and prints whatever the handler replied.
func (b *board) dispatch(opcode cmdtable.Opcode, flags uint8, payload []byte) error {
	b.replier.sent = nil
	f := &framer.Frame{Opcode: uint8(opcode), Flags: flags, Payload: payload}
	if err := cmdtable.Dispatch(b.sys, f); err != nil {
		return err
	}
	b.replier.print()
	return nil
}

func hexFlag(c *cli.Context, name string) ([]byte, error) {
	s := c.String(name)
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

func parseSeq(s string) []uint8 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	seq := make([]uint8, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		seq = append(seq, uint8(n))
	}
	return seq
}

func mailboxDir(c *cli.Context) uint8 {
	if c.String("dir") == "utoa" {
		return cmdtable.FlagMsgAltBuf
	}
	return 0
}

func main() {
	app := &cli.App{
		Name:  "kicksmash-sim",
		Usage: "drive the kicksmash command table without real hardware",
		Before: func(c *cli.Context) error {
			brd = newBoard()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "id",
				Usage: "query firmware identity",
				Action: func(c *cli.Context) error {
					return brd.dispatch(cmdtable.CmdID, 0, nil)
				},
			},
			{
				Name:  "uptime",
				Usage: "query microseconds since start",
				Action: func(c *cli.Context) error {
					return brd.dispatch(cmdtable.CmdUptime, 0, nil)
				},
			},
			{
				Name:  "testpatt",
				Usage: "fetch the fixed test pattern",
				Action: func(c *cli.Context) error {
					return brd.dispatch(cmdtable.CmdTestPattern, 0, nil)
				},
			},
			{
				Name:  "loopback",
				Usage: "echo a hex payload back raw",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "hex payload"},
				},
				Action: func(c *cli.Context) error {
					data, err := hexFlag(c, "data")
					if err != nil {
						return err
					}
					return brd.dispatch(cmdtable.CmdLoopback, 0, data)
				},
			},
			{
				Name:  "flash-mode",
				Usage: "set the simulated flash bus width (16 or 32)",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "bits", Aliases: []string{"b"}, Value: 32},
				},
				Action: func(c *cli.Context) error {
					if c.Int("bits") == 16 {
						brd.sys.Flash.SetMode(flash.Mode16Low)
					} else {
						brd.sys.Flash.SetMode(flash.Mode32)
					}
					fmt.Println("ok")
					return nil
				},
			},
			{
				Name:  "flash-read",
				Usage: "fetch the flash-read unlock sequence",
				Action: func(c *cli.Context) error {
					return brd.dispatch(cmdtable.CmdFlashRead, 0, nil)
				},
			},
			{
				Name:  "flash-id",
				Usage: "fetch the flash-identify unlock sequence",
				Action: func(c *cli.Context) error {
					return brd.dispatch(cmdtable.CmdFlashID, 0, nil)
				},
			},
			{
				Name:  "flash-write",
				Usage: "fetch the flash-program unlock sequence for a data word",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "hex data word (2 or 4 bytes)"},
				},
				Action: func(c *cli.Context) error {
					data, err := hexFlag(c, "data")
					if err != nil {
						return err
					}
					return brd.dispatch(cmdtable.CmdFlashWrite, 0, data)
				},
			},
			{
				Name:  "flash-erase",
				Usage: "fetch the flash-erase unlock sequence",
				Action: func(c *cli.Context) error {
					return brd.dispatch(cmdtable.CmdFlashErase, 0, nil)
				},
			},
			{
				Name:  "bank-info",
				Usage: "dump the current bank configuration",
				Action: func(c *cli.Context) error {
					return brd.dispatch(cmdtable.CmdBankInfo, 0, nil)
				},
			},
			{
				Name:  "bank-set",
				Usage: "change bank selection/configuration",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "bank", Aliases: []string{"b"}, Value: 0},
					&cli.BoolFlag{Name: "current"},
					&cli.BoolFlag{Name: "temp"},
					&cli.BoolFlag{Name: "untemp"},
					&cli.BoolFlag{Name: "reset"},
					&cli.BoolFlag{Name: "poweron"},
					&cli.BoolFlag{Name: "reboot"},
				},
				Action: func(c *cli.Context) error {
					var flags uint8
					if c.Bool("current") {
						flags |= cmdtable.FlagBankSetCurrent
					}
					if c.Bool("temp") {
						flags |= cmdtable.FlagBankSetTemp
					}
					if c.Bool("untemp") {
						flags |= cmdtable.FlagBankUnsetTemp
					}
					if c.Bool("reset") {
						flags |= cmdtable.FlagBankSetReset
					}
					if c.Bool("poweron") {
						flags |= cmdtable.FlagBankSetPowerOn
					}
					if c.Bool("reboot") {
						flags |= cmdtable.FlagBankReboot
					}
					payload := []byte{uint8(c.Int("bank")), 0}
					return brd.dispatch(cmdtable.CmdBankSet, flags, payload)
				},
			},
			{
				Name:  "bank-merge",
				Usage: "merge or unmerge a bank range",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "start", Value: 0},
					&cli.IntFlag{Name: "end", Value: 0},
					&cli.BoolFlag{Name: "unmerge"},
				},
				Action: func(c *cli.Context) error {
					var flags uint8
					if c.Bool("unmerge") {
						flags |= cmdtable.FlagBankUnmerge
					}
					payload := []byte{uint8(c.Int("start")), uint8(c.Int("end"))}
					return brd.dispatch(cmdtable.CmdBankMerge, flags, payload)
				},
			},
			{
				Name:  "bank-name",
				Usage: "set a bank's display name",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "bank", Aliases: []string{"b"}, Value: 0},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}},
				},
				Action: func(c *cli.Context) error {
					payload := append([]byte{uint8(c.Int("bank"))}, []byte(c.String("name"))...)
					return brd.dispatch(cmdtable.CmdBankName, 0, payload)
				},
			},
			{
				Name:  "bank-lreset",
				Usage: "set the long-reset rotation sequence (comma-separated bank numbers)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "seq", Aliases: []string{"s"}},
				},
				Action: func(c *cli.Context) error {
					seq := parseSeq(c.String("seq"))
					payload := make([]byte, bank.Count)
					for i := range payload {
						payload[i] = bank.None
					}
					copy(payload, seq)
					return brd.dispatch(cmdtable.CmdBankLReset, 0, payload)
				},
			},
			{
				Name:  "msg-send",
				Usage: "queue a mailbox message",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Value: "atou", Usage: "atou or utoa"},
					&cli.IntFlag{Name: "opcode", Value: 0},
					&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "hex payload"},
				},
				Action: func(c *cli.Context) error {
					data, err := hexFlag(c, "data")
					if err != nil {
						return err
					}
					payload := make([]byte, 2+len(data))
					payload[0] = uint8(c.Int("opcode"))
					payload[1] = uint8(c.Int("opcode") >> 8)
					copy(payload[2:], data)
					return brd.dispatch(cmdtable.CmdMsgSend, mailboxDir(c), payload)
				},
			},
			{
				Name:  "msg-receive",
				Usage: "dequeue the next mailbox message",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Value: "atou", Usage: "atou or utoa"},
				},
				Action: func(c *cli.Context) error {
					return brd.dispatch(cmdtable.CmdMsgReceive, mailboxDir(c), nil)
				},
			},
			{
				Name:  "msg-lock",
				Usage: "acquire or release mailbox cooperative lock bits",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "bits", Value: 0, Usage: "bit0=atou bit1=utoa"},
					&cli.BoolFlag{Name: "unlock"},
				},
				Action: func(c *cli.Context) error {
					var flags uint8
					if c.Bool("unlock") {
						flags |= cmdtable.FlagMsgUnlock
					}
					return brd.dispatch(cmdtable.CmdMsgLock, flags, []byte{uint8(c.Int("bits"))})
				},
			},
			{
				Name:  "clock-set",
				Usage: "set the wall-clock offset",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "sec", Value: 0},
					&cli.IntFlag{Name: "usec", Value: 0},
					&cli.BoolFlag{Name: "ifnot", Usage: "only set if not already set"},
				},
				Action: func(c *cli.Context) error {
					flags := cmdtable.FlagClockSet
					if c.Bool("ifnot") {
						flags = cmdtable.FlagClockSetIfNot
					}
					payload := make([]byte, 8)
					payload[0] = uint8(c.Int("sec") >> 24)
					payload[1] = uint8(c.Int("sec") >> 16)
					payload[2] = uint8(c.Int("sec") >> 8)
					payload[3] = uint8(c.Int("sec"))
					payload[4] = uint8(c.Int("usec") >> 24)
					payload[5] = uint8(c.Int("usec") >> 16)
					payload[6] = uint8(c.Int("usec") >> 8)
					payload[7] = uint8(c.Int("usec"))
					return brd.dispatch(cmdtable.CmdClock, uint8(flags), payload)
				},
			},
			{
				Name:  "clock-get",
				Usage: "read the wall-clock offset",
				Action: func(c *cli.Context) error {
					return brd.dispatch(cmdtable.CmdClock, 0, nil)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
