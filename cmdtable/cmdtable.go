// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package cmdtable dispatches parsed command frames to the subsystem
// that implements each opcode, and formats the reply each handler
// produces back through the reply engine.
package cmdtable

import (
	"encoding/binary"

	"github.com/cdhooper/kicksmash32fw/bank"
	"github.com/cdhooper/kicksmash32fw/clock"
	"github.com/cdhooper/kicksmash32fw/flash"
	"github.com/cdhooper/kicksmash32fw/framer"
	"github.com/cdhooper/kicksmash32fw/mailbox"
	"github.com/cdhooper/kicksmash32fw/reply"
)

// Opcode identifies a command frame's low byte.
type Opcode uint8

const (
	CmdNull Opcode = iota
	CmdNOP
	CmdID
	CmdUptime
	CmdTestPattern
	CmdLoopback
	CmdFlashRead
	CmdFlashID
	CmdFlashWrite
	CmdFlashErase
	CmdBankInfo
	CmdBankSet
	CmdBankMerge
	CmdBankName
	CmdBankLReset
	CmdMsgInfo
	CmdMsgSend
	CmdMsgReceive
	CmdMsgLock
	CmdClock
)

// Flag bits live in the frame's high (flags) byte; meaning depends on
// the opcode they accompany.
const (
	FlagBankSetCurrent  = 1 << 0
	FlagBankSetTemp     = 1 << 1
	FlagBankUnsetTemp   = 1 << 2
	FlagBankSetReset    = 1 << 3
	FlagBankSetPowerOn  = 1 << 4
	FlagBankReboot      = 1 << 5
	FlagBankUnmerge     = 1 << 0
	FlagMsgAltBuf       = 1 << 0
	FlagMsgUnlock       = 1 << 0
	FlagClockSet        = 1 << 0
	FlagClockSetIfNot   = 1 << 1
)

// Status is the one-byte outcome code returned in every framed reply.
type Status uint8

const (
	StatusOK Status = iota
	StatusCRC
	StatusUnknownCmd
	StatusBadLength
	StatusBadArg
	StatusNoData
	StatusLocked
	StatusFailure
)

// identity is the fixed ID-command reply: product ID, protocol version,
// feature bits, and two reserved words.
var identity = [5]uint32{0x12091610, 0x00000001, 0x00000001, 0, 0}

// testPattern is the fixed 28-word TESTPATT reply.
var testPattern = [28]uint32{
	0x54534554, 0x54544150, 0x53202d20, 0x54524154,
	0xaaaa5555, 0xcccc3333, 0xeeee1111, 0x66669999,
	0x00020001, 0x00080004, 0x00200010, 0x00800040,
	0x02000100, 0x08000400, 0x20001000, 0x80004000,
	0xfffdfffe, 0xfff7fffb, 0xffdfffef, 0xff7fffbf,
	0xfdfffeff, 0xf7fffbff, 0xdfffefff, 0x7fffbfff,
	0x54534554, 0x54544150, 0x444e4520, 0x68646320,
}

// Replier is the subset of *reply.Engine the command table needs to send
// a framed response back to the host. It is an interface (rather than
// *reply.Engine directly) so tests and the simulation CLI can supply a
// fake that records replies instead of driving a real bus.
type Replier interface {
	Send(flags reply.Flag, status uint16, rbuf1, rbuf2 []byte) error
}

// System collects every subsystem a command handler may touch. Banks
// already takes its bus access through the bank.Overrider interface, and
// Reply is a Replier here for the same reason: both can be satisfied by
// a fake so tests and cmd/kicksmash-sim can run the whole dispatch table
// without real hardware.
type System struct {
	Flash   *flash.Flash
	Banks   *bank.Manager
	Mailbox *mailbox.Mailbox
	Clock   *clock.Clock
	Reply   Replier

	// UptimeUsec returns microseconds since boot, for UPTIME.
	UptimeUsec func() uint64
	// Reboot resets the host, for BANK_SET's reboot flag.
	Reboot func()
	// ConfigChanged is called after any command mutates persisted
	// configuration state, so the owner can schedule a flush.
	ConfigChanged func()
}

// Dispatch executes the command in f and sends its reply through
// sys.Reply. The returned error is only non-nil if the reply engine
// itself failed (e.g. the host stopped reading); a handled-but-rejected
// command (bad argument, unknown opcode, ...) still returns nil after
// sending a failure-status reply.
func Dispatch(sys *System, f *framer.Frame) error {
	h, ok := handlers[Opcode(f.Opcode)]
	if !ok {
		return sys.Reply.Send(0, uint16(StatusUnknownCmd), nil, nil)
	}
	return h(sys, f.Flags, f.Payload)
}

type handlerFunc func(sys *System, flags uint8, payload []byte) error

var handlers = map[Opcode]handlerFunc{
	CmdNull:        handleNull,
	CmdNOP:         handleNOP,
	CmdID:          handleID,
	CmdUptime:      handleUptime,
	CmdTestPattern: handleTestPattern,
	CmdLoopback:    handleLoopback,
	CmdFlashRead:   handleFlashRead,
	CmdFlashID:     handleFlashID,
	CmdFlashWrite:  handleFlashWrite,
	CmdFlashErase:  handleFlashErase,
	CmdBankInfo:    handleBankInfo,
	CmdBankSet:     handleBankSet,
	CmdBankMerge:   handleBankMerge,
	CmdBankName:    handleBankName,
	CmdBankLReset:  handleBankLReset,
	CmdMsgInfo:     handleMsgInfo,
	CmdMsgSend:     handleMsgSend,
	CmdMsgReceive:  handleMsgReceive,
	CmdMsgLock:     handleMsgLock,
	CmdClock:       handleClock,
}

func replyStatus(sys *System, status Status) error {
	return sys.Reply.Send(0, uint16(status), nil, nil)
}

func handleNull(sys *System, flags uint8, payload []byte) error {
	return nil // discard, no reply
}

func handleNOP(sys *System, flags uint8, payload []byte) error {
	return replyStatus(sys, StatusOK)
}

func handleID(sys *System, flags uint8, payload []byte) error {
	buf := make([]byte, 4*len(identity))
	for i, w := range identity {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return sys.Reply.Send(0, uint16(StatusOK), buf, nil)
}

func handleUptime(sys *System, flags uint8, payload []byte) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, sys.UptimeUsec())
	return sys.Reply.Send(0, uint16(StatusOK), buf, nil)
}

func handleTestPattern(sys *System, flags uint8, payload []byte) error {
	buf := make([]byte, 4*len(testPattern))
	for i, w := range testPattern {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return sys.Reply.Send(0, uint16(StatusOK), buf, nil)
}

func handleLoopback(sys *System, flags uint8, payload []byte) error {
	return sys.Reply.Send(reply.FlagRaw, 0, payload, nil)
}

// le32Buf and le16Buf pack the fixed unlock-sequence constants used by
// the flash read/id/write/erase handlers below. These mirror the
// bus-level addresses and data words a JEDEC-compatible parallel NOR
// expects on its standard unlock sequence; the host plays them back over
// its own bus cycles, the firmware only hands over the sequence.
func le32Buf(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

func le16Buf(words ...uint16) []byte {
	buf := make([]byte, 2*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint16(buf[i*2:], w)
	}
	return buf
}

func handleFlashRead(sys *System, flags uint8, payload []byte) error {
	if err := sys.Reply.Send(0, uint16(StatusOK), le32Buf(0x00555), nil); err != nil {
		return err
	}
	if sys.Flash != nil && sys.Flash.Mode() != flash.Mode32 {
		return sys.Reply.Send(reply.FlagRaw|reply.FlagWriteEnable, 0, le16Buf(0x00f0), nil)
	}
	return sys.Reply.Send(reply.FlagRaw|reply.FlagWriteEnable, 0, le32Buf(0x00f000f0), nil)
}

func handleFlashID(sys *System, flags uint8, payload []byte) error {
	if err := sys.Reply.Send(0, uint16(StatusOK), le32Buf(0x00555, 0x002aa, 0x00555), nil); err != nil {
		return err
	}
	if sys.Flash != nil && sys.Flash.Mode() != flash.Mode32 {
		return sys.Reply.Send(reply.FlagRaw|reply.FlagWriteEnable, 0, le16Buf(0x00aa, 0x0055, 0x0090), nil)
	}
	return sys.Reply.Send(reply.FlagRaw|reply.FlagWriteEnable, 0, le32Buf(0x00aa00aa, 0x00550055, 0x00900090), nil)
}

func handleFlashWrite(sys *System, flags uint8, payload []byte) error {
	mode32 := sys.Flash == nil || sys.Flash.Mode() == flash.Mode32
	wantLen := 4
	if !mode32 {
		wantLen = 2
	}
	if len(payload) != wantLen {
		return replyStatus(sys, StatusBadLength)
	}
	if err := sys.Reply.Send(0, uint16(StatusOK), le32Buf(0x00555, 0x002aa, 0x00555), nil); err != nil {
		return err
	}
	if !mode32 {
		wdata := binary.LittleEndian.Uint16(payload)
		return sys.Reply.Send(reply.FlagRaw|reply.FlagWriteEnable, 0,
			le16Buf(0x00aa, 0x0055, 0x00a0, wdata), nil)
	}
	wdata := binary.LittleEndian.Uint32(payload)
	return sys.Reply.Send(reply.FlagRaw|reply.FlagWriteEnable, 0,
		le32Buf(0x00aa00aa, 0x00550055, 0x00a000a0, wdata), nil)
}

func handleFlashErase(sys *System, flags uint8, payload []byte) error {
	if len(payload) != 0 {
		return replyStatus(sys, StatusBadLength)
	}
	if err := sys.Reply.Send(0, uint16(StatusOK), le32Buf(0x00555, 0x002aa, 0x00555, 0x00555, 0x002aa), nil); err != nil {
		return err
	}
	if sys.Flash != nil && sys.Flash.Mode() != flash.Mode32 {
		return sys.Reply.Send(reply.FlagRaw|reply.FlagWriteEnable, 0,
			le16Buf(0x00aa, 0x0055, 0x0080, 0x00aa, 0x0055, 0x0030), nil)
	}
	return sys.Reply.Send(reply.FlagRaw|reply.FlagWriteEnable, 0,
		le32Buf(0x00aa00aa, 0x00550055, 0x00800080, 0x00aa00aa, 0x00550055, 0x00300030), nil)
}

func handleBankInfo(sys *System, flags uint8, payload []byte) error {
	info := sys.Banks.Info()
	buf := make([]byte, 0, 4+3*bank.Count+bank.Count*(bank.MaxNameLen+1))
	buf = append(buf, info.Current, info.PowerOn, info.NextReset, 0)
	buf = append(buf, info.Merge[:]...)
	buf = append(buf, info.LongResetSeq[:]...)
	for _, n := range info.Name {
		nb := make([]byte, bank.MaxNameLen+1)
		copy(nb, n)
		buf = append(buf, nb...)
	}
	return sys.Reply.Send(reply.FlagRaw, 0, buf, nil)
}

func handleBankSet(sys *System, flags uint8, payload []byte) error {
	if len(payload) != 2 {
		return replyStatus(sys, StatusBadLength)
	}
	b := payload[0]
	if int(b) >= bank.Count {
		return replyStatus(sys, StatusBadArg)
	}
	if err := replyStatus(sys, StatusOK); err != nil {
		return err
	}
	if flags&FlagBankSetCurrent != 0 {
		sys.Banks.Select(b)
	}
	if flags&FlagBankSetTemp != 0 {
		sys.Banks.SetTemporary(b)
	}
	if flags&FlagBankUnsetTemp != 0 {
		sys.Banks.ClearTemporary()
	}
	if flags&FlagBankSetReset != 0 {
		sys.Banks.SetNextReset(b)
	}
	if flags&FlagBankSetPowerOn != 0 {
		sys.Banks.SetPowerOn(b)
	}
	if flags&(FlagBankSetCurrent|FlagBankUnsetTemp|FlagBankSetReset|FlagBankSetPowerOn) != 0 {
		sys.ConfigChanged()
	}
	if flags&FlagBankReboot != 0 && sys.Reboot != nil {
		sys.Reboot()
	}
	return nil
}

func handleBankMerge(sys *System, flags uint8, payload []byte) error {
	if len(payload) != 2 {
		return replyStatus(sys, StatusBadLength)
	}
	start, end := payload[0], payload[1]
	var err error
	if flags&FlagBankUnmerge != 0 {
		err = sys.Banks.Unmerge(start)
	} else {
		err = sys.Banks.SetMerge(start, end)
	}
	if err != nil {
		return replyStatus(sys, StatusBadArg)
	}
	if err := replyStatus(sys, StatusOK); err != nil {
		return err
	}
	sys.ConfigChanged()
	return nil
}

func handleBankName(sys *System, flags uint8, payload []byte) error {
	if len(payload) < 1 {
		return replyStatus(sys, StatusBadLength)
	}
	b := payload[0]
	name := payload[1:]
	if int(b) >= bank.Count {
		return replyStatus(sys, StatusBadArg)
	}
	if len(name) > bank.MaxNameLen {
		return replyStatus(sys, StatusBadLength)
	}
	if err := sys.Banks.SetName(b, string(name)); err != nil {
		return replyStatus(sys, StatusBadArg)
	}
	if err := replyStatus(sys, StatusOK); err != nil {
		return err
	}
	sys.ConfigChanged()
	return nil
}

func handleBankLReset(sys *System, flags uint8, payload []byte) error {
	if len(payload) != bank.Count {
		return replyStatus(sys, StatusBadLength)
	}
	sys.Banks.SetLongResetSeq(payload)
	if err := replyStatus(sys, StatusOK); err != nil {
		return err
	}
	sys.ConfigChanged()
	return nil
}

func handleMsgInfo(sys *System, flags uint8, payload []byte) error {
	return replyStatus(sys, StatusOK)
}

func handleMsgSend(sys *System, flags uint8, payload []byte) error {
	dir := mailbox.AtoU
	if flags&FlagMsgAltBuf != 0 {
		dir = mailbox.UtoA
	}
	if len(payload) < 2 {
		return replyStatus(sys, StatusBadLength)
	}
	opcode := binary.LittleEndian.Uint16(payload)
	if err := sys.Mailbox.Send(dir, opcode, payload[2:]); err != nil {
		return replyStatus(sys, StatusFailure)
	}
	return replyStatus(sys, StatusOK)
}

func handleMsgReceive(sys *System, flags uint8, payload []byte) error {
	dir := mailbox.AtoU
	if flags&FlagMsgAltBuf != 0 {
		dir = mailbox.UtoA
	}
	opcode, data, err := sys.Mailbox.Receive(dir)
	if err != nil {
		return replyStatus(sys, StatusNoData)
	}
	hdr := make([]byte, 2)
	binary.LittleEndian.PutUint16(hdr, opcode)
	return sys.Reply.Send(reply.FlagRaw, 0, hdr, data)
}

func handleMsgLock(sys *System, flags uint8, payload []byte) error {
	if len(payload) != 1 {
		return replyStatus(sys, StatusBadLength)
	}
	bits := payload[0]
	if flags&FlagMsgUnlock != 0 {
		if bits&(1<<0) != 0 {
			sys.Mailbox.Unlock(mailbox.SideHost, mailbox.AtoU)
		}
		if bits&(1<<1) != 0 {
			sys.Mailbox.Unlock(mailbox.SideHost, mailbox.UtoA)
		}
		return replyStatus(sys, StatusOK)
	}
	if bits&(1<<0) != 0 {
		if err := sys.Mailbox.Lock(mailbox.SideHost, mailbox.AtoU); err != nil {
			return replyStatus(sys, StatusLocked)
		}
	}
	if bits&(1<<1) != 0 {
		if err := sys.Mailbox.Lock(mailbox.SideHost, mailbox.UtoA); err != nil {
			return replyStatus(sys, StatusLocked)
		}
	}
	return replyStatus(sys, StatusOK)
}

func handleClock(sys *System, flags uint8, payload []byte) error {
	if flags&(FlagClockSet|FlagClockSetIfNot) != 0 {
		if len(payload) != 8 {
			return replyStatus(sys, StatusBadLength)
		}
		sec := binary.BigEndian.Uint32(payload[0:4])
		usec := binary.BigEndian.Uint32(payload[4:8])
		if flags&FlagClockSetIfNot != 0 {
			sys.Clock.SetIfNotSet(sec, usec)
		} else {
			sys.Clock.Set(sec, usec)
		}
		return replyStatus(sys, StatusOK)
	}
	sec, usec := sys.Clock.Get()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], sec)
	binary.BigEndian.PutUint32(buf[4:8], usec)
	return sys.Reply.Send(0, uint16(StatusOK), buf, nil)
}
