// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package cmdtable

import (
	"encoding/binary"
	"testing"

	"github.com/cdhooper/kicksmash32fw/bank"
	"github.com/cdhooper/kicksmash32fw/clock"
	"github.com/cdhooper/kicksmash32fw/flash"
	"github.com/cdhooper/kicksmash32fw/framer"
	"github.com/cdhooper/kicksmash32fw/mailbox"
	"github.com/cdhooper/kicksmash32fw/reply"
)

// fakeReplier records every Send call a handler makes, satisfying
// Replier without any bus.
type fakeReplier struct {
	sent []struct {
		flags  reply.Flag
		status uint16
		data   []byte
	}
}

func (f *fakeReplier) Send(flags reply.Flag, status uint16, rbuf1, rbuf2 []byte) error {
	f.sent = append(f.sent, struct {
		flags  reply.Flag
		status uint16
		data   []byte
	}{flags, status, append(append([]byte{}, rbuf1...), rbuf2...)})
	return nil
}

type noopOverrider struct{}

func (noopOverrider) AddressOverride(bits uint8, action flash.OverrideAction) {}

func newTestSystem() (*System, *fakeReplier) {
	r := &fakeReplier{}
	sys := &System{
		Flash:         flash.New(&flash.Bus{}, flash.Mode32),
		Banks:         bank.NewManager(noopOverrider{}, bank.DefaultInfo()),
		Mailbox:       mailbox.New(4096),
		Clock:         clock.New(func() uint64 { return 1000 }),
		Reply:         r,
		UptimeUsec:    func() uint64 { return 0x0102030405060708 },
		Reboot:        func() {},
		ConfigChanged: func() {},
	}
	return sys, r
}

func dispatch(t *testing.T, sys *System, opcode Opcode, flags uint8, payload []byte) *fakeReplier {
	t.Helper()
	r := sys.Reply.(*fakeReplier)
	r.sent = nil
	if err := Dispatch(sys, &framer.Frame{Opcode: uint8(opcode), Flags: flags, Payload: payload}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	return r
}

func TestDispatchUnknownOpcode(t *testing.T) {
	sys, r := newTestSystem()
	if err := Dispatch(sys, &framer.Frame{Opcode: 0xfe}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(r.sent) != 1 || r.sent[0].status != uint16(StatusUnknownCmd) {
		t.Fatalf("unknown opcode reply = %+v, want a single StatusUnknownCmd", r.sent)
	}
}

func TestHandleUptimeBigEndian(t *testing.T) {
	sys, _ := newTestSystem()
	r := dispatch(t, sys, CmdUptime, 0, nil)
	if len(r.sent) != 1 {
		t.Fatalf("got %d replies, want 1", len(r.sent))
	}
	got := binary.BigEndian.Uint64(r.sent[0].data)
	if got != 0x0102030405060708 {
		t.Errorf("uptime = %#x, want 0x0102030405060708", got)
	}
}

func TestHandleLoopbackEchoesRaw(t *testing.T) {
	sys, _ := newTestSystem()
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	r := dispatch(t, sys, CmdLoopback, 0, payload)
	if len(r.sent) != 1 || string(r.sent[0].data) != string(payload) {
		t.Fatalf("loopback reply = %+v, want echo of %x", r.sent, payload)
	}
	if r.sent[0].flags&reply.FlagRaw == 0 {
		t.Error("loopback reply missing FlagRaw")
	}
}

func TestHandleFlashReadModeDependent(t *testing.T) {
	sys, _ := newTestSystem()
	r := dispatch(t, sys, CmdFlashRead, 0, nil)
	if len(r.sent) != 2 {
		t.Fatalf("got %d replies, want 2 (address sequence + data)", len(r.sent))
	}
	if len(r.sent[1].data) != 4 {
		t.Errorf("32-bit mode data reply = %d bytes, want 4", len(r.sent[1].data))
	}

	sys.Flash.SetMode(flash.Mode16Low)
	r = dispatch(t, sys, CmdFlashRead, 0, nil)
	if len(r.sent[1].data) != 2 {
		t.Errorf("16-bit mode data reply = %d bytes, want 2", len(r.sent[1].data))
	}
}

func TestHandleFlashWriteRejectsWrongLength(t *testing.T) {
	sys, _ := newTestSystem()
	r := dispatch(t, sys, CmdFlashWrite, 0, []byte{0x01, 0x02})
	if len(r.sent) != 1 || r.sent[0].status != uint16(StatusBadLength) {
		t.Fatalf("4-byte-mode write with 2-byte payload = %+v, want StatusBadLength", r.sent)
	}
}

func TestHandleBankSetAppliesSetCurrent(t *testing.T) {
	sys, _ := newTestSystem()
	r := dispatch(t, sys, CmdBankSet, FlagBankSetCurrent, []byte{3, 0})
	if len(r.sent) != 1 || r.sent[0].status != uint16(StatusOK) {
		t.Fatalf("bank-set reply = %+v, want StatusOK", r.sent)
	}
	if sys.Banks.Current() != 3 {
		t.Errorf("Banks.Current() = %d, want 3", sys.Banks.Current())
	}
}

func TestHandleBankSetRejectsOutOfRangeBank(t *testing.T) {
	sys, _ := newTestSystem()
	r := dispatch(t, sys, CmdBankSet, FlagBankSetCurrent, []byte{uint8(bank.Count), 0})
	if len(r.sent) != 1 || r.sent[0].status != uint16(StatusBadArg) {
		t.Fatalf("out-of-range bank-set = %+v, want StatusBadArg", r.sent)
	}
}

func TestHandleMsgSendReceiveRoundTrip(t *testing.T) {
	sys, _ := newTestSystem()
	payload := append([]byte{0x55, 0x00}, []byte{0xaa, 0xbb}...)
	r := dispatch(t, sys, CmdMsgSend, 0, payload)
	if r.sent[0].status != uint16(StatusOK) {
		t.Fatalf("msg-send = %+v, want StatusOK", r.sent)
	}

	r = dispatch(t, sys, CmdMsgReceive, 0, nil)
	if len(r.sent) != 1 {
		t.Fatalf("msg-receive replies = %+v, want 1", r.sent)
	}
	gotOpcode := binary.LittleEndian.Uint16(r.sent[0].data[:2])
	if gotOpcode != 0x55 {
		t.Errorf("received opcode = %#x, want 0x55", gotOpcode)
	}
}

func TestHandleMsgLockRejectsWhenAlreadyLocked(t *testing.T) {
	sys, _ := newTestSystem()
	if err := sys.Mailbox.Lock(mailbox.SideUSB, mailbox.AtoU); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	r := dispatch(t, sys, CmdMsgLock, 0, []byte{1})
	if r.sent[0].status != uint16(StatusLocked) {
		t.Errorf("msg-lock status = %d, want StatusLocked", r.sent[0].status)
	}
}

func TestHandleClockSetThenGet(t *testing.T) {
	sys, _ := newTestSystem()
	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[0:4], 1700000000)
	binary.BigEndian.PutUint32(payload[4:8], 500)
	r := dispatch(t, sys, CmdClock, uint8(FlagClockSet), payload)
	if r.sent[0].status != uint16(StatusOK) {
		t.Fatalf("clock-set = %+v, want StatusOK", r.sent)
	}

	r = dispatch(t, sys, CmdClock, 0, nil)
	sec := binary.BigEndian.Uint32(r.sent[0].data[0:4])
	if sec != 1700000000 {
		t.Errorf("clock-get sec = %d, want 1700000000", sec)
	}
}
