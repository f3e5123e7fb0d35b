// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package nvconfig

import (
	"testing"

	"github.com/cdhooper/kicksmash32fw/bank"
	"github.com/cdhooper/kicksmash32fw/flash"
)

// encode/decode are exercised directly here rather than through Store,
// since Store reads and writes through intflash's memory-mapped register
// access and has no host-safe backing to run against.

func testRecord() Record {
	info := bank.DefaultInfo()
	info.Current = 3
	info.PowerOn = 1
	info.NextReset = bank.None
	info.Merge[0] = 0x10
	info.Name[0] = "kickstart-3.1"
	info.LongResetSeq[0] = 2
	return Record{Name: "usbarmory", EEMode: flash.Mode16Low, Bank: info}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rec := testRecord()
	buf := encode(rec)

	got, ok := decode(buf)
	if !ok {
		t.Fatal("decode() reported invalid record for freshly encoded data")
	}
	if got.Name != rec.Name {
		t.Errorf("Name = %q, want %q", got.Name, rec.Name)
	}
	if got.EEMode != rec.EEMode {
		t.Errorf("EEMode = %v, want %v", got.EEMode, rec.EEMode)
	}
	if got.Bank.Current != rec.Bank.Current || got.Bank.PowerOn != rec.Bank.PowerOn {
		t.Errorf("Bank current/poweron = %d/%d, want %d/%d",
			got.Bank.Current, got.Bank.PowerOn, rec.Bank.Current, rec.Bank.PowerOn)
	}
	if got.Bank.Name[0] != rec.Bank.Name[0] {
		t.Errorf("Bank.Name[0] = %q, want %q", got.Bank.Name[0], rec.Bank.Name[0])
	}
	if got.Bank.Merge[0] != rec.Bank.Merge[0] {
		t.Errorf("Bank.Merge[0] = %#x, want %#x", got.Bank.Merge[0], rec.Bank.Merge[0])
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := encode(testRecord())
	buf[0] ^= 0xff
	if _, ok := decode(buf); ok {
		t.Error("decode() accepted a record with a corrupted magic")
	}
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	buf := encode(testRecord())
	buf[len(buf)-1] ^= 0xff
	if _, ok := decode(buf); ok {
		t.Error("decode() accepted a record with a corrupted CRC")
	}
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	buf := encode(testRecord())
	if _, ok := decode(buf[:4]); ok {
		t.Error("decode() accepted a truncated buffer")
	}
}

func TestDecodeRejectsInvalidFlag(t *testing.T) {
	buf := encode(testRecord())
	buf[6] = 0 // Valid byte
	if _, ok := decode(buf); ok {
		t.Error("decode() accepted a record marked invalid")
	}
}
