// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package bank

import (
	"testing"

	"github.com/cdhooper/kicksmash32fw/flash"
)

// recordingBus is a fake Overrider that just remembers the last call, so
// tests can assert on bank selection without any real address lines.
type recordingBus struct {
	bits   uint8
	action flash.OverrideAction
	calls  int
}

func (b *recordingBus) AddressOverride(bits uint8, action flash.OverrideAction) {
	b.bits = bits
	b.action = action
	b.calls++
}

func TestSelectDrivesOverrideAndClearsNextReset(t *testing.T) {
	bus := &recordingBus{}
	m := NewManager(bus, DefaultInfo())
	m.SetNextReset(3)

	if err := m.Select(2); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if bus.bits != (2<<4)|overrideBits[0] {
		t.Errorf("override bits = %#x, want %#x", bus.bits, (2<<4)|overrideBits[0])
	}
	if m.Current() != 2 {
		t.Errorf("Current() = %d, want 2", m.Current())
	}
	if m.info.NextReset != None {
		t.Errorf("NextReset not cleared by Select: %d", m.info.NextReset)
	}
}

func TestSelectRejectsOutOfRangeBank(t *testing.T) {
	m := NewManager(&recordingBus{}, DefaultInfo())
	if err := m.Select(Count); err != ErrInvalidBank {
		t.Errorf("Select(Count) = %v, want ErrInvalidBank", err)
	}
}

func TestSelectRejectsNonStartSubBank(t *testing.T) {
	m := NewManager(&recordingBus{}, DefaultInfo())
	if err := m.SetMerge(0, 1); err != nil {
		t.Fatalf("SetMerge: %v", err)
	}
	if err := m.Select(1); err != ErrNotStart {
		t.Errorf("Select(1) on merged range = %v, want ErrNotStart", err)
	}
}

func TestSetTemporaryThenClearRestoresCurrent(t *testing.T) {
	bus := &recordingBus{}
	m := NewManager(bus, DefaultInfo())
	if err := m.Select(4); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := m.SetTemporary(6); err != nil {
		t.Fatalf("SetTemporary: %v", err)
	}
	if bus.bits != (6<<4)|0x7 {
		t.Errorf("temp override bits = %#x, want %#x", bus.bits, (6<<4)|0x7)
	}
	if m.Current() != 4 {
		t.Errorf("Current() changed by SetTemporary: %d", m.Current())
	}
	if err := m.ClearTemporary(); err != nil {
		t.Fatalf("ClearTemporary: %v", err)
	}
	if bus.bits != (4<<4)|overrideBits[0] {
		t.Errorf("override bits after ClearTemporary = %#x, want bank 4's", bus.bits)
	}
}

func TestSetMergeRejectsMisalignedStart(t *testing.T) {
	m := NewManager(&recordingBus{}, DefaultInfo())
	if err := m.SetMerge(1, 2); err != ErrMisaligned {
		t.Errorf("SetMerge(1,2) = %v, want ErrMisaligned", err)
	}
	if err := m.SetMerge(0, 2); err != ErrInvalidWidth {
		t.Errorf("SetMerge(0,2) = %v, want ErrInvalidWidth", err)
	}
}

func TestSetMergeEncodesBanksAddNibble(t *testing.T) {
	m := NewManager(&recordingBus{}, DefaultInfo())
	if err := m.SetMerge(0, 3); err != nil {
		t.Fatalf("SetMerge: %v", err)
	}
	want := [4]uint8{0x30, 0x31, 0x32, 0x33}
	for i, w := range want {
		if m.info.Merge[i] != w {
			t.Errorf("Merge[%d] = %#x, want %#x", i, m.info.Merge[i], w)
		}
	}
}

func TestUnmergeRestoresWidthOneAcrossWholeRange(t *testing.T) {
	m := NewManager(&recordingBus{}, DefaultInfo())
	if err := m.SetMerge(0, 3); err != nil {
		t.Fatalf("SetMerge: %v", err)
	}
	if err := m.Unmerge(0); err != nil {
		t.Fatalf("Unmerge: %v", err)
	}
	for i := 0; i < 4; i++ {
		if m.info.Merge[i] != 0 {
			t.Errorf("Merge[%d] = %#x after Unmerge, want 0", i, m.info.Merge[i])
		}
	}
}

func TestUnmergeFromNonStartSubBankClearsWholeRange(t *testing.T) {
	m := NewManager(&recordingBus{}, DefaultInfo())
	if err := m.SetMerge(0, 3); err != nil {
		t.Fatalf("SetMerge: %v", err)
	}
	if err := m.Unmerge(2); err != nil {
		t.Fatalf("Unmerge(2): %v", err)
	}
	for i := 0; i < 4; i++ {
		if m.info.Merge[i] != 0 {
			t.Errorf("Merge[%d] = %#x after Unmerge(2), want 0", i, m.info.Merge[i])
		}
	}
}

func TestUnmergeRejectsNonMergedBank(t *testing.T) {
	m := NewManager(&recordingBus{}, DefaultInfo())
	if err := m.Unmerge(0); err != ErrNotMerged {
		t.Errorf("Unmerge(0) on unmerged bank = %v, want ErrNotMerged", err)
	}
}

func TestUpdateAtResetHonorsNextResetOnce(t *testing.T) {
	bus := &recordingBus{}
	m := NewManager(bus, DefaultInfo())
	m.SetNextReset(5)

	if err := m.UpdateAtReset(); err != nil {
		t.Fatalf("UpdateAtReset: %v", err)
	}
	if m.Current() != 5 {
		t.Errorf("Current() = %d, want 5", m.Current())
	}

	bus.calls = 0
	if err := m.UpdateAtReset(); err != nil {
		t.Fatalf("second UpdateAtReset: %v", err)
	}
	if m.Current() != 5 {
		t.Errorf("Current() changed on second UpdateAtReset: %d", m.Current())
	}
}

func TestUpdateAtLongResetAdvancesAndWraps(t *testing.T) {
	m := NewManager(&recordingBus{}, DefaultInfo())
	m.SetLongResetSeq([]uint8{2, 5, 7})
	if err := m.Select(2); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if err := m.UpdateAtLongReset(); err != nil {
		t.Fatalf("UpdateAtLongReset: %v", err)
	}
	if m.Current() != 5 {
		t.Fatalf("Current() = %d, want 5", m.Current())
	}
	if err := m.UpdateAtLongReset(); err != nil {
		t.Fatalf("UpdateAtLongReset: %v", err)
	}
	if m.Current() != 7 {
		t.Fatalf("Current() = %d, want 7", m.Current())
	}
	if err := m.UpdateAtLongReset(); err != nil {
		t.Fatalf("UpdateAtLongReset: %v", err)
	}
	if m.Current() != 2 {
		t.Fatalf("Current() = %d, want wraparound to 2", m.Current())
	}
}

func TestSetNameRejectsTooLong(t *testing.T) {
	m := NewManager(&recordingBus{}, DefaultInfo())
	if err := m.SetName(0, "0123456789abcdef"); err != ErrNameTooLong {
		t.Errorf("SetName with 16-char name = %v, want ErrNameTooLong", err)
	}
	if err := m.SetName(0, "0123456789abcde"); err != nil {
		t.Errorf("SetName with 15-char name: %v", err)
	}
}
