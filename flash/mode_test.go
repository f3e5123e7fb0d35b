// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package flash

import "testing"

func TestModeMask(t *testing.T) {
	cases := []struct {
		mode Mode
		want uint32
	}{
		{Mode32, 0xffffffff},
		{Mode16Low, 0x0000ffff},
		{Mode16High, 0xffff0000},
		{ModeAuto, 0xffffffff},
		{ModeSwap32, 0xffffffff},
	}
	for _, c := range cases {
		if got := c.mode.mask(); got != c.want {
			t.Errorf("%v.mask() = %#x, want %#x", c.mode, got, c.want)
		}
	}
}

func TestModeWordSize(t *testing.T) {
	if Mode32.wordSize() != 4 {
		t.Errorf("Mode32.wordSize() = %d, want 4", Mode32.wordSize())
	}
	if ModeSwap32.wordSize() != 4 {
		t.Errorf("ModeSwap32.wordSize() = %d, want 4", ModeSwap32.wordSize())
	}
	if Mode16Low.wordSize() != 2 {
		t.Errorf("Mode16Low.wordSize() = %d, want 2", Mode16Low.wordSize())
	}
	if Mode16High.wordSize() != 2 {
		t.Errorf("Mode16High.wordSize() = %d, want 2", Mode16High.wordSize())
	}
}

func TestModeShiftCommand(t *testing.T) {
	// A command whose low 16 bits are zero is moved down into the low
	// half for the high-die-only mode.
	if got := Mode16High.shiftCommand(0x00aa0000); got != 0x000000aa {
		t.Errorf("Mode16High.shiftCommand(0x00aa0000) = %#x, want 0xaa", got)
	}
	// A command that already occupies the low 16 bits (not all zero) is
	// left alone: it has already been shifted, or never needed to be.
	if got := Mode16High.shiftCommand(0x0000aa00); got != 0x0000aa00 {
		t.Errorf("Mode16High.shiftCommand should not re-shift, got %#x", got)
	}
	if got := Mode32.shiftCommand(0x00aa0000); got != 0x00aa0000 {
		t.Errorf("Mode32.shiftCommand should not shift, got %#x", got)
	}
}

func TestModeString(t *testing.T) {
	cases := map[Mode]string{
		Mode32:     "32-bit",
		Mode16Low:  "16-bit-low",
		Mode16High: "16-bit-high",
		ModeAuto:   "auto",
		ModeSwap32: "32-bit-swap",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", mode, mode, want)
		}
	}
}
