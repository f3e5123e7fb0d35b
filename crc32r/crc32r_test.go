// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package crc32r

import (
	"hash/crc32"
	"testing"
)

func TestUpdateReversesWordPairs(t *testing.T) {
	buf := []byte{0x34, 0x12, 0x78, 0x56} // two little-endian words: 0x1234, 0x5678
	got := Update(0, buf)
	want := crc32.ChecksumIEEE([]byte{0x12, 0x34, 0x56, 0x78})
	if got != want {
		t.Errorf("Update() = %#x, want %#x", got, want)
	}
}

func TestUpdateOddTrailingByte(t *testing.T) {
	buf := []byte{0x34, 0x12, 0xff}
	got := Update(0, buf)
	want := crc32.ChecksumIEEE([]byte{0x12, 0x34, 0xff})
	if got != want {
		t.Errorf("Update() with odd trailer = %#x, want %#x", got, want)
	}
}

func TestChecksumMatchesUpdateFromZero(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04}
	if Checksum(buf) != Update(0, buf) {
		t.Error("Checksum should equal Update(0, buf)")
	}
}

func TestUpdateByteUnreversed(t *testing.T) {
	got := UpdateByte(0, 0xab)
	want := crc32.Update(0, crc32.IEEETable, []byte{0xab})
	if got != want {
		t.Errorf("UpdateByte() = %#x, want %#x", got, want)
	}
}

func TestUpdateIsChainable(t *testing.T) {
	a := Update(0, []byte{0x34, 0x12})
	a = Update(a, []byte{0x78, 0x56})
	b := Update(0, []byte{0x34, 0x12, 0x78, 0x56})
	if a != b {
		t.Errorf("chained Update = %#x, single-call Update = %#x", a, b)
	}
}
