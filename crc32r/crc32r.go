// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package crc32r computes the standard CRC-32 (IEEE 802.3 polynomial) used
// to protect frames on the host address bus and in the mailbox, but fed a
// byte-reversed view of each 16-bit word so the result matches the host's
// big-endian wire order for the length and opcode fields.
package crc32r

import "hash/crc32"

// Update folds the bytes in buf into a running CRC-32/IEEE checksum, after
// reversing the byte order of each pair of bytes in buf. The host places
// the length and opcode words on the bus in big-endian order while every
// other multi-byte quantity on this board is little-endian; Update lets
// callers feed either representation through the same accumulator by
// reversing at the word granularity the framing actually uses.
//
// buf may have an odd length: its unpaired trailing byte is folded in as
// is, without reversal.
func Update(crc uint32, buf []byte) uint32 {
	rev := make([]byte, len(buf))
	for i := 0; i+1 < len(buf); i += 2 {
		rev[i] = buf[i+1]
		rev[i+1] = buf[i]
	}
	if len(buf)%2 == 1 {
		rev[len(buf)-1] = buf[len(buf)-1]
	}
	return crc32.Update(crc, crc32.IEEETable, rev)
}

// UpdateByte folds a single byte into the running checksum without any
// byte-swap, used for the odd trailing byte of an odd-length payload.
func UpdateByte(crc uint32, b byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, []byte{b})
}

// Checksum computes the CRC from scratch, equivalent to Update(0, buf).
func Checksum(buf []byte) uint32 {
	return Update(0, buf)
}
