// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package reply

import "unsafe"

// bytesToWords reinterprets buf as a uint16 slice, rounding an odd final
// byte down rather than reading past the end; the dropped byte is not
// sent by the 16-bit paths of stageFramed and stageRaw.
func bytesToWords(buf []byte) []uint16 {
	if len(buf) < 2 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&buf[0])), len(buf)/2)
}

// addrOf returns the memory address backing a reserved staging buffer,
// for handing to a DMA channel's memory-address register.
func addrOf(words []uint16) uint32 {
	return uint32(uintptr(unsafe.Pointer(&words[0])))
}
