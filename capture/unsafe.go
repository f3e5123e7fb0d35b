// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package capture

import "unsafe"

// bytesToWords reinterprets a DMA-region byte buffer as a uint16 slice
// the DMA channel can address directly, without a copy.
func bytesToWords(buf []byte) []uint16 {
	return unsafe.Slice((*uint16)(unsafe.Pointer(&buf[0])), len(buf)/2)
}

// addrOf returns the memory address backing a reserved ring, for handing
// to the DMA channel's memory-address register.
func addrOf(words []uint16) uint32 {
	return uint32(uintptr(unsafe.Pointer(&words[0])))
}
