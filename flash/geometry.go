// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package flash

// DeviceWords is the total addressable size of one die, in 16-bit words
// (2^20 words = 1M words = 2MB per die).
const DeviceWords = 1 << 20

// EraseSectorWords is the size of a uniform (non-boot-block) sector, in
// 16-bit words.
const EraseSectorWords = 32 << 10

// chipID identifies a die's vendor/device code pair as read by the
// identify command.
type chipID struct {
	code uint16
	name string
}

// chipIDs is the recognized device list, reproduced from the boot-block
// table the original firmware keys erase geometry on. The low 16 bits of
// the identify command's second word is what's matched.
var chipIDs = []chipID{
	{0x22d2, "M29F160FT"},   // AMD and compatible, 2MB, top boot
	{0x22d8, "M29F160FB"},   // AMD and compatible, 2MB, bottom boot
	{0x22d6, "M29F800FT"},   // AMD and compatible, 1MB, top boot
	{0x2258, "M29F800FB"},   // AMD and compatible, 1MB, bottom boot
	{0x2223, "M29F400FT"},   // AMD and compatible, 512KB, top boot
	{0x22ab, "M29F400FB"},   // AMD and compatible, 512KB, bottom boot
}

// IDName returns the device name string for a 16-bit chip ID code, or
// "Unknown" if unrecognized.
func IDName(code uint16) string {
	for _, c := range chipIDs {
		if c.code == code {
			return c.name
		}
	}
	return "Unknown"
}

// blockInfo describes a device's erase geometry: a single irregular boot
// block (top or bottom) subdivided per a bitmap into smaller sub-sectors,
// with every other block a uniform size.
type blockInfo struct {
	chipID      uint16
	bootBlock   uint32 // block number containing the boot block (0 = bottom)
	blockKwords uint32 // uniform block size, in Kwords
	subKwords   uint32 // boot sub-sector size, in Kwords
	subMap      uint8  // bit i set => a new sector starts at sub-sector i
}

// blockTable is reproduced from the original firmware's chip_blocks table.
// It is searched by the low 16 bits of the identify result; an unmatched
// id defaults to the last (bottom-boot, 4K sub-sectors) entry, since that
// is the safer geometry to assume when erasing an unrecognized part.
var blockTable = []blockInfo{
	{chipID: 0x22d2, bootBlock: 31, blockKwords: 32, subKwords: 4, subMap: 0x71}, // top: 16K 4K 4K 8K
	{chipID: 0x22d8, bootBlock: 0, blockKwords: 32, subKwords: 4, subMap: 0x1d},  // bottom: 8K 4K 4K 16K
	{chipID: 0x22d6, bootBlock: 15, blockKwords: 32, subKwords: 4, subMap: 0x71}, // top: 16K 4K 4K 8K
	{chipID: 0x2258, bootBlock: 0, blockKwords: 32, subKwords: 4, subMap: 0x1d},  // bottom: 8K 4K 4K 16K
}

var defaultBlockInfo = blockInfo{bootBlock: 0, blockKwords: 32, subKwords: 4, subMap: 0x1d}

func lookupBlockInfo(chipID uint16) blockInfo {
	for _, b := range blockTable {
		if b.chipID == chipID {
			return b
		}
	}
	return defaultBlockInfo
}

// sectorSizeWords returns the size, in 16-bit words, of the sector
// containing wordAddr on a die with the given identify-code geometry. For
// every block but the boot block this is the uniform block size; within
// the boot block, subMap is scanned to find the run of sub-sectors
// containing the address.
func sectorSizeWords(chipID uint16, wordAddr uint32) uint32 {
	b := lookupBlockInfo(chipID)
	blockSize := b.blockKwords << 10
	blockNum := wordAddr / blockSize

	if blockNum != b.bootBlock {
		return blockSize
	}

	subSize := b.subKwords << 10
	off := wordAddr - b.bootBlock*blockSize
	subNum := off / subSize

	size := uint32(0)
	for {
		size += subSize
		subNum++
		if b.subMap&(1<<subNum) != 0 || subNum >= 8 {
			break
		}
	}
	return size
}

// SectorBase rounds wordAddr down to the start of its containing sector.
func SectorBase(chipID uint16, wordAddr uint32) uint32 {
	size := sectorSizeWords(chipID, wordAddr)
	return wordAddr &^ (size - 1)
}
