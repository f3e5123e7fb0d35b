// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package nvconfig persists the firmware's configuration (board name,
// flash bus mode, bank manager state) in the microcontroller's own
// internal flash, using an append-with-invalidate log so that writes
// never need to block on an erase except when the log region fills.
package nvconfig

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"sync"
	"time"

	"github.com/cdhooper/kicksmash32fw/bank"
	"github.com/cdhooper/kicksmash32fw/flash"
	"github.com/cdhooper/kicksmash32fw/soc/stm32/intflash"
)

const (
	recordMagic   = 0x19460602
	recordVersion = 0x01
)

// flushDebounce is how long after the last change a dirty config is left
// unwritten, coalescing bursts of related settings (e.g. several BANK_SET
// calls) into a single flash write.
const flushDebounce = time.Second

// ErrNoValidRecord is returned by Read when no record in the region has
// a matching magic, valid flag and CRC.
var ErrNoValidRecord = errors.New("nvconfig: no valid record found")

// ErrRegionFull is returned by findFreeSpace when no space remains for a
// new record; Write handles it by erasing the region and restarting at
// its base, so Write itself never returns it.
var ErrRegionFull = errors.New("nvconfig: region full")

// maxNameLen matches config.c's `config.name` field width.
const maxNameLen = 16

// bankNameLen is the stored width of one bank name field, one byte
// wider than bank.MaxNameLen to hold a NUL terminator the way the
// original fixed char array did.
const bankNameLen = bank.MaxNameLen + 1

// Record is the persisted configuration payload.
type Record struct {
	Name   string
	EEMode flash.Mode
	Bank   bank.Info
}

// layout is the on-flash encoding of a Record plus its envelope, laid
// out field by field so binary.Write/Read can (de)serialize it directly
// with no manual offset bookkeeping. Every field is fixed-width.
type layout struct {
	Magic   uint32
	Size    uint16
	Valid   uint8
	Version uint8

	Name   [maxNameLen]byte
	EEMode uint8
	_      [3]byte // pad to a 4-byte boundary

	BankCurrent   uint8
	BankPowerOn   uint8
	BankNextReset uint8
	_             uint8 // pad
	Merge         [bank.Count]uint8
	LongResetSeq  [bank.Count]uint8
	BankNames     [bank.Count][bankNameLen]byte
}

// crcSize is the width of the trailing CRC-32 field appended after
// layout when writing, and read separately when verifying.
const crcSize = 4

var recordSize = binary.Size(layout{}) + crcSize

// Store manages the append-with-invalidate log inside one internal-flash
// region.
type Store struct {
	mu       sync.Mutex
	ctrl     *intflash.Controller
	base     uint32
	size     uint32
	flushAt  time.Time
	hasFlush bool
}

// NewStore returns a Store managing the region [base, base+size) via
// ctrl. size must be a multiple of ctrl.SectorSize.
func NewStore(ctrl *intflash.Controller, base, size uint32) *Store {
	return &Store{ctrl: ctrl, base: base, size: size}
}

func encode(r Record) []byte {
	var l layout
	l.Magic = recordMagic
	l.Version = recordVersion
	l.Valid = 1
	l.Size = uint16(recordSize)
	copy(l.Name[:], r.Name)
	l.EEMode = uint8(r.EEMode)
	l.BankCurrent = r.Bank.Current
	l.BankPowerOn = r.Bank.PowerOn
	l.BankNextReset = r.Bank.NextReset
	l.Merge = r.Bank.Merge
	l.LongResetSeq = r.Bank.LongResetSeq
	for i, name := range r.Bank.Name {
		copy(l.BankNames[i][:], name)
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, l)

	crc := crc32.ChecksumIEEE(buf.Bytes()[8:]) // everything after magic, size, valid and version
	binary.Write(buf, binary.LittleEndian, crc)

	return buf.Bytes()
}

func decode(buf []byte) (Record, bool) {
	var r Record
	if len(buf) < 8 {
		return r, false
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	size := binary.LittleEndian.Uint16(buf[4:6])
	valid := buf[6]
	if magic != recordMagic || valid == 0 || int(size) > len(buf) {
		return r, false
	}

	rec := buf[:size]
	if len(rec) < crcSize+8 {
		return r, false
	}
	body, crcField := rec[:len(rec)-crcSize], rec[len(rec)-crcSize:]
	wantCRC := binary.LittleEndian.Uint32(crcField)
	if crc32.ChecksumIEEE(body[8:]) != wantCRC {
		return r, false
	}

	var l layout
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &l); err != nil {
		return r, false
	}

	r.Name = string(bytes.TrimRight(l.Name[:], "\x00"))
	r.EEMode = flash.Mode(l.EEMode)
	r.Bank.Current = l.BankCurrent
	r.Bank.PowerOn = l.BankPowerOn
	r.Bank.NextReset = l.BankNextReset
	r.Bank.Merge = l.Merge
	r.Bank.LongResetSeq = l.LongResetSeq
	for i, n := range l.BankNames {
		r.Bank.Name[i] = string(bytes.TrimRight(n[:], "\x00"))
	}
	return r, true
}

// Read scans the region for the first record with a valid magic and CRC,
// matching config_read's forward scan. If none is found, it returns
// ErrNoValidRecord; the caller is expected to fall back to a default
// Record in that case.
func (s *Store) Read() (Record, error) {
	for addr := s.base; addr < s.base+s.size; addr += 4 {
		hdr := intflash.ReadBytes(addr, 8)
		m := binary.LittleEndian.Uint32(hdr[0:4])
		size := binary.LittleEndian.Uint16(hdr[4:6])
		if m != recordMagic || size == 0 || uint32(size) > s.size {
			continue
		}
		buf := intflash.ReadBytes(addr, int(size))
		if r, ok := decode(buf); ok {
			return r, nil
		}
	}
	return Record{}, ErrNoValidRecord
}

// MarkDirty schedules a flush after flushDebounce has passed with no
// further change, matching config_updated's coalescing behavior.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushAt = time.Now().Add(flushDebounce)
	s.hasFlush = true
}

// Poll writes rec to flash if a dirty flush is due. Call periodically
// from the main loop.
func (s *Store) Poll(rec Record) error {
	s.mu.Lock()
	due := s.hasFlush && !time.Now().Before(s.flushAt)
	if due {
		s.hasFlush = false
	}
	s.mu.Unlock()
	if !due {
		return nil
	}
	return s.Write(rec)
}

// Write appends a new record, invalidating any prior valid record found
// in the region first, and erasing and restarting at the region base if
// no space remains for the new record.
func (s *Store) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := encode(rec)

	for addr := s.base; addr < s.base+s.size; {
		hdr := intflash.ReadBytes(addr, 8)
		m := binary.LittleEndian.Uint32(hdr[0:4])
		size := binary.LittleEndian.Uint16(hdr[4:6])
		if m != recordMagic || size == 0 {
			addr += 4
			continue
		}
		validOff := addr + 6
		if intflash.ReadBytes(validOff, 1)[0] != 0 {
			existing := intflash.ReadBytes(addr, int(size))
			if bytes.Equal(existing, encoded) {
				return nil // already current, nothing to do
			}
			s.ctrl.WriteBytes(validOff, []byte{0})
		}
		addr += uint32(size)
	}

	addr, err := s.findFreeSpace(uint32(len(encoded)))
	if err != nil {
		s.ctrl.EraseRegion(s.base, s.size)
		addr = s.base
	}

	s.ctrl.WriteBytes(addr, encoded)
	return nil
}

func (s *Store) findFreeSpace(need uint32) (uint32, error) {
	for addr := s.base; addr < s.base+s.size; {
		hdr := intflash.ReadBytes(addr, 4)
		m := binary.LittleEndian.Uint32(hdr)
		switch m {
		case recordMagic:
			size := binary.LittleEndian.Uint16(intflash.ReadBytes(addr+4, 2))
			if size == 0 {
				addr += 4
				continue
			}
			addr += uint32(size)
		case 0xffffffff:
			if addr+need <= s.base+s.size {
				return addr, nil
			}
			return 0, ErrRegionFull
		default:
			addr += 4
		}
	}
	return 0, ErrRegionFull
}
