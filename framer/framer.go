// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package framer implements the command-framer state machine that
// extracts magic-delimited, length-prefixed, CRC-protected messages from
// the bus-capture engine's address ring, one captured word at a time.
package framer

import (
	"github.com/cdhooper/kicksmash32fw/crc32r"
)

// Magic is the four-word sequence that opens every in-band frame.
var Magic = [4]uint16{0x0204, 0x1017, 0x0119, 0x0117}

// MTU is the largest payload this framer accepts; a longer LEN field is
// rejected rather than overrunning the reassembly buffer.
const MTU = 4096

type state uint8

const (
	stateMagic0 state = iota
	stateMagic1
	stateMagic2
	stateMagic3
	stateLen
	stateOpcode
	stateData
	stateCRCHi
	stateCRCLo
)

// Frame is one fully reassembled and CRC-verified command frame.
type Frame struct {
	Opcode  uint8
	Flags   uint8
	Payload []byte
}

// CRCError reports a frame whose trailing CRC did not match the
// computed checksum over length|opcode|payload.
type CRCError struct {
	Got, Want uint32
}

func (e *CRCError) Error() string { return "framer: CRC mismatch" }

// Framer holds the in-progress reassembly state across calls to Feed.
type Framer struct {
	st state

	remaining uint16 // payload bytes not yet folded into crc/payload
	opcodeRaw uint16
	crc       uint32
	crcRxHi   uint32

	payload    []byte
	oddPending bool // true once remaining==1 and a high-byte is still due

	overLength bool
}

// New returns a Framer ready to scan from MAGIC0.
func New() *Framer {
	return &Framer{}
}

// Feed processes one captured word. It returns a non-nil *Frame once a
// full frame has been verified, or a non-nil error (always *CRCError)
// if the trailing CRC failed to match or the frame's LEN exceeded MTU (an
// over-length frame is reported as a *CRCError whatever its CRC, and no
// separate length error exists); in both cases the state machine
// has already reset to MAGIC0. Otherwise both returns are nil and the
// caller should keep feeding words.
func (f *Framer) Feed(word uint16) (*Frame, error) {
	switch f.st {
	case stateMagic0:
		if word == Magic[0] {
			f.st = stateMagic1
		}
		return nil, nil

	case stateMagic1, stateMagic2, stateMagic3:
		idx := int(f.st - stateMagic1 + 1)
		if word != Magic[idx] {
			f.st = stateMagic0
			return nil, nil
		}
		f.st++
		return nil, nil

	case stateLen:
		length := word
		f.remaining = length
		f.crc = crc32r.Update(0, le16(length))
		f.overLength = length > MTU
		if f.overLength {
			f.payload = nil
		} else {
			f.payload = make([]byte, 0, length)
		}
		f.st = stateOpcode
		return nil, nil

	case stateOpcode:
		f.opcodeRaw = word
		f.crc = crc32r.Update(f.crc, le16(word))
		if f.remaining == 0 {
			f.st = stateCRCHi
		} else {
			f.st = stateData
		}
		return nil, nil

	case stateData:
		f.remaining--
		if f.remaining != 0 {
			if !f.overLength {
				f.payload = append(f.payload, byte(word), byte(word>>8))
			}
			f.crc = crc32r.Update(f.crc, le16(word))
			f.remaining--
		} else {
			if !f.overLength {
				f.payload = append(f.payload, byte(word>>8))
			}
			f.crc = crc32r.UpdateByte(f.crc, byte(word>>8))
		}
		if f.remaining == 0 {
			f.st = stateCRCHi
		}
		return nil, nil

	case stateCRCHi:
		f.crcRxHi = uint32(word) << 16
		f.st = stateCRCLo
		return nil, nil

	case stateCRCLo:
		crcRx := f.crcRxHi | uint32(word)
		f.st = stateMagic0
		if crcRx != f.crc || f.overLength {
			return nil, &CRCError{Got: f.crc, Want: crcRx}
		}
		frame := &Frame{
			Opcode:  uint8(f.opcodeRaw),
			Flags:   uint8(f.opcodeRaw >> 8),
			Payload: f.payload,
		}
		return frame, nil
	}

	f.st = stateMagic0
	return nil, nil
}

func le16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
