// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package framer

import (
	"testing"

	"github.com/cdhooper/kicksmash32fw/crc32r"
)

// buildWords returns the capture-ring word sequence for a complete frame
// carrying opcode/flags/payload, along with the CRC Feed should compute.
func buildWords(opcode, flags uint8, payload []byte) []uint16 {
	words := append([]uint16{}, Magic[:]...)
	length := uint16(len(payload))
	words = append(words, length)
	opcodeWord := uint16(opcode) | uint16(flags)<<8
	words = append(words, opcodeWord)

	crc := crc32r.Update(0, le16(length))
	crc = crc32r.Update(crc, le16(opcodeWord))

	for i := 0; i+1 < len(payload); i += 2 {
		w := uint16(payload[i]) | uint16(payload[i+1])<<8
		words = append(words, w)
		crc = crc32r.Update(crc, le16(w))
	}
	if len(payload)%2 == 1 {
		last := payload[len(payload)-1]
		w := uint16(last) << 8 // odd trailing byte rides the high half of the last word
		words = append(words, w)
		crc = crc32r.UpdateByte(crc, last)
	}

	words = append(words, uint16(crc>>16), uint16(crc))
	return words
}

func feedAll(t *testing.T, f *Framer, words []uint16) (*Frame, error) {
	t.Helper()
	var frame *Frame
	var err error
	for _, w := range words {
		frame, err = f.Feed(w)
		if frame != nil || err != nil {
			return frame, err
		}
	}
	return nil, nil
}

func TestFeedReassemblesFrame(t *testing.T) {
	f := New()
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	words := buildWords(0x07, 0x05, payload)

	frame, err := feedAll(t, f, words)
	if err != nil {
		t.Fatalf("Feed returned error: %v", err)
	}
	if frame == nil {
		t.Fatal("Feed did not produce a frame")
	}
	if frame.Opcode != 0x07 || frame.Flags != 0x05 {
		t.Errorf("Opcode/Flags = %#x/%#x, want 0x07/0x05", frame.Opcode, frame.Flags)
	}
	if string(frame.Payload) != string(payload) {
		t.Errorf("Payload = %x, want %x", frame.Payload, payload)
	}
}

func TestFeedOddLengthPayload(t *testing.T) {
	f := New()
	payload := []byte{0xaa, 0xbb, 0xcc}
	words := buildWords(0x01, 0x00, payload)

	frame, err := feedAll(t, f, words)
	if err != nil {
		t.Fatalf("Feed returned error: %v", err)
	}
	if frame == nil || string(frame.Payload) != string(payload) {
		t.Fatalf("Payload = %x, want %x", frame.Payload, payload)
	}
}

func TestFeedEmptyPayload(t *testing.T) {
	f := New()
	words := buildWords(0x02, 0x00, nil)
	frame, err := feedAll(t, f, words)
	if err != nil {
		t.Fatalf("Feed returned error: %v", err)
	}
	if frame == nil || len(frame.Payload) != 0 {
		t.Fatalf("expected empty payload, got %x", frame.Payload)
	}
}

func TestFeedBadCRC(t *testing.T) {
	f := New()
	words := buildWords(0x02, 0x00, []byte{0x01, 0x02})
	words[len(words)-1] ^= 0xffff // corrupt the low CRC word

	frame, err := feedAll(t, f, words)
	if frame != nil {
		t.Fatalf("expected no frame on CRC mismatch, got %+v", frame)
	}
	if _, ok := err.(*CRCError); !ok {
		t.Fatalf("expected *CRCError, got %v (%T)", err, err)
	}
}

func TestFeedResyncsAfterGarbage(t *testing.T) {
	f := New()
	// Noise that never matches MAGIC0 should not advance the state
	// machine into a partial match.
	f.Feed(0x1234)
	f.Feed(0x5678)

	words := buildWords(0x03, 0x00, []byte{0x99})
	frame, err := feedAll(t, f, words)
	if err != nil {
		t.Fatalf("Feed returned error: %v", err)
	}
	if frame == nil || frame.Opcode != 0x03 {
		t.Fatalf("expected a clean frame after garbage, got %+v / %v", frame, err)
	}
}

func TestFeedPartialMagicThenRestart(t *testing.T) {
	f := New()
	// Start a magic match, break it, then send a real frame.
	f.Feed(Magic[0])
	f.Feed(0xffff) // breaks the match before MAGIC3

	words := buildWords(0x04, 0x00, nil)
	frame, err := feedAll(t, f, words)
	if err != nil {
		t.Fatalf("Feed returned error: %v", err)
	}
	if frame == nil || frame.Opcode != 0x04 {
		t.Fatalf("expected frame 0x04 after broken magic, got %+v / %v", frame, err)
	}
}
