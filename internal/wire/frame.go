// Package wire implements the three coexisting framing families carried by
// the bot's TCP and UDP sockets, plus the stat-string bijection used inside
// GAMEINFO and realm advertisement packets.
//
// Every frame has a 4-byte header: family byte, opcode byte, and a
// little-endian uint16 total length (header included). No speculative
// parsing: one malformed frame is a protocol error and the caller must
// close the connection (spec.md §4.1, §9).
package wire

import (
	"encoding/binary"
	"fmt"
)

// Family identifies which of the three protocol families a frame belongs to.
type Family byte

const (
	FamilyRealm Family = 0xFF // PvPGN/Battle.net chat protocol
	FamilyGame  Family = 0xF7 // Warcraft III game wire protocol + LAN discovery
	FamilyGPS   Family = 0xF8 // GProxy reconnection protocol
	FamilyVLAN  Family = 0xFA // reserved VLAN family (spec.md §4.4 step 4)
)

// HeaderSize is the fixed 4-byte frame header: family + opcode + uint16 length.
const HeaderSize = 4

// Frame is one decoded wire frame.
type Frame struct {
	Family  Family
	Opcode  byte
	Payload []byte // does not include the header
}

// Encode serializes a frame. The returned length always includes the header.
func Encode(family Family, opcode byte, payload []byte) []byte {
	total := HeaderSize + len(payload)
	buf := make([]byte, total)
	buf[0] = byte(family)
	buf[1] = opcode
	binary.LittleEndian.PutUint16(buf[2:4], uint16(total))
	copy(buf[4:], payload)
	return buf
}

// Decode consumes exactly one frame from the front of buf.
// Returns the decoded frame and the number of bytes consumed.
// A length field less than HeaderSize, or a length exceeding len(buf), is a
// protocol error: the caller must close the connection (spec.md §4.1).
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < HeaderSize {
		return Frame{}, 0, fmt.Errorf("wire: short buffer (%d bytes, need at least %d)", len(buf), HeaderSize)
	}

	length := int(binary.LittleEndian.Uint16(buf[2:4]))
	if length < HeaderSize {
		return Frame{}, 0, fmt.Errorf("wire: invalid frame length %d (< header size %d)", length, HeaderSize)
	}
	if length > len(buf) {
		return Frame{}, 0, fmt.Errorf("wire: frame length %d exceeds buffer %d", length, len(buf))
	}

	f := Frame{
		Family:  Family(buf[0]),
		Opcode:  buf[1],
		Payload: buf[4:length],
	}
	return f, length, nil
}
