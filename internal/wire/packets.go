package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/udisondev/aurago/internal/model"
)

// WireSlotSize is the fixed on-wire size of one slot entry (spec.md §6):
// UID, download-percent, status, computer-flag, team, color, race,
// computer-type, handicap.
const WireSlotSize = 9

// EncodeSlot writes one slot's 9-byte wire form.
func EncodeSlot(s model.Slot) []byte {
	computerType := s.AIDifficulty
	return []byte{
		s.UID,
		s.DownloadPct,
		byte(s.Status),
		boolByte(s.Computer),
		s.Team,
		s.Color,
		byte(s.Race),
		computerType,
		s.Handicap,
	}
}

// DecodeSlot parses one 9-byte slot entry.
func DecodeSlot(buf []byte) (model.Slot, error) {
	if len(buf) < WireSlotSize {
		return model.Slot{}, fmt.Errorf("wire: slot entry too short: %d bytes", len(buf))
	}
	return model.Slot{
		UID:          buf[0],
		DownloadPct:  buf[1],
		Status:       model.SlotStatus(buf[2]),
		Computer:     buf[3] != 0,
		Team:         buf[4],
		Color:        buf[5],
		Race:         model.RaceFlag(buf[6]),
		AIDifficulty: buf[7],
		Handicap:     buf[8],
	}, nil
}

// EncodeSlotTemplate writes every slot's wire form back to back.
func EncodeSlotTemplate(t model.SlotTemplate) []byte {
	out := make([]byte, 0, len(t)*WireSlotSize)
	for _, s := range t {
		out = append(out, EncodeSlot(s)...)
	}
	return out
}

// EncodeSlotInfoJoin builds the SLOTINFOJOIN payload sent to a freshly
// accepted joiner (spec.md §6): UID + port + external IP + slot array +
// random seed + layout style + player-slot count.
func EncodeSlotInfoJoin(uid uint8, port uint16, externalIP [4]byte, slots model.SlotTemplate, randomSeed uint32, layoutStyle byte, playerSlots uint8) []byte {
	var buf bytes.Buffer
	buf.WriteByte(uid)
	binary.Write(&buf, binary.LittleEndian, port)
	buf.Write(externalIP[:])
	buf.Write(EncodeSlotTemplate(slots))
	binary.Write(&buf, binary.LittleEndian, randomSeed)
	buf.WriteByte(layoutStyle)
	buf.WriteByte(playerSlots)
	return buf.Bytes()
}

// ReqJoin is the parsed REQJOIN payload (client -> host, spec.md §6).
type ReqJoin struct {
	HostCounter     uint32
	EntryKey        uint32
	Name            string
	InternalIP      [4]byte
}

// DecodeReqJoin parses a REQJOIN payload: 4-byte host-counter + 4-byte
// entry-key + null-terminated name + 1-byte internal-host-length + 4-byte
// internal IPv4 (big-endian on the wire).
func DecodeReqJoin(payload []byte) (ReqJoin, error) {
	if len(payload) < 8 {
		return ReqJoin{}, fmt.Errorf("wire: reqjoin payload too short: %d bytes", len(payload))
	}
	hc := binary.LittleEndian.Uint32(payload[0:4])
	entryKey := binary.LittleEndian.Uint32(payload[4:8])

	rest := payload[8:]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return ReqJoin{}, fmt.Errorf("wire: reqjoin name not null-terminated")
	}
	name := string(rest[:nul])
	rest = rest[nul+1:]

	if len(rest) < 1 {
		return ReqJoin{}, fmt.Errorf("wire: reqjoin missing internal-host-length")
	}
	rest = rest[1:] // internal-host-length, unused beyond the fixed 4-byte IPv4 that follows

	if len(rest) < 4 {
		return ReqJoin{}, fmt.Errorf("wire: reqjoin missing internal ip")
	}
	var ip [4]byte
	copy(ip[:], rest[:4])

	return ReqJoin{HostCounter: hc, EntryKey: entryKey, Name: name, InternalIP: ip}, nil
}

// ActionChunk is one player's contribution to an INCOMING_ACTION frame.
type ActionChunk struct {
	UID    uint8
	Action []byte
}

// EncodeIncomingAction builds INCOMING_ACTION's payload: 2-byte
// send-interval + 4-byte CRC + per-player chunks of (UID, length, bytes).
// CRC is computed over the concatenated chunk bytes, matching the source's
// simple integrity check (not cryptographic).
func EncodeIncomingAction(sendIntervalMS uint16, chunks []ActionChunk) []byte {
	var body bytes.Buffer
	for _, c := range chunks {
		body.WriteByte(c.UID)
		binary.Write(&body, binary.LittleEndian, uint16(len(c.Action)))
		body.Write(c.Action)
	}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, sendIntervalMS)
	binary.Write(&out, binary.LittleEndian, crc32Of(body.Bytes()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func crc32Of(b []byte) uint32 {
	var crc uint32 = 0xFFFFFFFF
	for _, by := range b {
		crc ^= uint32(by)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xEDB88320
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}

// GPSInit builds the GPS_INIT payload (server -> client at join): 2-byte
// reconnect port, 1-byte UID, 4-byte reconnect key, 1-byte empty-action
// budget (spec.md §6).
func GPSInit(reconnectPort uint16, uid uint8, reconnectKey uint32, emptyActionBudget uint8) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, reconnectPort)
	buf.WriteByte(uid)
	binary.Write(&buf, binary.LittleEndian, reconnectKey)
	buf.WriteByte(emptyActionBudget)
	return buf.Bytes()
}

// GPSReconnect is the parsed GPS_RECONNECT payload.
type GPSReconnect struct {
	UID             uint8
	ReconnectKey    uint32
	LastAckedPacket uint32
	GameID          uint32
	HasGameID       bool
}

// DecodeGPSReconnect parses GPS_RECONNECT: 1-byte UID, 4-byte key, 4-byte
// lastAckedPacket, optional trailing 4-byte game-id (spec.md §6).
func DecodeGPSReconnect(payload []byte) (GPSReconnect, error) {
	if len(payload) < 9 {
		return GPSReconnect{}, fmt.Errorf("wire: gps_reconnect payload too short: %d bytes", len(payload))
	}
	r := GPSReconnect{
		UID:             payload[0],
		ReconnectKey:    binary.LittleEndian.Uint32(payload[1:5]),
		LastAckedPacket: binary.LittleEndian.Uint32(payload[5:9]),
	}
	if len(payload) >= 13 {
		r.GameID = binary.LittleEndian.Uint32(payload[9:13])
		r.HasGameID = true
	}
	return r, nil
}

// GPSAck builds GPS_ACK(totalPacketsReceived).
func GPSAck(totalPacketsReceived uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, totalPacketsReceived)
	return buf
}

// GPSReject builds GPS_REJECT(reason).
func GPSReject(reason uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, reason)
	return buf
}

// CHAT_TO_HOST flag bytes distinguishing its sub-message types (spec.md §6).
const (
	ChatFlagMessage       byte = 0x10
	ChatFlagTeamChange    byte = 0x11
	ChatFlagColorChange   byte = 0x12
	ChatFlagRaceChange    byte = 0x13
	ChatFlagHandicap      byte = 0x14
	ChatFlagMessageExtra  byte = 0x20
)

// ChatToHost is the parsed CHAT_TO_HOST payload.
type ChatToHost struct {
	ToUIDs  []byte
	Flag    byte
	Message string // only set when Flag is ChatFlagMessage/ChatFlagMessageExtra
	Byte    byte   // the single data byte for team/color/race/handicap changes
}

// DecodeChatToHost parses CHAT_TO_HOST: 1-byte recipient count, that many
// UIDs, then a 1-byte flag whose meaning depends on its value (spec.md §6).
func DecodeChatToHost(payload []byte) (ChatToHost, error) {
	if len(payload) < 1 {
		return ChatToHost{}, fmt.Errorf("wire: chat_to_host payload empty")
	}
	count := int(payload[0])
	rest := payload[1:]
	if len(rest) < count+1 {
		return ChatToHost{}, fmt.Errorf("wire: chat_to_host payload too short for %d recipients", count)
	}
	c := ChatToHost{ToUIDs: append([]byte(nil), rest[:count]...), Flag: rest[count]}
	rest = rest[count+1:]

	switch c.Flag {
	case ChatFlagMessage:
		c.Message = string(bytes.TrimRight(rest, "\x00"))
	case ChatFlagMessageExtra:
		if len(rest) < 4 {
			return ChatToHost{}, fmt.Errorf("wire: chat_to_host extra-flags message missing 4-byte prefix")
		}
		c.Message = string(bytes.TrimRight(rest[4:], "\x00"))
	case ChatFlagTeamChange, ChatFlagColorChange, ChatFlagRaceChange, ChatFlagHandicap:
		if len(rest) < 1 {
			return ChatToHost{}, fmt.Errorf("wire: chat_to_host change message missing data byte")
		}
		c.Byte = rest[0]
	default:
		return ChatToHost{}, fmt.Errorf("wire: chat_to_host unknown flag 0x%02x", c.Flag)
	}
	return c, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
