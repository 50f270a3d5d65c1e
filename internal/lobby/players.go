package lobby

import (
	"encoding/binary"
	"time"

	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/wire"
)

// PollPlayers polls every connected player's socket, decodes whatever
// complete frames are buffered, and dispatches them to the matching handler
// (spec.md §4.5: CHAT_TO_HOST, MAPSIZE, PONG_TO_HOST, OUTGOING_ACTION,
// OUTGOING_KEEPALIVE, DROPREQ, LEAVEGAME). One malformed frame is a
// protocol error and closes the connection (spec.md §4.1, §9).
func (l *Lobby) PollPlayers(now time.Time) {
	for uid, p := range l.Game.Players {
		if p.Conn == nil {
			continue
		}
		if _, err := p.Conn.Poll(); err != nil {
			l.NoteDisconnect(uid, now)
			continue
		}

		dropped := false
		for {
			buf := p.Conn.Buffered()
			if len(buf) < wire.HeaderSize || int(binary.LittleEndian.Uint16(buf[2:4])) > len(buf) {
				break // not enough bytes yet for a full frame
			}
			f, n, err := wire.Decode(buf)
			if err != nil {
				l.kick(uid, "protocol error")
				dropped = true
				break
			}
			if n == 0 {
				break
			}
			p.Conn.Consume(n)
			p.PacketsRecv++
			l.dispatchFrame(uid, f, now)
		}
		if dropped {
			continue
		}

		if err := p.Conn.FlushWrite(); err != nil {
			l.NoteDisconnect(uid, now)
		}
	}
}

func (l *Lobby) dispatchFrame(uid uint8, f wire.Frame, now time.Time) {
	if f.Family != wire.FamilyGame && f.Family != wire.FamilyGPS {
		return
	}

	switch f.Opcode {
	case wire.OpChatToHost:
		l.handleChatToHost(uid, f.Payload)
	case wire.OpMapSize:
		if len(f.Payload) >= 4 {
			acked := uint32(f.Payload[len(f.Payload)-4])<<0 |
				uint32(f.Payload[len(f.Payload)-3])<<8 |
				uint32(f.Payload[len(f.Payload)-2])<<16 |
				uint32(f.Payload[len(f.Payload)-1])<<24
			l.HandleMapSizeUpdate(uid, acked)
		}
	case wire.OpPongToHost:
		sentAt := l.nextPingAt.Add(-pingInterval)
		rtt := now.Sub(sentAt)
		if rtt < 0 {
			rtt = 0
		}
		l.RecordPong(uid, rtt, l.PingDuringDownloadDiscarded(uid, now))
	case wire.OpOutgoingAction:
		l.HandleOutgoingAction(uid, f.Payload)
	case wire.OpOutgoingKeepalive:
		if len(f.Payload) >= 4 {
			checksum := uint32(f.Payload[0]) | uint32(f.Payload[1])<<8 | uint32(f.Payload[2])<<16 | uint32(f.Payload[3])<<24
			l.HandleKeepalive(uid, checksum)
		}
	case wire.OpDropReq:
		l.HandleDropReq(uid)
	case wire.OpLeaveGame:
		if l.Game.Phase == model.PhaseCountdown {
			l.LeaveDuringCountdown(uid)
		} else {
			l.kick(uid, "left the game")
		}
	case wire.OpGameLoadedSelf:
		l.HandleGameLoadedSelf(uid, l.Game.SyncCounter+1)
	case wire.OpGPSAck:
		// keepalive-only heartbeat from a GProxy client; no state change required.
	}
}

// handleChatToHost routes CHAT_TO_HOST by its sub-message flag: a chat
// message is rebroadcast, the four slot-attribute changes are applied to
// the sender's own slot (spec.md §4.5, §6).
func (l *Lobby) handleChatToHost(uid uint8, payload []byte) {
	c, err := wire.DecodeChatToHost(payload)
	if err != nil {
		return
	}

	switch c.Flag {
	case wire.ChatFlagMessage, wire.ChatFlagMessageExtra:
		l.relayChat(uid, c.ToUIDs, c.Message)
	case wire.ChatFlagTeamChange:
		if l.Game.Map.Flags&model.FlagTeamsCustomForces != 0 {
			return
		}
		l.applySlotAttr(uid, func(s *model.Slot) { s.Team = c.Byte })
	case wire.ChatFlagColorChange:
		l.applySlotAttr(uid, func(s *model.Slot) { s.Color = c.Byte })
	case wire.ChatFlagRaceChange:
		l.applySlotAttr(uid, func(s *model.Slot) { s.Race = model.RaceFlag(c.Byte) })
	case wire.ChatFlagHandicap:
		l.applySlotAttr(uid, func(s *model.Slot) { s.Handicap = c.Byte })
	}
}

func (l *Lobby) relayChat(uid uint8, toUIDs []byte, message string) {
	payload := append([]byte{uid}, []byte(message)...)
	frame := wire.Encode(wire.FamilyGame, wire.OpChatFromHost, payload)
	for _, to := range toUIDs {
		if p, ok := l.Game.Players[to]; ok && p.Conn != nil {
			p.Conn.QueueWrite(frame)
		}
	}
}

func (l *Lobby) applySlotAttr(uid uint8, mutate func(*model.Slot)) {
	idx, ok := l.Game.Slots.IndexOfUID(uid)
	if !ok || l.Game.Phase != model.PhaseLobby {
		return
	}
	slot := l.Game.Slots[idx]
	if l.Game.Map.Flags&model.FlagTeamsFixed != 0 {
		return
	}
	mutate(&slot)
	l.Game.Slots[idx] = slot
	l.broadcastSlotInfo()
}
