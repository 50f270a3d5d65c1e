package lobby

import (
	"time"

	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/wire"
)

// graceFor returns a player's reconnection grace window, basic or
// extended (spec.md §4.7).
func (l *Lobby) graceFor(p *model.Player) time.Duration {
	if p.GProxy == model.GProxyExtended {
		return l.Policy.GProxyExtendedGrace
	}
	return l.Policy.GProxyBasicGrace
}

// NoteDisconnect marks a player disconnected without immediately removing
// them when they previously advertised GProxy support (spec.md §4.7).
func (l *Lobby) NoteDisconnect(uid uint8, now time.Time) {
	p, ok := l.Game.Players[uid]
	if !ok {
		return
	}
	if p.GProxy == model.GProxyNone {
		l.kick(uid, "disconnected")
		return
	}
	p.DisconnectedAt = now
	p.Conn = nil
}

// QueueDuringGrace buffers an outbound frame in a disconnected player's
// replay queue instead of writing to a closed socket, advancing the same
// packet sequence counter a live send would (spec.md §4.7, §8 P4).
func (l *Lobby) QueueDuringGrace(uid uint8, frame []byte) {
	p, ok := l.Game.Players[uid]
	if !ok {
		return
	}
	p.ReplayBuffer = append(p.ReplayBuffer, frame)
	p.PacketsSent++
}

// Reconnect replays every buffered frame newer than lastAcked and resumes
// normal delivery (spec.md §4.7, §8 P4).
func (l *Lobby) Reconnect(uid uint8, lastAcked uint32) {
	p, ok := l.Game.Players[uid]
	if !ok {
		return
	}
	start := int(lastAcked) - int(p.PacketsSent) + len(p.ReplayBuffer)
	if start < 0 {
		start = 0
	}
	for i := start; i < len(p.ReplayBuffer); i++ {
		if p.Conn != nil {
			p.Conn.QueueWrite(p.ReplayBuffer[i])
		}
	}
	p.ReplayBuffer = nil
	p.DisconnectedAt = time.Time{}
	p.DisconnectedFor = 0

	if p.Conn != nil {
		p.Conn.QueueWrite(wire.Encode(wire.FamilyGPS, wire.OpGPSAck, wire.GPSAck(p.PacketsRecv)))
	}
}

// tickGProxy expires graces that have run out and sends the periodic
// GPS_ACK heartbeat to every reconnect-eligible player still connected
// (spec.md §4.7).
func (l *Lobby) tickGProxy(now time.Time) {
	for uid, p := range l.Game.Players {
		if p.GProxy == model.GProxyNone {
			continue
		}
		if !p.DisconnectedAt.IsZero() {
			if now.Sub(p.DisconnectedAt) > l.graceFor(p) {
				l.log.Info("gproxy grace expired", "uid", uid)
				delete(l.Game.Players, uid)
			}
			continue
		}
		if p.Conn == nil {
			continue
		}
		if now.Sub(l.gproxyLastAckAt) >= gproxyAckInterval {
			p.Conn.QueueWrite(wire.Encode(wire.FamilyGPS, wire.OpGPSAck, wire.GPSAck(p.PacketsRecv)))
		}
	}
	if now.Sub(l.gproxyLastAckAt) >= gproxyAckInterval {
		l.gproxyLastAckAt = now
	}
}
