package lobby

import (
	"time"

	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/wire"
)

// tickLoading advances the Loading phase (spec.md §4.5): every player must
// report GAMELOADED_SELF before the phase ends, or stragglers are kicked
// once loadTimeout elapses.
func (l *Lobby) tickLoading(now time.Time) {
	if now.Sub(l.Game.LoadStart) > loadTimeout {
		for uid, p := range l.Game.Players {
			if p.LoadFinishedAtTick == 0 {
				l.kick(uid, "load timeout")
			}
		}
	}

	if l.allLoaded() {
		l.Game.Phase = model.PhasePlaying
		l.lastActionFrameAt = now
	}
}

func (l *Lobby) allLoaded() bool {
	for _, p := range l.Game.Players {
		if p.LoadFinishedAtTick == 0 {
			return false
		}
	}
	return true
}

// HandleGameLoadedSelf forwards one player's load completion to everyone
// else as GAMELOADED_OTHERS (spec.md §4.5).
func (l *Lobby) HandleGameLoadedSelf(uid uint8, tick uint32) {
	p, ok := l.Game.Players[uid]
	if !ok || p.LoadFinishedAtTick != 0 {
		return
	}
	p.LoadFinishedAtTick = tick
	l.broadcastExcept(uid, wire.Encode(wire.FamilyGame, wire.OpGameLoadedOthers, []byte{uid}))
}

// kick forcibly removes a player with a logged reason; the socket is
// closed and the slot reopened.
func (l *Lobby) kick(uid uint8, reason string) {
	p, ok := l.Game.Players[uid]
	if !ok {
		return
	}
	l.log.Info("kicking player", "uid", uid, "reason", reason)
	if p.Conn != nil {
		p.Conn.Close()
	}
	delete(l.Game.Players, uid)
	for i, s := range l.Game.Slots {
		if s.UID == uid && s.Status == model.SlotOccupied {
			s.Status = model.SlotOpen
			s.UID = 0
			l.Game.Slots[i] = s
		}
	}
	l.broadcastSlotInfo()
}
