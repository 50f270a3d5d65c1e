package lobby

import (
	"time"

	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/wire"
)

const maxActionFrameBytes = 1024 // size budget before an INCOMING_ACTION2 split

// tickPlaying runs the action-frame scheduler (spec.md §4.5): every
// latency milliseconds, unless play is paused or the game is waiting on
// laggers, emit an action frame and advance the sync counter.
func (l *Lobby) tickPlaying(now time.Time) {
	if l.pausedBy != 0 {
		return
	}
	if len(l.lagging) > 0 {
		return
	}

	interval := time.Duration(l.Game.LatencyMS) * time.Millisecond
	if now.Sub(l.lastActionFrameAt) < interval {
		return
	}
	l.emitActionFrame(now)

	if l.NonObserverLeft() {
		l.detectGameOver()
	}
}

// HandleOutgoingAction buffers one player's action for the next frame
// (spec.md §4.5).
func (l *Lobby) HandleOutgoingAction(uid uint8, action []byte) {
	l.pendingActions = append(l.pendingActions, wire.ActionChunk{UID: uid, Action: action})
}

func (l *Lobby) emitActionFrame(now time.Time) {
	chunks := l.pendingActions
	l.pendingActions = nil
	l.lastActionFrameAt = now
	l.Game.SyncCounter++
	for uid := range l.Game.Players {
		l.evaluateLag(uid)
	}

	payload := wire.EncodeIncomingAction(uint16(l.Game.LatencyMS), chunks)
	frame := wire.Encode(wire.FamilyGame, wire.OpIncomingAction, payload)

	if len(payload) > maxActionFrameBytes {
		split := maxActionFrameBytes
		head := wire.Encode(wire.FamilyGame, wire.OpIncomingAction, payload[:split])
		tail := wire.Encode(wire.FamilyGame, wire.OpIncomingAction2, payload[split:])
		l.broadcastAll(head)
		l.broadcastAll(tail)
		return
	}
	l.broadcastAll(frame)
}

// HandleKeepalive records a player's reported checksum for the current
// sync counter, clears that player's lag state, and checks for desync after
// every report; a sync index takes part once at least two players have
// reported it (spec.md §4.5, §8 P8).
func (l *Lobby) HandleKeepalive(uid uint8, checksum uint32) {
	p, ok := l.Game.Players[uid]
	if !ok {
		return
	}
	p.LastKeepaliveSync = l.Game.SyncCounter

	byUID, ok := l.syncChecksums[l.Game.SyncCounter]
	if !ok {
		byUID = make(map[uint8]uint32)
		l.syncChecksums[l.Game.SyncCounter] = byUID
	}
	byUID[uid] = checksum

	l.evaluateLag(uid)
	l.evaluateDesync()
}

func (l *Lobby) evaluateLag(uid uint8) {
	p := l.Game.Players[uid]
	behind := l.Game.SyncCounter - p.LastKeepaliveSync
	wasLagging := l.lagging[uid]
	isLagging := uint32(behind) >= l.Policy.LagThreshold

	if isLagging && !wasLagging {
		l.lagging[uid] = true
		l.broadcastAll(wire.Encode(wire.FamilyGame, wire.OpStartLag, []byte{uid}))
	} else if !isLagging && wasLagging {
		delete(l.lagging, uid)
		l.broadcastAll(wire.Encode(wire.FamilyGame, wire.OpStopLag, []byte{uid}))
	}
}

// evaluateDesync implements P8: a desync event fires once per game, the
// first time the newest desyncGraceFrames sync indices all hold mismatched
// checksums; later streaks are not reported.
func (l *Lobby) evaluateDesync() {
	if l.desyncReported || l.Policy.DesyncPolicy == model.DesyncNone {
		return
	}

	mismatchStreak := 0
	for i := l.Game.SyncCounter; i > 0 && mismatchStreak < desyncGraceFrames; i-- {
		byUID, ok := l.syncChecksums[i]
		if !ok || len(byUID) < 2 {
			break
		}
		if !allEqual(byUID) {
			mismatchStreak++
			continue
		}
		break
	}

	if mismatchStreak >= desyncGraceFrames {
		l.desyncReported = true
		l.log.Warn("desync detected", "sync_counter", l.Game.SyncCounter)
		if l.Policy.DesyncPolicy == model.DesyncDropBehind {
			l.dropLowestSyncPlayer()
		}
	}
}

func allEqual(m map[uint8]uint32) bool {
	var first uint32
	set := false
	for _, v := range m {
		if !set {
			first = v
			set = true
			continue
		}
		if v != first {
			return false
		}
	}
	return true
}

func (l *Lobby) dropLowestSyncPlayer() {
	var lowestUID uint8
	var lowestSync uint32 = ^uint32(0)
	for uid, p := range l.Game.Players {
		if p.LastKeepaliveSync < lowestSync {
			lowestSync = p.LastKeepaliveSync
			lowestUID = uid
		}
	}
	if lowestUID != 0 {
		l.kick(lowestUID, "desync drop-behind")
	}
}

// HandleDropReq implements the lag drop-vote rule: a >= 1/2+1 majority of
// non-lagging players drops every current lagger (spec.md §4.5).
func (l *Lobby) HandleDropReq(uid uint8) {
	if l.lagging[uid] {
		return
	}
	l.dropVotes[uid] = true

	nonLagging := 0
	for u := range l.Game.Players {
		if !l.lagging[u] {
			nonLagging++
		}
	}
	if nonLagging == 0 || len(l.dropVotes) < nonLagging/2+1 {
		return
	}

	for laggerUID := range l.lagging {
		l.kick(laggerUID, "dropped by majority vote")
	}
	l.lagging = make(map[uint8]bool)
	l.dropVotes = make(map[uint8]bool)
}

// HandlePause consumes one pause counter and stops the latency timer.
func (l *Lobby) HandlePause(uid uint8) bool {
	p, ok := l.Game.Players[uid]
	if !ok || p.PauseCount <= 0 || l.pausedBy != 0 {
		return false
	}
	p.PauseCount--
	l.pausedBy = uid
	return true
}

// HandleResume releases a pause held by uid.
func (l *Lobby) HandleResume(uid uint8) bool {
	if l.pausedBy != uid {
		return false
	}
	l.pausedBy = 0
	l.lastActionFrameAt = time.Now()
	return true
}

// HandleSave consumes one save counter and reports whether one was left
// (spec.md §4.5). It sends nothing itself.
func (l *Lobby) HandleSave(uid uint8) bool {
	p, ok := l.Game.Players[uid]
	if !ok || p.SaveCount <= 0 {
		return false
	}
	p.SaveCount--
	return true
}

// NonObserverLeft reports whether the game still has players worth
// checking for game-over (cheap guard before the full scan).
func (l *Lobby) NonObserverLeft() bool {
	return l.Game.NonObserverOccupiedCount() > 0
}

// detectGameOver implements spec.md §4.5's game-over rule.
func (l *Lobby) detectGameOver() {
	if l.Game.NonObserverOccupiedCount() >= 2 {
		return
	}
	l.Game.Phase = model.PhaseOver
	l.finishedRoster = make([]string, 0, len(l.Game.Players))
	for _, p := range l.Game.Players {
		l.finishedRoster = append(l.finishedRoster, p.DisplayName)
	}
	l.broadcastAll(wire.Encode(wire.FamilyGame, wire.OpGameOver, nil))
}
