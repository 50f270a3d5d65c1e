// Package lobby is the core state machine: slot allocation, map transfer,
// load synchronization, action-frame fan-out, lag handling, and GProxy
// reconnection (spec.md §4.5-§4.7). At most one Lobby is ever in
// model.PhaseLobby/Countdown at a time; once a Lobby moves past Countdown
// it behaves purely as a running Game and a new Lobby may be created.
package lobby

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/socket"
	"github.com/udisondev/aurago/internal/store"
	"github.com/udisondev/aurago/internal/wire"
)

const (
	pingInterval       = 5 * time.Second
	minRTTSamples      = 3
	countdownDelay     = 5 * time.Second
	loadTimeout        = 60 * time.Second
	desyncGraceFrames  = 5
	gproxyAckInterval  = 10 * time.Second
)

// Policy bundles the configured knobs that vary lobby behaviour
// (spec.md §4.5, §4.6, §4.7, §9 strict-version-check open question).
type Policy struct {
	AutoStartQuorum     float64
	ReadyMode           model.ReadyMode
	CountdownInterrupts bool
	LagThreshold        uint32
	DesyncPolicy        model.DesyncPolicy
	StrictVersionCheck  bool
	LiteralRTT          bool

	MaxUploadSizeKB   int
	MaxUploadSpeedKB  int
	MaxParallelParts  int
	DownloadsEnabled  bool

	GProxyBasicGrace    time.Duration
	GProxyExtendedGrace time.Duration
}

// Store is the subset of the persistence collaborator the lobby consults
// directly (bans, moderator checks), spec.md §5 supplemented features.
type Store interface {
	IsBanned(name, server string) (*store.BanRecord, bool)
	IsModerator(name, server string) bool
}

// Lobby drives one Game through every phase.
type Lobby struct {
	Game   *model.Game
	Policy Policy
	Bans   Store

	log *slog.Logger

	nextPingAt time.Time

	countdownDeadline time.Time

	lastActionFrameAt time.Time
	pendingActions    []wire.ActionChunk
	syncChecksums     map[uint32]map[uint8]uint32 // sync counter -> uid -> checksum
	desyncReported    bool

	lagging        map[uint8]bool
	dropVotes      map[uint8]bool
	pausedBy       uint8 // uid currently holding the pause, 0 = none

	downloads map[uint8]*downloadState

	gproxyLastAckAt time.Time

	reservedNames []string

	finishedRoster []string // snapshotted player names at the instant the game ended
}

// FinishedRoster returns the player names present at the instant the game
// transitioned to PhaseOver, or nil if it hasn't ended yet (spec.md §5:
// game-history recording needs the roster before stragglers finish leaving).
func (l *Lobby) FinishedRoster() []string {
	return l.finishedRoster
}

// New constructs a Lobby over an already-created Game.
func New(g *model.Game, policy Policy, bans Store, log *slog.Logger) *Lobby {
	return &Lobby{
		Game:          g,
		Policy:        policy,
		Bans:          bans,
		log:           log,
		syncChecksums: make(map[uint32]map[uint8]uint32),
		lagging:       make(map[uint8]bool),
		dropVotes:     make(map[uint8]bool),
		downloads:     make(map[uint8]*downloadState),
	}
}

// CurrentHostCounterSeq implements pregate.Lobby.
func (l *Lobby) CurrentHostCounterSeq() (uint32, bool) {
	if l.Game == nil || l.Game.Phase != model.PhaseLobby {
		return 0, false
	}
	return l.Game.HostCounter.Seq(), true
}

// TryAccept validates and admits a joining player (spec.md §4.5).
func (l *Lobby) TryAccept(join wire.ReqJoin, conn *socket.TCPConn) error {
	if l.Game.Phase != model.PhaseLobby {
		return l.rejectAndClose(conn, wire.RejectStarted)
	}

	name := model.SanitizeName(join.Name)
	if len(name) < 1 || len(name) > 15 {
		return l.rejectAndClose(conn, wire.RejectWrongPassword)
	}
	for _, p := range l.Game.Players {
		if strings.EqualFold(p.DisplayName, name) {
			return l.rejectAndClose(conn, wire.RejectWrongPassword)
		}
	}
	if l.Bans != nil {
		if rec, banned := l.Bans.IsBanned(name, l.realmTag()); banned {
			l.log.Info("rejected banned player", "name", name, "reason", rec.Reason)
			return l.rejectAndClose(conn, wire.RejectWrongPassword)
		}
	}

	isReserved := l.isReserved(name)
	observer := false
	slotIdx, ok := l.Game.Slots.FirstOpenSlot(l.Game.NumTeams())
	if !ok {
		if slotIdx, ok = l.Game.Slots.FirstOpenObserverSlot(); ok {
			observer = true
		} else {
			return l.rejectAndClose(conn, wire.RejectFull)
		}
	}

	uid, ok := l.Game.NextFreeUID(24)
	if !ok {
		return l.rejectAndClose(conn, wire.RejectFull)
	}

	player := model.NewPlayer(uid, name, conn, -1)
	player.Observer = observer
	player.Reserved = isReserved
	l.Game.Players[uid] = player

	color, _ := l.Game.Slots.NextFreeColor()
	slot := l.Game.Slots[slotIdx]
	slot.Status = model.SlotOccupied
	slot.UID = uid
	if !observer {
		slot.Color = color
	}
	l.Game.Slots[slotIdx] = slot

	conn.QueueWrite(wire.Encode(wire.FamilyGame, wire.OpSlotInfoJoin,
		wire.EncodeSlotInfoJoin(uid, l.Game.Port, join.InternalIP, l.Game.Slots, 0, 0, uint8(len(l.Game.Slots)))))
	conn.QueueWrite(wire.Encode(wire.FamilyGPS, wire.OpGPSInit,
		wire.GPSInit(l.Game.Port, uid, player.ReconnectKey, 4)))
	conn.QueueWrite(wire.Encode(wire.FamilyGame, wire.OpPlayerInfo, []byte{model.VirtualHostUID}))

	l.broadcastSlotInfo()
	l.broadcastExcept(uid, wire.Encode(wire.FamilyGame, wire.OpPlayerInfo, []byte{uid}))

	return nil
}

func (l *Lobby) rejectAndClose(conn *socket.TCPConn, reason byte) error {
	conn.QueueWrite(wire.Encode(wire.FamilyGame, wire.OpRejectJoin, []byte{reason}))
	conn.FlushWrite()
	conn.Close()
	return fmt.Errorf("lobby: join rejected, reason %d", reason)
}

func (l *Lobby) isReserved(name string) bool {
	for _, r := range l.reservedNames {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

func (l *Lobby) realmTag() string {
	if l.Game.OwnerRealm < 0 {
		return "lan"
	}
	return fmt.Sprintf("realm_%d", l.Game.OwnerRealm)
}

// GameInfoStatString implements discovery.LobbyView.
func (l *Lobby) GameInfoStatString(g *model.Game) []byte {
	raw := []byte(g.Name)
	return wire.EncodeStatString(raw)
}

// CurrentLobby implements discovery.LobbyView: returns this lobby's game
// only while it is still joinable.
func (l *Lobby) CurrentLobby() *model.Game {
	if l.Game.Phase == model.PhaseLobby {
		return l.Game
	}
	return nil
}

// Tick advances whichever phase the game is currently in.
func (l *Lobby) Tick(now time.Time) {
	switch l.Game.Phase {
	case model.PhaseLobby:
		l.tickLobby(now)
	case model.PhaseCountdown:
		l.tickCountdown(now)
	case model.PhaseLoading:
		l.tickLoading(now)
	case model.PhasePlaying:
		l.tickPlaying(now)
	}
	l.tickGProxy(now)
}

func (l *Lobby) tickLobby(now time.Time) {
	if now.After(l.nextPingAt) {
		l.pingAll(now)
		l.nextPingAt = now.Add(pingInterval)
	}
	l.tickDownloads(now)

	if l.shouldAutoStart() {
		l.StartCountdown(now)
	}
}

func (l *Lobby) pingAll(now time.Time) {
	payload := make([]byte, 4)
	for _, p := range l.Game.Players {
		if p.Conn != nil {
			p.Conn.QueueWrite(wire.Encode(wire.FamilyGame, wire.OpPingFromHost, payload))
		}
	}
}

// RecordPong handles PONG_TO_HOST, sampling RTT (spec.md §4.5).
func (l *Lobby) RecordPong(uid uint8, rtt time.Duration, duringDownload bool) {
	p, ok := l.Game.Players[uid]
	if !ok || duringDownload {
		return
	}
	if !l.Policy.LiteralRTT {
		rtt /= 2
	}
	p.RecordRTT(rtt)
}

func (l *Lobby) shouldAutoStart() bool {
	total, ready := 0, 0
	for _, p := range l.Game.Players {
		if p.Observer {
			continue
		}
		total++
		if l.isReady(p) {
			ready++
		}
	}
	if total == 0 {
		return false
	}
	return float64(ready)/float64(total) >= l.Policy.AutoStartQuorum
}

func (l *Lobby) isReady(p *model.Player) bool {
	switch l.Policy.ReadyMode {
	case model.ReadyExplicit:
		return p.Ready
	case model.ReadyExpectRace:
		return p.DownloadPct == 100 && p.Ready
	default:
		return p.DownloadPct == 100
	}
}

// StartCountdown transitions Lobby -> Countdown (spec.md §4.5).
func (l *Lobby) StartCountdown(now time.Time) {
	l.Game.Phase = model.PhaseCountdown
	l.Game.CountdownStart = now
	l.countdownDeadline = now.Add(countdownDelay)
	l.broadcastAll(wire.Encode(wire.FamilyGame, wire.OpCountdownStart, nil))
}

func (l *Lobby) tickCountdown(now time.Time) {
	if now.Before(l.countdownDeadline) {
		return
	}
	l.broadcastAll(wire.Encode(wire.FamilyGame, wire.OpCountdownEnd, nil))
	l.Game.Phase = model.PhaseLoading
	l.Game.LoadStart = now
}

// LeaveDuringCountdown implements spec.md §8 scenario 3: a player leaving
// mid-countdown is always removed, and additionally interrupts the
// countdown back to Lobby when the configured policy says countdowns are
// interruptable.
func (l *Lobby) LeaveDuringCountdown(uid uint8) {
	l.kick(uid, "left during countdown")
	if l.Policy.CountdownInterrupts {
		l.Game.Phase = model.PhaseLobby
		l.broadcastAll(wire.Encode(wire.FamilyGame, wire.OpPlayerLeaveOthers, []byte{uid}))
	}
}

func (l *Lobby) broadcastAll(frame []byte) {
	for uid, p := range l.Game.Players {
		switch {
		case p.Conn != nil:
			p.Conn.QueueWrite(frame)
			p.PacketsSent++
		case p.GProxy != model.GProxyNone && !p.DisconnectedAt.IsZero():
			l.QueueDuringGrace(uid, frame)
		}
	}
}

func (l *Lobby) broadcastExcept(uid uint8, frame []byte) {
	for other, p := range l.Game.Players {
		if other == uid {
			continue
		}
		switch {
		case p.Conn != nil:
			p.Conn.QueueWrite(frame)
			p.PacketsSent++
		case p.GProxy != model.GProxyNone && !p.DisconnectedAt.IsZero():
			l.QueueDuringGrace(other, frame)
		}
	}
}

func (l *Lobby) broadcastSlotInfo() {
	l.broadcastAll(wire.Encode(wire.FamilyGame, wire.OpSlotInfo, wire.EncodeSlotTemplate(l.Game.Slots)))
}
