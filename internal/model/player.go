package model

import (
	"strings"
	"time"

	"github.com/udisondev/aurago/internal/socket"
)

// GProxyLevel is how much of the GProxy reconnection protocol a connected
// client supports (spec.md §4.7).
type GProxyLevel int

const (
	GProxyNone GProxyLevel = iota
	GProxyBasic
	GProxyExtended
)

// rttWeights are applied newest-to-oldest over the last 6 RTT samples when
// computing a player's displayed ping (spec.md §4.5).
var rttWeights = [6]int{4, 3, 2, 1, 1, 1}

const rttSampleCount = 6

// defaultSaveCount / defaultPauseCount are the number of /save and /pause
// uses a non-owner player gets per game (spec.md §4.5).
const (
	defaultSaveCount  = 3
	defaultPauseCount = 3
)

// Player is one seat in a Game, live for as long as its TCP connection (or
// its GProxy grace window) is open (spec.md §3).
type Player struct {
	UID uint8

	DisplayName string // control characters stripped/censored on join

	Conn       *socket.TCPConn
	InternalIP [4]byte
	ExternalIP [4]byte

	JoiningRealm int // index into configured realms, -1 for LAN/direct

	Verified       bool
	Observer       bool
	PowerObserver  bool
	Ready          bool
	Reserved       bool
	Owner          bool

	PacketsSent uint32
	PacketsRecv uint32

	SendQueue [][]byte

	rttSamples []time.Duration // ring buffer, most recent first, len <= rttSampleCount

	ChecksumQueue []uint32 // per-frame map checksums awaiting ack in the load phase

	DownloadPct uint8 // 0..100 during map transfer

	LoadFinishedAtTick uint32 // tick at which GAMELOADED was received, 0 = still loading

	LastKeepaliveSync uint32 // sync counter value of the last keepalive this player acked

	PauseCount int
	SaveCount  int

	ReconnectKey uint32

	GProxy        GProxyLevel
	ReplayBuffer  [][]byte // buffered outgoing frames during a GProxy grace window

	DisconnectedAt  time.Time
	DisconnectedFor time.Duration // accumulated disconnected time across reconnects
}

// NewPlayer constructs a Player with default pause/save counts and a
// sanitized display name.
func NewPlayer(uid uint8, rawName string, conn *socket.TCPConn, joiningRealm int) *Player {
	return &Player{
		UID:          uid,
		DisplayName:  SanitizeName(rawName),
		Conn:         conn,
		JoiningRealm: joiningRealm,
		PauseCount:   defaultPauseCount,
		SaveCount:    defaultSaveCount,
	}
}

// SanitizeName replaces control characters and strips leading/trailing
// whitespace from a client-supplied display name (spec.md §4.4: "control
// characters in the player name are censored, not rejected").
func SanitizeName(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < 0x20 || r == 0x7F {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// RecordRTT pushes a new round-trip sample, keeping at most rttSampleCount,
// newest first.
func (p *Player) RecordRTT(d time.Duration) {
	p.rttSamples = append([]time.Duration{d}, p.rttSamples...)
	if len(p.rttSamples) > rttSampleCount {
		p.rttSamples = p.rttSamples[:rttSampleCount]
	}
}

// Ping returns the weighted-average RTT across recorded samples (spec.md
// §4.5: weights 4:3:2:1:1:1, newest to oldest). Returns 0 if no samples.
func (p *Player) Ping() time.Duration {
	if len(p.rttSamples) == 0 {
		return 0
	}
	var total time.Duration
	var weightSum int
	for i, s := range p.rttSamples {
		w := rttWeights[i]
		total += s * time.Duration(w)
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return total / time.Duration(weightSum)
}

// IsLagging reports whether this player is the reason the game clock is
// being held (spec.md §4.5 lag handling): it hasn't acked the sync counter
// the rest of the game is waiting on.
func (p *Player) IsLagging(currentSync uint32) bool {
	return p.LastKeepaliveSync < currentSync
}

// CanReconnect reports whether a disconnected player is still inside its
// GProxy grace window (spec.md §4.7).
func (p *Player) CanReconnect(now time.Time, grace time.Duration) bool {
	if p.GProxy == GProxyNone {
		return false
	}
	if p.DisconnectedAt.IsZero() {
		return false
	}
	return now.Sub(p.DisconnectedAt) <= grace
}
