package model

import (
	"time"

	"github.com/udisondev/aurago/internal/socket"
)

// RealmPhase is the connection state machine for one realm session
// (spec.md §4.2).
type RealmPhase int

const (
	RealmDisconnected RealmPhase = iota
	RealmConnecting
	RealmAuthenticating
	RealmLoggingOn
	RealmJoiningChannel
	RealmConnected
)

func (p RealmPhase) String() string {
	switch p {
	case RealmDisconnected:
		return "disconnected"
	case RealmConnecting:
		return "connecting"
	case RealmAuthenticating:
		return "authenticating"
	case RealmLoggingOn:
		return "logging-on"
	case RealmJoiningChannel:
		return "joining-channel"
	case RealmConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// OutboundPriority tags queued chat/game-list traffic so the flood-quota
// scheduler in internal/realm can apply the per-tag rules from spec.md §4.2.
type OutboundPriority int

const (
	PriorityDefault OutboundPriority = iota
	PriorityHigh
	PriorityChatBlocking
	PriorityGameList
	PriorityGameRefresh
)

// OutboundMessage is one queued realm packet awaiting its turn under the
// flood-immunity-gated rate limiter.
type OutboundMessage struct {
	Priority OutboundPriority
	Payload  []byte
	QueuedAt time.Time
}

// initialBackoff / backoff doubling ceiling, per spec.md §4.2: "reconnect
// backoff starts at 45 seconds and doubles up to a configured ceiling".
const initialBackoffSecs = 45

// RealmSession is the live connection state for one configured realm
// (spec.md §3, §4.2).
type RealmSession struct {
	Index int // position in config.Bot.Realms

	Host     string
	Port     uint16
	Username string
	Password string

	CommandPrefix string
	FloodImmune   bool
	MaxBackoffSecs int

	Conn  *socket.TCPConn
	Phase RealmPhase

	backoffSecs int
	nextDialAt  time.Time

	Outbound []OutboundMessage

	LastGameListQueryAt time.Time
	GameListIntervalSecs int

	CurrentChannel string

	Friends []string
	Clan    []string

	CachedNickname string
}

// NewRealmSession seeds a session at its initial backoff.
func NewRealmSession(index int, host string, port uint16, username, password, prefix string, floodImmune bool, maxBackoff, gameListInterval int) *RealmSession {
	return &RealmSession{
		Index:                index,
		Host:                 host,
		Port:                 port,
		Username:             username,
		Password:             password,
		CommandPrefix:        prefix,
		FloodImmune:          floodImmune,
		MaxBackoffSecs:       maxBackoff,
		Phase:                RealmDisconnected,
		backoffSecs:          initialBackoffSecs,
		GameListIntervalSecs: gameListInterval,
	}
}

// ReadyToDial reports whether the backoff window has elapsed.
func (r *RealmSession) ReadyToDial(now time.Time) bool {
	return r.Phase == RealmDisconnected && !now.Before(r.nextDialAt)
}

// NoteDialFailure doubles the backoff (capped at MaxBackoffSecs) and arms
// the next retry time.
func (r *RealmSession) NoteDialFailure(now time.Time) {
	r.Phase = RealmDisconnected
	r.nextDialAt = now.Add(time.Duration(r.backoffSecs) * time.Second)
	r.backoffSecs *= 2
	if r.MaxBackoffSecs > 0 && r.backoffSecs > r.MaxBackoffSecs {
		r.backoffSecs = r.MaxBackoffSecs
	}
}

// NoteConnected resets the backoff after a successful logon (spec.md §4.2:
// a healthy session forgets prior failures).
func (r *RealmSession) NoteConnected() {
	r.backoffSecs = initialBackoffSecs
}

// Enqueue appends an outbound message, tagged with its scheduling priority.
func (r *RealmSession) Enqueue(priority OutboundPriority, payload []byte) {
	r.Outbound = append(r.Outbound, OutboundMessage{
		Priority: priority,
		Payload:  payload,
		QueuedAt: time.Now(),
	})
}

// DueForGameListQuery reports whether the periodic game-list refresh
// interval has elapsed (spec.md §4.2).
func (r *RealmSession) DueForGameListQuery(now time.Time) bool {
	if r.GameListIntervalSecs <= 0 {
		return false
	}
	return now.Sub(r.LastGameListQueryAt) >= time.Duration(r.GameListIntervalSecs)*time.Second
}
