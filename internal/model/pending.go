package model

import (
	"time"

	"github.com/udisondev/aurago/internal/socket"
)

// PendingKind classifies a freshly-accepted TCP connection before its first
// frame arrives and decides which family it belongs to (spec.md §4.4).
type PendingKind int

const (
	PendingUnknown PendingKind = iota
	PendingUDPTunnel
	PendingPromotedPlayer
	PendingKickedPlayer
	PendingVLAN
)

// pendingArrivalDeadline bounds how long an accepted socket may sit with no
// recognizable first frame before the supervisor closes it (spec.md §4.4:
// "~5 seconds").
const pendingArrivalDeadline = 5 * time.Second

// PendingConnection is a TCP socket accepted on the host port but not yet
// classified into realm/game/GProxy/VLAN handling.
type PendingConnection struct {
	Conn *socket.TCPConn

	Kind PendingKind

	AcceptedAt time.Time

	// AdoptedGameHostCounter set once classification determines which game
	// this socket belongs to (promoted/kicked-player, VLAN relay).
	AdoptedGameHostCounter HostCounter
}

// NewPendingConnection wraps a freshly-accepted socket.
func NewPendingConnection(conn *socket.TCPConn) *PendingConnection {
	return &PendingConnection{
		Conn:       conn,
		Kind:       PendingUnknown,
		AcceptedAt: time.Now(),
	}
}

// Expired reports whether the classification deadline has passed with no
// recognized opening frame.
func (p *PendingConnection) Expired(now time.Time) bool {
	return now.Sub(p.AcceptedAt) > pendingArrivalDeadline
}
