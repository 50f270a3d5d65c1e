// Package pregate accepts TCP connections on the hosted game port and
// classifies each into one of the patterns described in spec.md §4.4
// before handing it off to the lobby or an existing game's player. A
// UDP-tunnel or VLAN connection is acknowledged and kept pending; its
// later frames are not handed to the discovery bus.
package pregate

import (
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/socket"
	"github.com/udisondev/aurago/internal/wire"
)

// Outcome is what a classification attempt produced for one tick.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePromoted
	OutcomeReconnected
	OutcomeUDPTunnel
	OutcomeVLAN
	OutcomeRejected
	OutcomeExpired
)

// Lobby is the subset of lobby behaviour the pre-gate needs to attempt a
// join (spec.md §4.4 case 1).
type Lobby interface {
	TryAccept(join wire.ReqJoin, conn *socket.TCPConn) error
	CurrentHostCounterSeq() (uint32, bool)
}

// Games is the subset of supervisor behaviour needed to reattach a
// reconnecting GProxy client to its player across every running game
// (spec.md §4.4 case 2, §4.7, §8 P4).
type Games interface {
	Reconnect(uid uint8, key uint32, lastAcked uint32, conn *socket.TCPConn) bool
}

// Gate owns every PendingConnection awaiting classification.
type Gate struct {
	pending []*model.PendingConnection

	lobby Lobby
	games Games
	log   *slog.Logger

	udpTunnelEnabled bool
}

// NewGate constructs a Gate wired to the current lobby and game set.
func NewGate(lobby Lobby, games Games, udpTunnelEnabled bool, log *slog.Logger) *Gate {
	return &Gate{lobby: lobby, games: games, udpTunnelEnabled: udpTunnelEnabled, log: log}
}

// Accept enqueues a freshly-accepted connection for classification.
func (g *Gate) Accept(conn *socket.TCPConn) {
	g.pending = append(g.pending, model.NewPendingConnection(conn))
}

// Tick polls every pending connection, classifies what it can, and drops
// anything that both failed to classify and exceeded its arrival deadline.
func (g *Gate) Tick(now time.Time) {
	kept := g.pending[:0]
	for _, p := range g.pending {
		if _, err := p.Conn.Poll(); err != nil {
			p.Conn.Close()
			continue
		}

		outcome := g.classify(p)
		switch outcome {
		case OutcomePromoted, OutcomeReconnected:
			continue // ownership transferred; drop from the pre-gate
		case OutcomeUDPTunnel, OutcomeVLAN:
			// Stays pending with no arrival deadline. Later frames are not
			// forwarded anywhere: they go through classify again like a first
			// frame, so anything but the four opening patterns closes it.
			kept = append(kept, p)
			continue
		case OutcomeRejected:
			p.Conn.Close()
			continue
		}

		if p.Expired(now) {
			p.Conn.Close()
			continue
		}
		kept = append(kept, p)
	}
	g.pending = kept
}

// classify matches spec.md §4.4's ordered pattern list against whatever
// bytes are currently buffered on this connection.
func (g *Gate) classify(p *model.PendingConnection) Outcome {
	buf := p.Conn.Buffered()
	if len(buf) < wire.HeaderSize || int(binary.LittleEndian.Uint16(buf[2:4])) > len(buf) {
		return OutcomeNone
	}

	f, n, err := wire.Decode(buf)
	if err != nil {
		return OutcomeRejected
	}
	if n == 0 {
		return OutcomeNone
	}

	switch {
	case f.Family == wire.FamilyGame && f.Opcode == wire.OpReqJoin && len(f.Payload) >= 8:
		return g.classifyReqJoin(p, f)
	case f.Family == wire.FamilyGPS && f.Opcode == wire.OpGPSReconnect && len(f.Payload) >= 9:
		p.Conn.Consume(n)
		return g.classifyReconnect(p, f)
	case f.Family == wire.FamilyGPS && f.Opcode == wire.OpGPSInitUDPSyn && len(f.Payload) == 0:
		p.Conn.Consume(n)
		return g.classifyUDPSyn(p)
	case f.Family == wire.FamilyVLAN && f.Opcode == 0xFF:
		p.Conn.Consume(n)
		p.Kind = model.PendingVLAN
		return OutcomeVLAN
	default:
		return OutcomeRejected
	}
}

func (g *Gate) classifyReqJoin(p *model.PendingConnection, f wire.Frame) Outcome {
	join, err := wire.DecodeReqJoin(f.Payload)
	if err != nil {
		return OutcomeRejected
	}
	seq, ok := g.lobby.CurrentHostCounterSeq()
	if !ok || join.HostCounter&0x00FFFFFF != seq {
		// Wrong game: silently close, no REJECTJOIN (spec.md §8 scenario 2).
		return OutcomeRejected
	}
	if err := g.lobby.TryAccept(join, p.Conn); err != nil {
		g.log.Debug("lobby rejected join", "name", join.Name, "err", err)
		return OutcomeRejected
	}
	return OutcomePromoted
}

func (g *Gate) classifyReconnect(p *model.PendingConnection, f wire.Frame) Outcome {
	r, err := wire.DecodeGPSReconnect(f.Payload)
	if err != nil {
		return OutcomeRejected
	}
	if !g.games.Reconnect(r.UID, r.ReconnectKey, r.LastAckedPacket, p.Conn) {
		p.Conn.QueueWrite(wire.Encode(wire.FamilyGPS, wire.OpGPSReject, wire.GPSReject(wire.GPSRejectNotFound)))
		p.Conn.FlushWrite()
		return OutcomeRejected
	}
	return OutcomeReconnected
}

func (g *Gate) classifyUDPSyn(p *model.PendingConnection) Outcome {
	if !g.udpTunnelEnabled {
		return OutcomeRejected
	}
	p.Conn.QueueWrite(wire.Encode(wire.FamilyGPS, wire.OpGPSUDPAck, nil))
	p.Conn.FlushWrite()
	p.Kind = model.PendingUDPTunnel
	return OutcomeUDPTunnel
}
