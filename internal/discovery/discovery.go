// Package discovery implements the UDP LAN-discovery bus: SEARCHGAME /
// GAMEINFO / CREATEGAME / REFRESHGAME / DECREATEGAME datagrams, plus
// optional relay of unrecognized traffic to a forwarder (spec.md §4.3).
package discovery

import (
	"encoding/binary"
	"log/slog"
	"net"

	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/socket"
	"github.com/udisondev/aurago/internal/wire"
)

const standardGamePort = 6112

// LobbyView is the read-only slice of lobby state the discovery bus needs
// to answer SEARCHGAME (spec.md §4.3): the currently joinable lobby, or
// nil if none.
type LobbyView interface {
	CurrentLobby() *model.Game
	GameInfoStatString(g *model.Game) []byte
}

// Bus owns the UDP socket and optional forwarder relay.
type Bus struct {
	conn      *socket.UDPConn
	forwarder *net.UDPAddr

	lobby LobbyView
	log   *slog.Logger
}

// NewBus binds to addr and wires in the lobby view used to answer queries.
func NewBus(addr string, forwarder *net.UDPAddr, lobby LobbyView, log *slog.Logger) (*Bus, error) {
	conn, err := socket.ListenUDP(addr)
	if err != nil {
		return nil, err
	}
	return &Bus{conn: conn, forwarder: forwarder, lobby: lobby, log: log}, nil
}

// Close closes the underlying socket.
func (b *Bus) Close() error { return b.conn.Close() }

// Tick drains every currently pending datagram.
func (b *Bus) Tick() {
	for {
		dg, err := b.conn.Recv()
		if err != nil {
			b.log.Warn("discovery recv error", "err", err)
			return
		}
		if dg == nil {
			return
		}
		b.handle(dg)
	}
}

func (b *Bus) handle(dg *socket.Datagram) {
	if len(dg.Data) < 4 || dg.Data[0] != byte(wire.FamilyGame) {
		if b.forwarder != nil {
			b.relay(dg)
		}
		return
	}

	switch dg.Data[1] {
	case wire.OpSearchGame:
		b.handleSearchGame(dg)
	default:
		if b.forwarder != nil {
			b.relay(dg)
		}
	}
}

// handleSearchGame answers SEARCHGAME with a GAMEINFO datagram when a
// joinable lobby exists (spec.md §4.3). Requires length >= 16; the
// product ID and claimed game version are not checked, here or in the
// lobby's join-acceptance path.
func (b *Bus) handleSearchGame(dg *socket.Datagram) {
	if len(dg.Data) < 16 {
		return
	}
	g := b.lobby.CurrentLobby()
	if g == nil {
		return
	}

	stat := b.lobby.GameInfoStatString(g)
	reply := wire.Encode(wire.FamilyGame, wire.OpGameInfo, stat)

	if err := b.conn.SendTo(dg.From, reply); err != nil {
		b.log.Warn("discovery gameinfo reply failed", "err", err)
		return
	}

	if dg.From.Port != standardGamePort && socket.IsIPv4(dg.From) {
		alt := &net.UDPAddr{IP: dg.From.IP, Port: standardGamePort}
		if err := b.conn.SendTo(alt, reply); err != nil {
			b.log.Warn("discovery gameinfo multicast failed", "err", err)
		}
	}
}

// relay forwards unrecognized traffic to the configured forwarder, with a
// 4-byte pseudo-header: the low two octets of the source IPv4 address
// (zero for IPv6) and the little-endian source port. No game version is
// included.
func (b *Bus) relay(dg *socket.Datagram) {
	header := make([]byte, 4)
	if ip4 := dg.From.IP.To4(); ip4 != nil {
		copy(header[0:2], ip4[2:4]) // low two octets, matching the source's compact pseudo-header
	}
	binary.LittleEndian.PutUint16(header[2:4], uint16(dg.From.Port))

	payload := append(header, dg.Data...)
	if err := b.conn.SendTo(b.forwarder, payload); err != nil {
		b.log.Warn("discovery relay failed", "err", err)
	}
}

// EncodeDecreateGame builds a DECREATEGAME frame for a torn-down lobby, so
// the supervisor can broadcast it to any address it still tracks as having
// queried this game (spec.md §4.3).
func EncodeDecreateGame(hostCounter model.HostCounter) []byte {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(hostCounter))
	return wire.Encode(wire.FamilyGame, wire.OpDecreateGame, payload)
}
