package socket

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Datagram is one received UDP packet.
type Datagram struct {
	Data []byte
	From *net.UDPAddr
}

// UDPConn wraps a *net.UDPConn for non-blocking recv/send.
type UDPConn struct {
	conn *net.UDPConn
}

// ListenUDP opens a UDP socket bound to addr ("" host means all interfaces,
// matching the dual-stack v4/v6 behaviour described in spec.md §4).
func ListenUDP(addr string) (*UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("socket: resolve udp %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("socket: listen udp %s: %w", addr, err)
	}
	return &UDPConn{conn: conn}, nil
}

// Addr returns the bound local address.
func (u *UDPConn) Addr() net.Addr { return u.conn.LocalAddr() }

// Close closes the socket.
func (u *UDPConn) Close() error { return u.conn.Close() }

// Recv performs a non-blocking read. Returns (nil, nil) when nothing is
// currently pending.
func (u *UDPConn) Recv() (*Datagram, error) {
	if err := u.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, fmt.Errorf("socket: set udp read deadline: %w", err)
	}

	buf := make([]byte, 8192)
	n, from, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	return &Datagram{Data: buf[:n], From: from}, nil
}

// SendTo writes one datagram to addr.
func (u *UDPConn) SendTo(addr *net.UDPAddr, data []byte) error {
	if _, err := u.conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("socket: udp write to %s: %w", addr, err)
	}
	return nil
}

// IsIPv4 reports whether addr carries a routable IPv4 address (spec.md §4.3
// uses this to decide whether to additionally multicast a GAMEINFO reply to
// port 6112 on the sender's address).
func IsIPv4(addr *net.UDPAddr) bool {
	return addr != nil && addr.IP.To4() != nil
}
