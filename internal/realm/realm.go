// Package realm drives one TCP session per configured PvPGN-compatible
// chat server: connect-with-backoff, challenge/response logon, channel
// join, flood-quota-bounded outbound queue, and chat-event parsing
// (spec.md §4.2).
package realm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/udisondev/aurago/internal/handshake"
	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/socket"
	"github.com/udisondev/aurago/internal/wire"
)

// dialTimeout is the hard timeout for the initial TCP connect (spec.md §5).
const dialTimeout = 10 * time.Second

// idleTimeout closes a realm connection with no traffic for this long.
const idleTimeout = 60 * time.Second

// packetExpiry drops queued outbound packets older than this (spec.md §4.2).
const packetExpiry = 30 * time.Second

// maxNonPriorityQueue is the queue depth above which non-priority packets
// are dropped for non-flood-immune realms (spec.md §4.2).
const maxNonPriorityQueue = 20

// ChatEvent is a parsed SID_CHATEVENT delivered to callers (spec.md §4.2).
type ChatEvent struct {
	ID       wire.ChatEventID
	User     string
	Text     string
}

// Dispatcher routes a parsed prefix-command whisper to the bot's command
// layer. Command parsing beyond dispatch is out of scope (spec.md §1).
type Dispatcher interface {
	Dispatch(realmIndex int, from, command, args string)
}

// Manager owns every configured RealmSession and advances them each tick.
type Manager struct {
	Sessions   []*model.RealmSession
	Handshaker handshake.Handshaker
	Dispatcher Dispatcher

	log *slog.Logger
}

// NewManager wires up a Manager over already-constructed sessions.
func NewManager(sessions []*model.RealmSession, hs handshake.Handshaker, disp Dispatcher, log *slog.Logger) *Manager {
	return &Manager{Sessions: sessions, Handshaker: hs, Dispatcher: disp, log: log}
}

// Tick advances every session by one step: dials disconnected sessions
// whose backoff has elapsed, polls connected sockets, drains the outbound
// queue under flood-quota rules, and parses any complete inbound frames.
func (m *Manager) Tick(now time.Time) {
	for _, r := range m.Sessions {
		if r.ReadyToDial(now) {
			m.dial(r)
			continue
		}
		if r.Conn == nil {
			continue
		}

		if _, err := r.Conn.Poll(); err != nil {
			m.log.Warn("realm socket error", "host", r.Host, "err", err)
			m.disconnect(r, now)
			continue
		}
		if r.Conn.IsIdleTimedOut(now) {
			m.log.Warn("realm session idle timeout", "host", r.Host)
			m.disconnect(r, now)
			continue
		}

		m.drainInbound(r)
		m.drainOutbound(r, now)
		if err := r.Conn.FlushWrite(); err != nil {
			m.log.Warn("realm flush failed", "host", r.Host, "err", err)
			m.disconnect(r, now)
		}
	}
}

func (m *Manager) dial(r *model.RealmSession) {
	addr := fmt.Sprintf("%s:%d", r.Host, r.Port)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		m.log.Warn("realm dial failed", "addr", addr, "err", err)
		r.NoteDialFailure(time.Now())
		return
	}
	r.Conn = socket.NewTCPConn(conn, idleTimeout)
	r.Phase = model.RealmConnecting
	r.Conn.QueueWrite([]byte{wire.ProtocolSelector})
	r.Conn.QueueWrite(wire.Encode(wire.FamilyRealm, wire.SIDAuthInfo, nil))
	r.Phase = model.RealmAuthenticating
	m.log.Info("realm connecting", "addr", addr)
}

func (m *Manager) disconnect(r *model.RealmSession, now time.Time) {
	if r.Conn != nil {
		r.Conn.Close()
		r.Conn = nil
	}
	r.NoteDialFailure(now)
}

func (m *Manager) drainInbound(r *model.RealmSession) {
	for {
		buf := r.Conn.Buffered()
		if len(buf) < wire.HeaderSize || int(binary.LittleEndian.Uint16(buf[2:4])) > len(buf) {
			return // not enough bytes yet for a full frame
		}
		f, n, err := wire.Decode(buf)
		if err != nil {
			m.log.Warn("realm protocol error", "host", r.Host, "err", err)
			m.disconnect(r, time.Now())
			return
		}
		if n == 0 {
			return
		}
		r.Conn.Consume(n)
		m.handleFrame(r, f)
	}
}

func (m *Manager) handleFrame(r *model.RealmSession, f wire.Frame) {
	switch f.Opcode {
	case wire.SIDAuthCheck, wire.SIDAuthAccountLogon, wire.SIDAuthAccountLogonProof:
		m.advanceLogon(r, f)
	case wire.SIDEnterChat:
		r.Phase = model.RealmJoiningChannel
		r.Enqueue(model.PriorityHigh, wire.Encode(wire.FamilyRealm, wire.SIDJoinChannel, nil))
	case wire.SIDChatEvent:
		m.handleChatEvent(r, f.Payload)
	case wire.SIDPing:
		r.Enqueue(model.PriorityHigh, wire.Encode(wire.FamilyRealm, wire.SIDPing, f.Payload))
	}
}

func (m *Manager) advanceLogon(r *model.RealmSession, f wire.Frame) {
	resp, err := m.Handshaker.Challenge(handshake.ChallengeRequest{})
	if err != nil {
		m.log.Warn("realm handshake failed", "host", r.Host, "err", err)
		m.disconnect(r, time.Now())
		return
	}
	r.Phase = model.RealmLoggingOn
	r.Enqueue(model.PriorityHigh, wire.Encode(wire.FamilyRealm, wire.SIDAuthAccountLogon, resp.KeyHash))

	if f.Opcode == wire.SIDAuthAccountLogonProof {
		r.Phase = model.RealmConnected
		r.NoteConnected()
		r.Enqueue(model.PriorityHigh, wire.Encode(wire.FamilyRealm, wire.SIDEnterChat, nil))
	}
}

// sidChatEventHeaderSize is SID_CHATEVENT's fixed dword prefix: event ID,
// user flags, ping, IP, account number, registration authority (spec.md
// §4.2), followed by a null-terminated username and a null-terminated text.
const sidChatEventHeaderSize = 24

func (m *Manager) handleChatEvent(r *model.RealmSession, payload []byte) {
	if len(payload) < sidChatEventHeaderSize {
		return
	}
	ev := ChatEvent{ID: wire.ChatEventID(binary.LittleEndian.Uint32(payload[0:4]))}

	rest := payload[sidChatEventHeaderSize:]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		ev.User = string(bytes.TrimRight(rest, "\x00"))
	} else {
		ev.User = string(rest[:nul])
		ev.Text = string(bytes.TrimRight(rest[nul+1:], "\x00"))
	}

	switch ev.ID {
	case wire.ChatEventChannel:
		r.CurrentChannel = ev.Text
		r.Phase = model.RealmConnected
	case wire.ChatEventWhisper, wire.ChatEventTalk:
		m.handleChatText(r, ev)
	}
}

func (m *Manager) handleChatText(r *model.RealmSession, ev ChatEvent) {
	trimmed := strings.TrimSpace(ev.Text)
	lower := strings.ToLower(trimmed)
	if lower == "s" || lower == "sc" || lower == "spoofcheck" {
		// Lobby consumes this via the Dispatcher's spoof-check hook; the
		// realm layer only recognizes the phrase and forwards it.
		if m.Dispatcher != nil {
			m.Dispatcher.Dispatch(r.Index, ev.User, "spoofcheck", "")
		}
		return
	}
	if r.CommandPrefix != "" && strings.HasPrefix(trimmed, r.CommandPrefix) {
		body := strings.TrimPrefix(trimmed, r.CommandPrefix)
		cmd, args, _ := strings.Cut(body, " ")
		if m.Dispatcher != nil {
			m.Dispatcher.Dispatch(r.Index, ev.User, cmd, args)
		}
	}
}

// delayFor returns the required inter-packet delay for a non-flood-immune
// realm, based on the previous packet's size class (spec.md §4.2).
func delayFor(prevSize int) time.Duration {
	switch {
	case prevSize <= 0:
		return 0
	case prevSize < 100:
		return 1300 * time.Millisecond
	case prevSize < 200:
		return 3300 * time.Millisecond
	default:
		return 4300 * time.Millisecond
	}
}

const floodImmuneDelay = 150 * time.Millisecond

func (m *Manager) drainOutbound(r *model.RealmSession, now time.Time) {
	kept := r.Outbound[:0]
	var lastSent time.Time
	var lastSize int

	for _, msg := range r.Outbound {
		if now.Sub(msg.QueuedAt) > packetExpiry {
			continue // expired, dropped silently per spec.md §4.2
		}
		if msg.Priority == model.PriorityGameRefresh {
			// OutboundMessage carries no game generation, so a queued
			// game-refresh packet is never dropped as stale here.
		}
		if msg.Priority == model.PriorityChatBlocking && r.Phase != model.RealmConnected {
			kept = append(kept, msg)
			continue
		}
		if msg.Priority == model.PriorityDefault && len(r.Outbound) > maxNonPriorityQueue && !r.FloodImmune {
			continue
		}

		if msg.Priority != model.PriorityHigh {
			wait := delayFor(lastSize)
			if r.FloodImmune {
				wait = floodImmuneDelay
			}
			if !lastSent.IsZero() && now.Sub(lastSent) < wait {
				kept = append(kept, msg)
				continue
			}
		}

		r.Conn.QueueWrite(msg.Payload)
		lastSent = now
		lastSize = len(msg.Payload)
	}
	r.Outbound = kept

	if r.Phase == model.RealmConnected && r.DueForGameListQuery(now) {
		r.Enqueue(model.PriorityGameList, wire.Encode(wire.FamilyRealm, wire.SIDGetAdvListEx, nil))
		r.LastGameListQueryAt = now
	}
}
