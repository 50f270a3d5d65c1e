// Package supervisor owns every realm, every game, and the current lobby,
// and runs the single-threaded cooperative tick loop described in
// spec.md §5: drain ready sockets, advance each subsystem, flush writes,
// sleep until the next scheduled event (at most 50ms).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/udisondev/aurago/internal/config"
	"github.com/udisondev/aurago/internal/discovery"
	"github.com/udisondev/aurago/internal/lobby"
	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/pregate"
	"github.com/udisondev/aurago/internal/realm"
	"github.com/udisondev/aurago/internal/socket"
	"github.com/udisondev/aurago/internal/store"
	"github.com/udisondev/aurago/internal/wire"
)

const (
	tickMax     = 50 * time.Millisecond
	idleSleep   = 200 * time.Millisecond
)

// Action is a one-shot operation queued by the CLI or config (spec.md §2,
// §6): host-map, mirror, or execute-command.
type Action struct {
	Kind  string // "host-map", "mirror", "execute-command"
	Arg   string
	Owner string // claimed game owner for "host-map"; "Host" if empty
}

// Supervisor is the top-level process object.
type Supervisor struct {
	cfg config.Bot
	log *slog.Logger

	Realms *realm.Manager
	Bus    *discovery.Bus
	Gate   *pregate.Gate
	Store  store.Store
	Parser model.Parser

	listener *socket.Listener

	games       map[model.HostCounter]*lobby.Lobby
	currentGame model.HostCounter
	hasCurrent  bool

	nextHostSeq uint32

	actions []Action

	exitFlag atomic.Bool
}

// New wires up a Supervisor from already-loaded config and collaborators.
func New(cfg config.Bot, log *slog.Logger, realms *realm.Manager, st store.Store) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		log:    log,
		Realms: realms,
		Store:  st,
		games:  make(map[model.HostCounter]*lobby.Lobby),
	}
	s.Gate = pregate.NewGate(s, s, cfg.UDPTunnelEnabled, log)
	return s
}

// RequestExit sets the atomic exit flag consulted on the next tick
// (spec.md §5: SIGINT is never cancellable mid-flight).
func (s *Supervisor) RequestExit() { s.exitFlag.Store(true) }

// ShouldExit reports whether an exit has been requested.
func (s *Supervisor) ShouldExit() bool { return s.exitFlag.Load() }

// EnqueueAction schedules a one-shot action for the next tick
// (spec.md §2: CLI/config-driven host-map, mirror, execute-command).
func (s *Supervisor) EnqueueAction(a Action) { s.actions = append(s.actions, a) }

// ListenHost opens the TCP listener used for hosted games.
func (s *Supervisor) ListenHost(addr string) error {
	ln, err := socket.Listen(addr)
	if err != nil {
		return fmt.Errorf("supervisor: listen %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// Run executes the tick loop until ShouldExit or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if s.ShouldExit() {
			return nil
		}

		start := time.Now()
		s.tick(start)

		elapsed := time.Since(start)
		sleep := tickMax - elapsed
		if !s.anyActive() {
			sleep = idleSleep
		}
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func (s *Supervisor) anyActive() bool {
	return len(s.games) > 0 || len(s.Realms.Sessions) > 0
}

func (s *Supervisor) tick(now time.Time) {
	s.drainActions(now)

	s.Realms.Tick(now)
	if s.Bus != nil {
		s.Bus.Tick()
	}
	s.acceptPending(now)
	s.Gate.Tick(now)

	for hc, g := range s.games {
		g.PollPlayers(now)
		g.Tick(now)
		if g.Game.Phase == model.PhaseOver && len(g.Game.Players) == 0 {
			s.recordGameHistory(g.Game, g.FinishedRoster(), now)
			s.destroyGame(hc)
		}
	}
}

// recordGameHistory persists a completed game's summary once its roster has
// fully emptied out (spec.md §5). A nil Store is a no-op, same as every
// other optional persistence path in this package.
func (s *Supervisor) recordGameHistory(g *model.Game, players []string, finishedAt time.Time) {
	if s.Store == nil {
		return
	}
	row := store.GameHistoryRow{
		Name:       g.Name,
		MapPath:    g.Map.Path,
		Owner:      g.OwnerName,
		Server:     s.serverName(g.OwnerRealm),
		StartedAt:  g.CreatedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(g.CreatedAt),
		Players:    players,
	}
	if err := s.Store.RecordGame(context.Background(), row); err != nil {
		s.log.Warn("recording game history failed", "name", g.Name, "err", err)
	}
}

// serverName maps a realm index (as stored on model.Game.OwnerRealm) back to
// its host string, or "LAN" for a negative index.
func (s *Supervisor) serverName(realmIndex int) string {
	if realmIndex < 0 || s.Realms == nil {
		return "LAN"
	}
	for _, r := range s.Realms.Sessions {
		if r.Index == realmIndex {
			return r.Host
		}
	}
	return "LAN"
}

func (s *Supervisor) acceptPending(now time.Time) {
	if s.listener == nil {
		return
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.log.Warn("accept error", "err", err)
			return
		}
		if conn == nil {
			return
		}
		s.Gate.Accept(socket.NewTCPConn(conn, 30*time.Second))
	}
}

func (s *Supervisor) drainActions(now time.Time) {
	pending := s.actions
	s.actions = nil
	for _, a := range pending {
		switch a.Kind {
		case "host-map":
			s.handleHostMap(a.Arg, a.Owner)
		case "mirror":
			s.log.Info("pending action: mirror", "arg", a.Arg)
		case "execute-command":
			s.log.Info("pending action: execute-command", "arg", a.Arg)
		}
	}
}

func (s *Supervisor) handleHostMap(mapArg, owner string) {
	if s.Parser == nil {
		s.log.Error("cannot host map: no map parser configured", "map", mapArg)
		return
	}
	mapArg = s.resolveMapAlias(mapArg)
	m, err := s.Parser.ParseMap(mapArg)
	if err != nil {
		s.log.Error("parsing map failed", "map", mapArg, "err", err)
		return
	}
	if s.hasCurrent {
		if cur, ok := s.games[s.currentGame]; ok && (cur.Game.Phase == model.PhaseLobby || cur.Game.Phase == model.PhaseCountdown) {
			s.log.Warn("a lobby is already current; refusing to host a second one", "map", mapArg)
			return
		}
	}
	if owner == "" {
		owner = "Host"
	}
	s.HostGame(mapArg, owner, -1, m, s.defaultPolicy(), s.storeAdapter())
	s.log.Info("hosted new lobby", "map", mapArg, "owner", owner)
}

// resolveMapAlias substitutes a configured short alias (spec.md §5) for the
// on-disk map path it names, so "host-map dota" can resolve to the full
// path an operator registered earlier. Falls through to the original
// argument on a miss, error, or when no Store is wired.
func (s *Supervisor) resolveMapAlias(mapArg string) string {
	if s.Store == nil {
		return mapArg
	}
	path, ok, err := s.Store.ResolveAlias(context.Background(), mapArg)
	if err != nil {
		s.log.Warn("alias lookup failed", "alias", mapArg, "err", err)
		return mapArg
	}
	if !ok {
		return mapArg
	}
	return path
}

// storeAdapter returns nil when no Store is wired (e.g. tests), so the
// lobby falls back to permitting everyone.
func (s *Supervisor) storeAdapter() lobby.Store {
	if s.Store == nil {
		return nil
	}
	return &storeAdapter{st: s.Store, log: s.log}
}

// storeAdapter narrows store.Store's ctx/error persistence API down to the
// lobby's synchronous bans/moderator lookups, logging and denying on error
// rather than blocking the tick loop on a failed query.
type storeAdapter struct {
	st  store.Store
	log *slog.Logger
}

func (a *storeAdapter) IsBanned(name, server string) (*store.BanRecord, bool) {
	rec, err := a.st.IsBanned(context.Background(), name, server)
	if err != nil {
		a.log.Warn("ban lookup failed", "name", name, "server", server, "err", err)
		return nil, false
	}
	return rec, rec != nil
}

func (a *storeAdapter) IsModerator(name, server string) bool {
	ok, err := a.st.IsModerator(context.Background(), name, server)
	if err != nil {
		a.log.Warn("moderator lookup failed", "name", name, "server", server, "err", err)
		return false
	}
	return ok
}

func (s *Supervisor) defaultPolicy() lobby.Policy {
	ready := model.ReadyFast
	switch s.cfg.ReadyMode {
	case "expect-race":
		ready = model.ReadyExpectRace
	case "explicit":
		ready = model.ReadyExplicit
	}
	return lobby.Policy{
		AutoStartQuorum:     s.cfg.AutoStartQuorum,
		ReadyMode:           ready,
		CountdownInterrupts: s.cfg.CountdownInterrupts,
		LagThreshold:        uint32(s.cfg.LagThreshold),
		DesyncPolicy:        model.DesyncNotify,
		StrictVersionCheck:  s.cfg.StrictVersionCheck,
		LiteralRTT:          false,
		MaxUploadSizeKB:     int(s.cfg.Download.MaxUploadSizeKB),
		MaxUploadSpeedKB:    int(s.cfg.Download.MaxUploadSpeedKB),
		MaxParallelParts:    s.cfg.Download.MaxParallelParts,
		DownloadsEnabled:    s.cfg.Download.Enabled,
		GProxyBasicGrace:    90 * time.Second,
		GProxyExtendedGrace: 10 * time.Minute,
	}
}

// NewHostCounter mints the next unique low-24-bit sequence, tagged with
// realmIndex (spec.md §3, §8 P2); realmIndex < 0 means LAN.
func (s *Supervisor) NewHostCounter(realmIndex int) model.HostCounter {
	s.nextHostSeq++
	tag := uint8(0)
	if realmIndex >= 0 {
		tag = uint8(realmIndex + 15)
	}
	return model.NewHostCounter(s.nextHostSeq, tag)
}

// HostGame creates a new lobby as the sole "current lobby"
// (spec.md §3 invariant: at most one lobby at a time).
func (s *Supervisor) HostGame(name, owner string, realmIndex int, m model.MapMetadata, policy lobby.Policy, bans lobby.Store) *lobby.Lobby {
	hc := s.NewHostCounter(realmIndex)
	g := model.NewGame(hc, name, owner, realmIndex, m)
	l := lobby.New(g, policy, bans, s.log)
	s.games[hc] = l
	s.currentGame = hc
	s.hasCurrent = true
	return l
}

func (s *Supervisor) destroyGame(hc model.HostCounter) {
	delete(s.games, hc)
	if s.hasCurrent && s.currentGame == hc {
		s.hasCurrent = false
	}
}

// TryAccept implements pregate.Lobby by delegating to the current lobby.
func (s *Supervisor) TryAccept(join wire.ReqJoin, conn *socket.TCPConn) error {
	if !s.hasCurrent {
		return fmt.Errorf("supervisor: no current lobby")
	}
	l, ok := s.games[s.currentGame]
	if !ok {
		return fmt.Errorf("supervisor: no current lobby")
	}
	return l.TryAccept(join, conn)
}

// CurrentHostCounterSeq implements pregate.Lobby.
func (s *Supervisor) CurrentHostCounterSeq() (uint32, bool) {
	if !s.hasCurrent {
		return 0, false
	}
	return s.currentGame.Seq(), true
}

// CurrentLobby implements discovery.LobbyView.
func (s *Supervisor) CurrentLobby() *model.Game {
	if !s.hasCurrent {
		return nil
	}
	l, ok := s.games[s.currentGame]
	if !ok {
		return nil
	}
	return l.CurrentLobby()
}

// GameInfoStatString implements discovery.LobbyView.
func (s *Supervisor) GameInfoStatString(g *model.Game) []byte {
	l, ok := s.games[g.HostCounter]
	if !ok {
		return nil
	}
	return l.GameInfoStatString(g)
}

// Reconnect implements pregate.Games: search every running game for a
// GProxy player with this UID and reconnect key (connected or not), attach
// the new connection, and
// replay its buffered frames (spec.md §4.4 case 2, §4.7, §8 P4).
func (s *Supervisor) Reconnect(uid uint8, key uint32, lastAcked uint32, conn *socket.TCPConn) bool {
	for _, l := range s.games {
		p, ok := l.Game.Players[uid]
		if ok && p.GProxy != model.GProxyNone && p.ReconnectKey == key {
			p.Conn = conn
			l.Reconnect(uid, lastAcked)
			return true
		}
	}
	return false
}
