package model

import "time"

// GamePhase is one of the five lobby/in-game phases (spec.md §4.5).
type GamePhase int

const (
	PhaseLobby GamePhase = iota
	PhaseCountdown
	PhaseLoading
	PhasePlaying
	PhaseOver
)

func (p GamePhase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseCountdown:
		return "countdown"
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhaseOver:
		return "over"
	default:
		return "unknown"
	}
}

// DisplayMode controls lobby visibility to realm game lists (spec.md §3).
type DisplayMode int

const (
	DisplayPublic DisplayMode = iota
	DisplayPrivate
	DisplayFull
)

// HostCounter packs a 32-bit game identity: the low 24 bits are unique
// across the bot's lifetime, the top 8 bits tag the originating realm
// (0 = LAN, 16..255 = realm N-15), per the GLOSSARY.
type HostCounter uint32

// NewHostCounter builds a counter from a sequence number and realm tag.
// seq is masked to 24 bits; callers are responsible for uniqueness.
func NewHostCounter(seq uint32, realmTag uint8) HostCounter {
	return HostCounter(uint32(realmTag)<<24 | (seq & 0x00FFFFFF))
}

// Seq returns the low 24 bits (the part that must be unique, spec.md §8 P2).
func (h HostCounter) Seq() uint32 { return uint32(h) & 0x00FFFFFF }

// RealmTag returns the top 8 bits: 0 means LAN, 16..255 means realm N-15.
func (h HostCounter) RealmTag() uint8 { return uint8(h >> 24) }

// RealmIndex returns the realm index N such that RealmTag() == N+15, or
// false if this host counter originated from LAN (tag 0).
func (h HostCounter) RealmIndex() (int, bool) {
	tag := h.RealmTag()
	if tag == 0 {
		return 0, false
	}
	return int(tag) - 15, true
}

// DesyncPolicy governs the response to a detected checksum mismatch
// (spec.md §4.5, §8 P8).
type DesyncPolicy int

const (
	DesyncNone DesyncPolicy = iota
	DesyncNotify
	DesyncDropBehind
)

// ReadyMode governs when a non-observer slot counts as "ready" to start a
// countdown (spec.md §4.5).
type ReadyMode int

const (
	ReadyFast ReadyMode = iota
	ReadyExpectRace
	ReadyExplicit
)

// Game is the session entity owned by the supervisor (spec.md §3).
type Game struct {
	HostCounter HostCounter

	Display DisplayMode
	Phase   GamePhase

	Name         string
	OwnerName    string
	OwnerRealm   int // index into configured realms, -1 = LAN/unknown

	Map MapMetadata

	Slots SlotTemplate

	Port uint16

	CreatedAt       time.Time
	CountdownStart  time.Time
	LoadStart       time.Time

	Players map[uint8]*Player // by UID

	SyncCounter  uint32
	LatencyMS    int // synthetic latency, default 100
	RefreshSecs  int

	DesyncPolicy DesyncPolicy
	ReadyMode    ReadyMode

	RefreshError bool // flagged when a realm's game-refresh fails while non-empty
}

// NewGame constructs a Game in PhaseLobby with an empty player map.
func NewGame(hc HostCounter, name, owner string, ownerRealm int, m MapMetadata) *Game {
	return &Game{
		HostCounter: hc,
		Display:     DisplayPublic,
		Phase:       PhaseLobby,
		Name:        name,
		OwnerName:   owner,
		OwnerRealm:  ownerRealm,
		Map:         m,
		Slots:       append(SlotTemplate{}, m.SlotTemplate...),
		CreatedAt:   time.Now(),
		Players:     make(map[uint8]*Player),
		LatencyMS:   100,
	}
}

// NumTeams returns the highest team index used by the slot template, plus
// one (teams are 0-indexed; spec.md §3 invariant "team < numTeams").
func (g *Game) NumTeams() uint8 {
	var maxTeam uint8
	for _, s := range g.Slots {
		if s.IsObserver() {
			continue
		}
		if s.Team > maxTeam {
			maxTeam = s.Team
		}
	}
	return maxTeam + 1
}

// VirtualHostUID is permanently reserved for the virtual host (spec.md §3
// invariant, §8 scenario 1: "UID 1 reserved for virtual host"). Real
// players are assigned UIDs starting at 2.
const VirtualHostUID uint8 = 1

// NextFreeUID returns the lowest UID in 2..maxUID not currently assigned to
// a live player (spec.md §3: "UIDs are not reused while their original
// owner is still referenced"). UID 1 is never returned; it is permanently
// reserved for the virtual host.
func (g *Game) NextFreeUID(maxUID uint8) (uint8, bool) {
	for uid := VirtualHostUID + 1; uid <= maxUID; uid++ {
		if _, taken := g.Players[uid]; !taken {
			return uid, true
		}
	}
	return 0, false
}

// NonObserverOccupiedCount returns the number of occupied, non-observer
// slots, used by game-over detection (spec.md §4.5: "fewer than 2
// non-observer slots remain occupied").
func (g *Game) NonObserverOccupiedCount() int {
	n := 0
	for _, s := range g.Slots {
		if s.Status == SlotOccupied && !s.IsObserver() {
			n++
		}
	}
	return n
}

// ValidateSlotConsistency checks spec.md §8 P1 against the current slot
// table and player map: colors unique among occupied non-observer slots,
// and every occupied slot's UID maps to exactly one player.
func (g *Game) ValidateSlotConsistency() error {
	if err := g.Slots.Validate(g.NumTeams()); err != nil {
		return err
	}
	for i, s := range g.Slots {
		if s.Status != SlotOccupied {
			continue
		}
		if _, ok := g.Players[s.UID]; !ok {
			return errSlotUIDNotFound(i, s.UID)
		}
	}
	return nil
}

func errSlotUIDNotFound(slotIdx int, uid uint8) error {
	return &slotConsistencyError{slotIdx: slotIdx, uid: uid}
}

type slotConsistencyError struct {
	slotIdx int
	uid     uint8
}

func (e *slotConsistencyError) Error() string {
	return "model: occupied slot references a UID with no live player"
}
