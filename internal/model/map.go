// Package model holds the data types owned by the supervisor/lobby state
// machine: map metadata, slot tables, games, players, realm sessions, and
// pending connections (spec.md §3).
package model

// GameFlags bitmask fields, packed the way they travel inside GAMEINFO /
// realm advertisement stat strings (spec.md §3, §4.1).
type GameFlags uint32

const (
	FlagSpeedSlow GameFlags = 1 << iota
	FlagSpeedNormal
	FlagSpeedFast
	FlagVisibilityHideTerrain
	FlagVisibilityMapExplored
	FlagVisibilityAlwaysVisible
	FlagVisibilityDefault
	FlagObserversNone
	FlagObserversOnDefeat
	FlagObserversFull
	FlagObserversReferees
	FlagTeamsFixed
	FlagTeamsCustomForces
	FlagRandomHero
	FlagRandomRaces
)

// reconnectCapableWidth/Height is the sentinel width/height pair signalling
// a reconnection-capable map (spec.md §3).
const (
	ReconnectCapableWidth  uint16 = 0xFFFF
	ReconnectCapableHeight uint16 = 0xFFFF
)

// MapMetadata is immutable per hosted game. The three content fingerprints
// (CRC32, weak hash, SHA-1) are computed by the out-of-scope map parser
// (spec.md §1) and must match between host and joining client or the client
// silently refuses to proceed.
type MapMetadata struct {
	Path string // client-visible path
	Size uint32 // raw file size in bytes

	CRC32    uint32
	WeakHash [4]byte
	SHA1     [20]byte

	Width  uint16
	Height uint16

	SlotTemplate SlotTemplate
	Flags        GameFlags
	MinVersion   uint8
}

// IsReconnectCapable reports the sentinel width/height pair meaning the map
// supports GProxy-style reconnection (spec.md §3).
func (m MapMetadata) IsReconnectCapable() bool {
	return m.Width == ReconnectCapableWidth && m.Height == ReconnectCapableHeight
}

// FingerprintsMatch implements the host/client matching invariant from
// spec.md §3: all three content fingerprints must be identical.
func (m MapMetadata) FingerprintsMatch(crc32 uint32, weakHash [4]byte, sha1 [20]byte) bool {
	return m.CRC32 == crc32 && m.WeakHash == weakHash && m.SHA1 == sha1
}

// Parser is the out-of-scope map-parsing collaborator (spec.md §1):
// parseMap(path) -> MapMetadata. The core never parses archive members
// itself; it only consumes this interface.
type Parser interface {
	ParseMap(path string) (MapMetadata, error)
}
