package model

import "fmt"

// SlotStatus is the occupancy state of one slot.
type SlotStatus byte

const (
	SlotOpen SlotStatus = iota
	SlotClosed
	SlotOccupied
)

// RaceFlag is a bitset of selectable races plus the "selectable"/"fixed"
// modifiers (spec.md §3).
type RaceFlag byte

const (
	RaceHuman RaceFlag = 1 << iota
	RaceOrc
	RaceNightElf
	RaceUndead
	RaceRandom
	RaceSelectable
	RaceFixed
)

// ObserverTeam / ObserverColor are the sentinel team/color values marking a
// slot as an observer slot (spec.md §3: "team 0..11 or 12 = observer").
const (
	ObserverTeam  uint8 = 12
	ObserverColor uint8 = 12
)

// Handicap values a slot may hold (spec.md §3).
var ValidHandicaps = [...]uint8{50, 60, 70, 80, 90, 100}

// DownloadPlaceholder marks a slot with no meaningful download percent yet.
const DownloadPlaceholder uint8 = 0xFF

// Slot is one element of a game's slot table (spec.md §3).
type Slot struct {
	UID            uint8 // owning player's UID when Status == SlotOccupied
	DownloadPct    uint8 // 0..100, or DownloadPlaceholder
	Status         SlotStatus
	Computer       bool
	Team           uint8
	Color          uint8
	Race           RaceFlag
	AIDifficulty   uint8
	Handicap       uint8
}

// IsObserver reports whether this slot is an observer slot.
func (s Slot) IsObserver() bool {
	return s.Team == ObserverTeam || s.Color == ObserverColor
}

// SlotTemplate is the fixed-size, ordered sequence of slots for a map
// (length 2..24, spec.md §3).
type SlotTemplate []Slot

// Validate checks the two invariants from spec.md §3 P1:
//   - colors are unique among non-observer occupied/closed slots
//   - every non-observer slot has team < numTeams
func (t SlotTemplate) Validate(numTeams uint8) error {
	if len(t) < 2 || len(t) > 24 {
		return fmt.Errorf("model: slot template length %d out of range [2,24]", len(t))
	}

	seenColors := make(map[uint8]bool)
	for i, s := range t {
		if s.IsObserver() {
			continue
		}
		if s.Team >= numTeams {
			return fmt.Errorf("model: slot %d has team %d >= numTeams %d", i, s.Team, numTeams)
		}
		if s.Status == SlotOccupied || s.Status == SlotClosed {
			if seenColors[s.Color] {
				return fmt.Errorf("model: slot %d duplicates color %d", i, s.Color)
			}
			seenColors[s.Color] = true
		}
	}
	return nil
}

// FirstOpenSlot returns the index of the first open, non-observer slot with
// team < numTeams, used by Lobby.tryAccept for a player joiner (spec.md
// §4.5). ok is false when no such slot exists.
func (t SlotTemplate) FirstOpenSlot(numTeams uint8) (int, bool) {
	for i, s := range t {
		if s.Status == SlotOpen && !s.IsObserver() && s.Team < numTeams {
			return i, true
		}
	}
	return 0, false
}

// FirstOpenObserverSlot returns the index of the first open observer slot.
func (t SlotTemplate) FirstOpenObserverSlot() (int, bool) {
	for i, s := range t {
		if s.Status == SlotOpen && s.IsObserver() {
			return i, true
		}
	}
	return 0, false
}

// IndexOfUID returns the slot index occupied by uid, if any.
func (t SlotTemplate) IndexOfUID(uid uint8) (int, bool) {
	for i, s := range t {
		if s.Status == SlotOccupied && s.UID == uid {
			return i, true
		}
	}
	return 0, false
}

// NextFreeColor returns the lowest color 0..11 not already used by an
// occupied or closed non-observer slot.
func (t SlotTemplate) NextFreeColor() (uint8, bool) {
	used := make([]bool, 12)
	for _, s := range t {
		if s.IsObserver() {
			continue
		}
		if s.Status == SlotOccupied || s.Status == SlotClosed {
			if s.Color < 12 {
				used[s.Color] = true
			}
		}
	}
	for c := uint8(0); c < 12; c++ {
		if !used[c] {
			return c, true
		}
	}
	return 0, false
}
