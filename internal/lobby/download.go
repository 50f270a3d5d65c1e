package lobby

import (
	"time"

	"github.com/udisondev/aurago/internal/wire"
)

// mapPartSize is the maximum payload size of one MAPPART frame
// (spec.md §4.6).
const mapPartSize = 1442

// pingDiscardGrace is how long after downloadFinished pings are still
// discarded (spec.md §4.6).
const pingDiscardGrace = 8 * time.Second

type downloadState struct {
	lastPartAcked uint32
	lastPartSent  uint32
	finished      bool
	finishedAt    time.Time
}

// StartDownload begins or rejects a map transfer for uid, based on
// configured policy (spec.md §4.6).
func (l *Lobby) StartDownload(uid uint8) {
	size := l.Game.Map.Size
	if !l.Policy.DownloadsEnabled || int(size/1024) > l.Policy.MaxUploadSizeKB {
		if p, ok := l.Game.Players[uid]; ok && p.Conn != nil {
			p.Conn.QueueWrite(wire.Encode(wire.FamilyGame, wire.OpStartDownload, []byte{1}))
		}
		return
	}
	l.downloads[uid] = &downloadState{}
}

// HandleMapSizeUpdate advances a player's acked window as MAPSIZE
// follow-ups report progress (spec.md §4.6).
func (l *Lobby) HandleMapSizeUpdate(uid uint8, ackedBytes uint32) {
	ds, ok := l.downloads[uid]
	if !ok {
		return
	}
	ds.lastPartAcked = ackedBytes
	if ds.lastPartAcked >= l.Game.Map.Size {
		ds.finished = true
		ds.finishedAt = time.Now()
		if p, ok := l.Game.Players[uid]; ok {
			p.DownloadPct = 100
		}
	} else if p, ok := l.Game.Players[uid]; ok {
		p.DownloadPct = uint8(uint64(ds.lastPartAcked) * 100 / uint64(l.Game.Map.Size))
	}
}

// tickDownloads sends up to MaxParallelParts MAPPART frames per active
// download, bounded by the shared upload-speed token bucket
// (spec.md §4.6).
func (l *Lobby) tickDownloads(now time.Time) {
	budget := l.Policy.MaxUploadSpeedKB * 1024 / 20 // per-tick slice at a ~20 Hz tick rate

	for uid, ds := range l.downloads {
		if ds.finished {
			continue
		}
		p, ok := l.Game.Players[uid]
		if !ok || p.Conn == nil {
			delete(l.downloads, uid)
			continue
		}

		sent := 0
		for i := 0; i < l.Policy.MaxParallelParts && budget > 0; i++ {
			if ds.lastPartSent >= l.Game.Map.Size {
				break
			}
			end := ds.lastPartSent + mapPartSize
			if end > l.Game.Map.Size {
				end = l.Game.Map.Size
			}
			partLen := int(end - ds.lastPartSent)
			if partLen > budget {
				break
			}
			p.Conn.QueueWrite(wire.Encode(wire.FamilyGame, wire.OpMapPart, make([]byte, partLen)))
			ds.lastPartSent = end
			budget -= partLen
			sent += partLen
		}
		_ = sent
	}
}

// PingDuringDownloadDiscarded reports whether a pong from uid arrived
// during its download, or within the post-download grace window
// (spec.md §4.6).
func (l *Lobby) PingDuringDownloadDiscarded(uid uint8, now time.Time) bool {
	ds, ok := l.downloads[uid]
	if !ok {
		return false
	}
	if !ds.finished {
		return true
	}
	return now.Sub(ds.finishedAt) < pingDiscardGrace
}
