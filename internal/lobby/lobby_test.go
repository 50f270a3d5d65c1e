package lobby

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/udisondev/aurago/internal/model"
)

func testGame(t *testing.T) *model.Game {
	t.Helper()
	slots := model.SlotTemplate{
		{Status: model.SlotOpen, Team: 0, Color: 0},
		{Status: model.SlotOpen, Team: 1, Color: 1},
	}
	m := model.MapMetadata{Path: "maps/test.w3x", Size: 1 << 20, SlotTemplate: slots}
	return model.NewGame(model.NewHostCounter(42, 0), "test game", "Owner", -1, m)
}

func testPolicy() Policy {
	return Policy{
		AutoStartQuorum:     1.0,
		ReadyMode:           model.ReadyFast,
		CountdownInterrupts: true,
		LagThreshold:        10,
		DesyncPolicy:        model.DesyncNotify,
		GProxyBasicGrace:    90 * time.Second,
		GProxyExtendedGrace: 10 * time.Minute,
	}
}

func TestNonObserverOccupiedCount(t *testing.T) {
	g := testGame(t)
	g.Players[1] = &model.Player{UID: 1}
	g.Slots[0].Status = model.SlotOccupied
	g.Slots[0].UID = 1

	require.Equal(t, 1, g.NonObserverOccupiedCount())
}

func TestDetectGameOver_FiresWhenFewerThanTwoRemain(t *testing.T) {
	g := testGame(t)
	g.Phase = model.PhasePlaying
	l := New(g, testPolicy(), nil, slog.Default())

	l.detectGameOver()
	require.Equal(t, model.PhaseOver, g.Phase)
}

func TestHandlePause_BlocksSecondConcurrentPause(t *testing.T) {
	g := testGame(t)
	g.Players[1] = &model.Player{UID: 1, PauseCount: 3}
	g.Players[2] = &model.Player{UID: 2, PauseCount: 3}
	l := New(g, testPolicy(), nil, slog.Default())

	require.True(t, l.HandlePause(1))
	require.False(t, l.HandlePause(2))
	require.True(t, l.HandleResume(1))
	require.True(t, l.HandlePause(2))
}

func TestHandleDropReq_MajorityDropsLaggers(t *testing.T) {
	g := testGame(t)
	g.Players[1] = &model.Player{UID: 1}
	g.Players[2] = &model.Player{UID: 2}
	g.Players[3] = &model.Player{UID: 3}
	l := New(g, testPolicy(), nil, slog.Default())
	l.lagging[3] = true

	l.HandleDropReq(1)
	require.Contains(t, g.Players, 3)
	l.HandleDropReq(2)
	require.NotContains(t, g.Players, 3)
}

func TestEvaluateDesync_FiresOnceAfterGraceFrames(t *testing.T) {
	g := testGame(t)
	g.Players[1] = &model.Player{UID: 1}
	g.Players[2] = &model.Player{UID: 2}
	l := New(g, testPolicy(), nil, slog.Default())

	for i := uint32(1); i <= desyncGraceFrames; i++ {
		g.SyncCounter = i
		l.HandleKeepalive(1, 0xAAA)
		l.HandleKeepalive(2, 0xBBB)
	}
	require.True(t, l.desyncReported)
}
