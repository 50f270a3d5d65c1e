package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aurago.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_SeedsSchemaNumber(t *testing.T) {
	s := openTestStore(t).(*sqliteStore)
	ctx := context.Background()

	value, ok, err := s.GetConfig(ctx, schemaNumberKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", value)
}

func TestBans_AddIsBannedRemove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.IsBanned(ctx, "Grubby", "useast")
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, s.AddBan(ctx, BanRecord{
		Name: "Grubby", Server: "useast", Moderator: "Admin", Reason: "flaming", BannedAt: time.Now(),
	}))

	rec, err = s.IsBanned(ctx, "GRUBBY", "useast")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "flaming", rec.Reason)

	require.NoError(t, s.RemoveBan(ctx, "grubby", "useast"))
	rec, err = s.IsBanned(ctx, "grubby", "useast")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestAliases_SetAndResolve(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.ResolveAlias(ctx, "dota")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetAlias(ctx, "dota", "maps/dota.w3x"))
	path, ok, err := s.ResolveAlias(ctx, "dota")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "maps/dota.w3x", path)

	require.NoError(t, s.SetAlias(ctx, "dota", "maps/dota-v2.w3x"))
	path, _, err = s.ResolveAlias(ctx, "dota")
	require.NoError(t, err)
	require.Equal(t, "maps/dota-v2.w3x", path)
}

func TestGeoIP_ImportAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ImportGeoIP(ctx, []GeoIPRange{
		{From: 100, To: 200, Country: "US"},
		{From: 201, To: 300, Country: "DE"},
	}))

	country, ok, err := s.LookupCountry(ctx, 150)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "US", country)

	_, ok, err = s.LookupCountry(ctx, 50)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestModerators_AddAndCheck(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.IsModerator(ctx, "Kas", "useast")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.AddModerator(ctx, ModeratorRecord{Name: "Kas", Server: "useast", AddedAt: time.Now()}))
	ok, err = s.IsModerator(ctx, "kas", "useast")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecordGame_AssignsIDWhenEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.RecordGame(ctx, GameHistoryRow{
		Name: "DotA 6.83d", MapPath: "maps/dota.w3x", Owner: "Host", Server: "useast",
		StartedAt: time.Now(), FinishedAt: time.Now(), Duration: 40 * time.Minute,
		Players: []string{"a", "b"},
	})
	require.NoError(t, err)
}

func TestConfig_SetAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetConfig(ctx, "bot.strict_version_check")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetConfig(ctx, "bot.strict_version_check", "true"))
	v, ok, err := s.GetConfig(ctx, "bot.strict_version_check")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "true", v)
}
