package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Latency, cfg.Latency)
}

func TestLoad_RealmInheritsGlobalRealmDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	doc := `
global_realm:
  port: 6112
  command_prefix: "!"
  max_backoff_seconds: 120
realms:
  - name: useast
    host: useast.battle.net
    username: bot
    password: secret
  - name: local
    host: local.pvpgn.example
    port: 6113
    command_prefix: "."
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Realms, 2)

	useast := cfg.Realms[0]
	require.Equal(t, 6112, useast.Port, "realm with no port inherits global_realm.port")
	require.Equal(t, "!", useast.CommandPrefix)
	require.Equal(t, 120, useast.MaxBackoff)

	local := cfg.Realms[1]
	require.Equal(t, 6113, local.Port, "realm's own non-zero port is not overwritten")
	require.Equal(t, ".", local.CommandPrefix)
	require.Equal(t, 120, local.MaxBackoff, "local still inherits max_backoff since it did not set one")
}

func TestLoad_NoRealmsAndNotLANIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lan_mode: false\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_LANModeWithoutRealmsIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lan_mode: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.LANMode)
}
