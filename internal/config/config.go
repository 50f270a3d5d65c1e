// Package config loads the bot's typed YAML configuration.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// GlobalRealm holds defaults inherited by every RealmConfig entry whose
// field was left unset in the YAML file. This is the "global_realm" half of
// the dotted-key realm_N.X -> global_realm.X fallback.
type GlobalRealm struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	CommandPrefix    string `yaml:"command_prefix"`
	FloodImmune      bool   `yaml:"flood_immune"`
	MaxBackoff       int    `yaml:"max_backoff_seconds"`
	GameListInterval int    `yaml:"game_list_interval_seconds"`
}

// RealmConfig is one configured PvPGN-compatible chat realm.
type RealmConfig struct {
	Name             string `yaml:"name"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	CommandPrefix    string `yaml:"command_prefix"`
	FloodImmune      bool   `yaml:"flood_immune"`
	MaxBackoff       int    `yaml:"max_backoff_seconds"`
	GameListInterval int    `yaml:"game_list_interval_seconds"`

	// set marks which fields were present in the YAML document, so the
	// global_realm fallback only fills genuinely-absent keys.
	set map[string]bool `yaml:"-"`
}

// DownloadConfig governs the map-transfer state machine (spec.md §4.6).
type DownloadConfig struct {
	Enabled          bool  `yaml:"enabled"`
	MaxUploadSizeKB  int64 `yaml:"max_upload_size_kb"`
	MaxUploadSpeedKB int64 `yaml:"max_upload_speed_kb"`
	MaxParallelParts int   `yaml:"max_parallel_parts"`
}

// Bot is the top-level configuration for the hosting bot process.
type Bot struct {
	MapDir              string          `yaml:"map_dir"`
	CfgDir              string          `yaml:"cfg_dir"`
	DatabasePath        string          `yaml:"database_path"`
	LogLevel            string          `yaml:"log_level"`
	LANMode             bool            `yaml:"lan_mode"`
	NoLAN               bool            `yaml:"no_lan"`
	NoExit              bool            `yaml:"no_exit"`
	NoCache             bool            `yaml:"no_cache"`
	HostPortMin         int             `yaml:"host_port_min"`
	HostPortMax         int             `yaml:"host_port_max"`
	UDPPort             int             `yaml:"udp_port"`
	ForwarderAddress    string          `yaml:"forwarder_address"`
	UDPTunnelEnabled    bool            `yaml:"udp_tunnel_enabled"`
	Latency             int            `yaml:"latency_ms"`
	LagThreshold        int            `yaml:"lag_threshold_frames"`
	AutoStartQuorum     float64        `yaml:"auto_start_quorum"`
	ReadyMode           string         `yaml:"ready_mode"` // fast | expect-race | explicit
	CountdownInterrupts bool            `yaml:"countdown_interruptable"`
	StrictVersionCheck  bool            `yaml:"strict_version_check"`
	Download            DownloadConfig  `yaml:"download"`
	GlobalRealm         GlobalRealm     `yaml:"global_realm"`
	Realms              []RealmConfig  `yaml:"realms"`
}

// Default returns Bot configuration with sensible defaults.
func Default() Bot {
	return Bot{
		MapDir:              "maps",
		CfgDir:              "config",
		DatabasePath:        "aurago.db",
		LogLevel:            "info",
		HostPortMin:         6112,
		HostPortMax:         6112,
		UDPPort:             6112,
		UDPTunnelEnabled:    true,
		Latency:             100,
		LagThreshold:        10,
		AutoStartQuorum:     1.0,
		ReadyMode:           "fast",
		CountdownInterrupts: true,
		StrictVersionCheck:  false,
		Download: DownloadConfig{
			Enabled:          true,
			MaxUploadSizeKB:  8 * 1024,
			MaxUploadSpeedKB: 1024,
			MaxParallelParts: 5,
		},
		GlobalRealm: GlobalRealm{
			Port:             6112,
			CommandPrefix:    "!",
			MaxBackoff:       480,
			GameListInterval: 90,
		},
	}
}

// knownBotKeys lists every yaml tag understood by Bot, used to warn about
// unrecognized keys without rejecting the document (spec.md §6).
var knownBotKeys = collectYAMLTags(reflect.TypeOf(Bot{}))

func collectYAMLTags(t reflect.Type) map[string]bool {
	keys := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("yaml")
		name := strings.Split(tag, ",")[0]
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}

// Load reads Bot configuration from a YAML file. A missing file yields
// defaults (not an error); a malformed file is a fatal startup error.
func Load(path string) (Bot, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err == nil {
		for k := range raw {
			if !knownBotKeys[k] {
				fmt.Fprintf(os.Stderr, "warning: unknown config key %q\n", k)
			}
		}
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyGlobalRealmFallback(&cfg)

	if len(cfg.Realms) == 0 && !cfg.LANMode {
		return cfg, fmt.Errorf("config: no realms configured and lan_mode is false")
	}

	return cfg, nil
}

// applyGlobalRealmFallback fills zero-valued realm fields from GlobalRealm.
// This is a ONE-LEVEL fallback only: a realm's own zero value for a field
// is treated as "absent" and replaced, matching spec.md's described
// dotted-key inheritance (realm_N.X falls back to global_realm.X once, it
// does not chain further).
func applyGlobalRealmFallback(cfg *Bot) {
	g := cfg.GlobalRealm
	for i := range cfg.Realms {
		r := &cfg.Realms[i]
		if r.Host == "" {
			r.Host = g.Host
		}
		if r.Port == 0 {
			r.Port = g.Port
		}
		if r.CommandPrefix == "" {
			r.CommandPrefix = g.CommandPrefix
		}
		if !r.FloodImmune {
			r.FloodImmune = g.FloodImmune
		}
		if r.MaxBackoff == 0 {
			r.MaxBackoff = g.MaxBackoff
		}
		if r.GameListInterval == 0 {
			r.GameListInterval = g.GameListInterval
		}
	}
}
