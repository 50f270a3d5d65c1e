package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/aurago/internal/config"
	"github.com/udisondev/aurago/internal/discovery"
	"github.com/udisondev/aurago/internal/handshake"
	"github.com/udisondev/aurago/internal/model"
	"github.com/udisondev/aurago/internal/realm"
	"github.com/udisondev/aurago/internal/store"
	"github.com/udisondev/aurago/internal/supervisor"
	"golang.org/x/sync/errgroup"
)

// cliFlags mirrors the positional map argument plus the flag surface from
// spec.md §6.
type cliFlags struct {
	w3version    string
	w3path       string
	mapDir       string
	cfgDir       string
	observers    string
	visibility   string
	randomRaces  bool
	randomHeroes bool
	owner        string
	exec         string
	execAs       string
	execAuth     string
	mirror       string
	lanMode      bool
	noExit       bool
	noLAN        bool
	noCache      bool
}

func parseFlags(args []string) (cliFlags, string, error) {
	fs := flag.NewFlagSet("aurago", flag.ContinueOnError)
	var f cliFlags
	fs.StringVar(&f.w3version, "w3version", "", "claimed Warcraft III version")
	fs.StringVar(&f.w3path, "w3path", "", "path to a Warcraft III installation")
	fs.StringVar(&f.mapDir, "mapdir", "", "override the configured map directory")
	fs.StringVar(&f.cfgDir, "cfgdir", "", "override the configured config directory")
	fs.StringVar(&f.observers, "observers", "", "observer policy override")
	fs.StringVar(&f.visibility, "visibility", "", "visibility policy override")
	fs.BoolVar(&f.randomRaces, "random-races", false, "force random races")
	fs.BoolVar(&f.randomHeroes, "random-heroes", false, "force random heroes")
	fs.StringVar(&f.owner, "owner", "", "game owner name")
	fs.StringVar(&f.exec, "exec", "", "command to execute once the lobby is hosted")
	fs.StringVar(&f.execAs, "exec-as", "", "identity the --exec command runs as")
	fs.StringVar(&f.execAuth, "exec-auth", "", "auth level the --exec command runs with")
	fs.StringVar(&f.mirror, "mirror", "", "mirror an existing game instead of hosting a map")
	fs.BoolVar(&f.lanMode, "lan-mode", false, "run LAN-only, no realm connections")
	fs.BoolVar(&f.noExit, "no-exit", false, "keep running after the hosted game ends")
	fs.BoolVar(&f.noLAN, "no-lan", false, "disable the UDP discovery bus")
	fs.BoolVar(&f.noCache, "no-cache", false, "bypass map metadata cache files")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, "", err
	}
	var mapArg string
	if fs.NArg() > 0 {
		mapArg = fs.Arg(0)
	}
	return f, mapArg, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			slog.Info("shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	g.Go(func() error { return run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	flags, mapArg, err := parseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	cfgPath := "config.yaml"
	if flags.cfgDir != "" {
		cfgPath = flags.cfgDir + "/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flags.mapDir != "" {
		cfg.MapDir = flags.mapDir
	}
	if flags.lanMode {
		cfg.LANMode = true
	}
	if flags.noLAN {
		cfg.NoLAN = true
	}
	if flags.noExit {
		cfg.NoExit = true
	}
	if flags.noCache {
		cfg.NoCache = true
	}

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	slog.Info("aurago starting", "map", mapArg, "lan_mode", cfg.LANMode)

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	slog.Info("store opened", "path", cfg.DatabasePath)

	sessions := make([]*model.RealmSession, 0, len(cfg.Realms))
	for i, r := range cfg.Realms {
		sessions = append(sessions, model.NewRealmSession(i, r.Host, uint16(r.Port), r.Username, r.Password, r.CommandPrefix, r.FloodImmune, r.MaxBackoff, r.GameListInterval))
	}
	realmMgr := realm.NewManager(sessions, handshake.Unavailable{}, nil, slog.Default())

	sup := supervisor.New(cfg, slog.Default(), realmMgr, st)

	hostAddr := fmt.Sprintf(":%d", cfg.HostPortMin)
	if err := sup.ListenHost(hostAddr); err != nil {
		return fmt.Errorf("listening on %s: %w", hostAddr, err)
	}
	slog.Info("hosting socket bound", "addr", hostAddr)

	if !cfg.NoLAN {
		var forwarder *net.UDPAddr
		if cfg.ForwarderAddress != "" {
			forwarder, err = net.ResolveUDPAddr("udp", cfg.ForwarderAddress)
			if err != nil {
				return fmt.Errorf("resolving forwarder address: %w", err)
			}
		}
		bus, err := discovery.NewBus(fmt.Sprintf(":%d", cfg.UDPPort), forwarder, sup, slog.Default())
		if err != nil {
			return fmt.Errorf("binding discovery bus: %w", err)
		}
		sup.Bus = bus
		defer bus.Close()
	}

	if mapArg != "" {
		sup.EnqueueAction(supervisor.Action{Kind: "host-map", Arg: mapArg, Owner: flags.owner})
	}
	if flags.mirror != "" {
		sup.EnqueueAction(supervisor.Action{Kind: "mirror", Arg: flags.mirror})
	}
	if flags.exec != "" {
		sup.EnqueueAction(supervisor.Action{Kind: "execute-command", Arg: flags.exec})
	}

	return sup.Run(ctx)
}
