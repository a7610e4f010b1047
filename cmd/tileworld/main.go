// Package main provides the tileworld binary. "tileworld server" runs the
// authoritative simulation; "tileworld client" runs a headless client that
// reads w/a/s/d from stdin.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tileworld/internal/admin"
	"github.com/cory-johannsen/tileworld/internal/client"
	"github.com/cory-johannsen/tileworld/internal/config"
	"github.com/cory-johannsen/tileworld/internal/game/player"
	"github.com/cory-johannsen/tileworld/internal/game/tilemap"
	"github.com/cory-johannsen/tileworld/internal/gameserver"
	"github.com/cory-johannsen/tileworld/internal/observability"
	"github.com/cory-johannsen/tileworld/internal/scripting"
	"github.com/cory-johannsen/tileworld/internal/server"
	"github.com/cory-johannsen/tileworld/internal/transport"
	"github.com/cory-johannsen/tileworld/internal/transport/udp"
	"github.com/cory-johannsen/tileworld/internal/transport/ws"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stderr))
}

// run parses args and runs the selected mode until it stops. It returns
// the process exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) int {
	start := time.Now()

	fs := flag.NewFlagSet("tileworld", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "configs/dev.yaml", "path to configuration file; a missing file means defaults")
	name := fs.String("name", "", "player name in client mode (overrides client.name)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: tileworld [flags] <client|server>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	mode := fs.Arg(0)
	if mode != "client" && mode != "server" {
		fmt.Fprintf(stderr, "unknown mode %q\n", mode)
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "loading config: %v\n", err)
		return exitError
	}
	if *name != "" {
		cfg.Client.Name = *name
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "initializing logger: %v\n", err)
		return exitError
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting tileworld",
		zap.String("mode", mode),
		zap.String("addr", cfg.Network.Addr()),
		zap.String("transport", cfg.Network.Transport),
	)

	switch mode {
	case "server":
		err = runServer(ctx, cfg, logger)
	case "client":
		err = runClient(ctx, cfg, stdin, logger)
	}
	if err != nil {
		logger.Error("tileworld stopped with error", zap.String("mode", mode), zap.Error(err))
		return exitError
	}
	logger.Info("tileworld stopped", zap.Duration("uptime", time.Since(start)))
	return exitOK
}

// listener is a server transport that the lifecycle runs.
type listener interface {
	transport.Transport
	server.Service
	Ready() <-chan struct{}
}

func newListener(cfg config.NetworkConfig, logger *zap.Logger) listener {
	if cfg.Transport == config.TransportWebSocket {
		return ws.NewServer(ws.Config{
			Addr:        cfg.Addr(),
			IdleTimeout: cfg.IdleTimeout,
			SendQueue:   cfg.SendQueue,
			EventQueue:  cfg.EventQueue,
		}, logger)
	}
	return udp.NewServer(udp.Config{
		Addr:        cfg.Addr(),
		IdleTimeout: cfg.IdleTimeout,
		SendQueue:   cfg.SendQueue,
		EventQueue:  cfg.EventQueue,
	}, logger)
}

func runServer(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	mapStart := time.Now()
	m, err := tilemap.LoadMap(cfg.Game.MapPath, cfg.Game.TilesetPath)
	if err != nil {
		return fmt.Errorf("loading map: %w", err)
	}
	logger.Info("map loaded",
		zap.String("map", m.Name),
		zap.Int("width", m.Width),
		zap.Int("height", m.Height),
		zap.Duration("elapsed", time.Since(mapStart)),
	)
	room := tilemap.NewRoom(m, cfg.Game.Footprint)

	var collab gameserver.Collaborators
	if cfg.Game.ItemScript != "" {
		hooks, err := scripting.LoadHooks(cfg.Game.ItemScript, cfg.Game.ScriptInstructionLimit, logger)
		if err != nil {
			return fmt.Errorf("loading item scripts: %w", err)
		}
		defer hooks.Close()
		collab.Items = hooks
		collab.Combat = hooks
	}

	endpoint := newListener(cfg.Network, logger)
	loop := gameserver.NewLoop(gameserver.LoopConfig{
		Step:                   float32(cfg.Game.PlayerStep),
		RequireRemoveOwnership: cfg.Game.RequireRemoveOwnership,
	}, endpoint, room, collab, logger)

	ticker := gameserver.NewTickScheduler(cfg.Game.TickRate)
	ticker.RegisterTick("simulation", func() {
		stats := loop.Tick()
		if stats.Events > 0 || stats.Outbound > 0 {
			logger.Debug("tick",
				zap.Uint64("tick", stats.Tick),
				zap.Int("events", stats.Events),
				zap.Int("inbound", stats.Inbound),
				zap.Int("malformed", stats.Malformed),
				zap.Int("outbound", stats.Outbound),
				zap.Int("sends", stats.Sends),
			)
		}
	})

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("transport", endpoint)
	lifecycle.Add("simulation", ticker)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Admin.Enabled {
		adm := admin.NewServer(cfg.Admin.Addr(), logger)
		lifecycle.Add("admin", adm)
		go func() {
			select {
			case <-endpoint.Ready():
				adm.SetServing(true)
			case <-ctx.Done():
			}
		}()
	}

	return lifecycle.Run(ctx)
}

func runClient(ctx context.Context, cfg config.Config, stdin io.Reader, logger *zap.Logger) error {
	var (
		conn interface {
			transport.Transport
			server.Service
		}
		err error
	)
	switch cfg.Network.Transport {
	case config.TransportWebSocket:
		conn, err = ws.Dial("ws://"+cfg.Network.Addr()+ws.DefaultPath, logger)
	default:
		conn, err = udp.Dial(cfg.Network.Addr(), logger)
	}
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Network.Addr(), err)
	}

	// A hostname leaves serverAddr invalid; packs are then sent as Broadcast.
	serverAddr, _ := netip.ParseAddrPort(cfg.Network.Addr())

	input := client.NewLineInput(stdin)
	mirror := client.NewMirror(player.OutfitFor(player.Skin(cfg.Client.Skin)), logger)
	cl := client.New(client.Config{
		Name:         cfg.Client.Name,
		Server:       serverAddr,
		ConnectRetry: cfg.Client.ConnectRetry,
	}, conn, input, mirror, logger)

	ticker := gameserver.NewTickScheduler(cfg.Game.TickRate)
	ticker.RegisterTick("client", func() { cl.Tick() })

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("transport", conn)
	lifecycle.Add("client", ticker)
	lifecycle.Add("input", input)
	return lifecycle.Run(ctx)
}
