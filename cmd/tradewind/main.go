package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/tradewind/server/internal/component"
	"github.com/tradewind/server/internal/config"
	coresys "github.com/tradewind/server/internal/core/system"
	"github.com/tradewind/server/internal/data"
	gonet "github.com/tradewind/server/internal/net"
	"github.com/tradewind/server/internal/net/packet"
	"github.com/tradewind/server/internal/persist"
	"github.com/tradewind/server/internal/replication"
	"github.com/tradewind/server/internal/scripting"
	"github.com/tradewind/server/internal/system"
	"github.com/tradewind/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name, mode string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            Tradewind  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        market town trade simulation       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mServer:\033[0m %s \033[90m(%s)\033[0m\n\n", name, mode)
}

func printSection(title string) {
	lineLen := 46 - utf8.RuneCountInString(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - utf8.RuneCountInString(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main logic ────────────────────────────────────────────────────

func run() error {
	cfgPath := "config/server.toml"
	if p := os.Getenv("TRADEWIND_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the TOML config file")
	mode := flag.String("mode", "", "override server.mode (host or peer)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *mode != "" {
		cfg.Server.Mode = *mode
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printBanner(cfg.Server.Name, cfg.Server.Mode)
	switch cfg.Server.Mode {
	case "host":
		return runHost(ctx, cfg, log)
	case "peer":
		return runPeer(ctx, cfg, log)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Server.Mode)
	}
}

func sessionOptions(cfg *config.Config) gonet.SessionOptions {
	return gonet.SessionOptions{
		InQueueSize:       cfg.Network.InQueueSize,
		OutQueueSize:      cfg.Network.OutQueueSize,
		MessagesPerSecond: cfg.Network.MessagesPerSecond,
		WriteTimeout:      cfg.Network.WriteTimeout,
	}
}

func runHost(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// 1. Catalogue and world
	printSection("Catalogue")
	commodities, err := data.LoadCommodities(cfg.World.CommoditiesCSV)
	if err != nil {
		return fmt.Errorf("load commodities: %w", err)
	}
	printStat("Commodities", commodities.Count())

	blueprints, err := data.LoadBlueprints(cfg.World.BlueprintsYAML, commodities)
	if err != nil {
		return fmt.Errorf("load blueprints: %w", err)
	}
	printStat("Blueprints", blueprints.Count())

	ws := world.NewState(world.Options{
		MapWidth:  cfg.World.MapWidth,
		MapHeight: cfg.World.MapHeight,
		Seed:      cfg.World.Seed,
	}, nil)
	if err := ws.LoadCatalog(commodities, blueprints); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	for _, name := range cfg.World.Families {
		ws.AddFamily(name, cfg.World.StartingBalance)
	}
	printStat("Families", len(ws.Families))

	owner := component.NoFamily
	if len(ws.Families) > 0 {
		owner = 0
	}
	gen := ws.Populate(world.GenConfig{
		Seed:      cfg.World.Seed,
		Markets:   cfg.World.InitialMarkets,
		Fields:    cfg.World.InitialFields,
		Merchants: cfg.World.InitialMerchants,
		Owner:     owner,
	})
	printStat("Markets", gen.Markets)
	printStat("Fields", gen.Fields)
	printStat("Merchants", gen.Merchants)
	fmt.Println()

	// 2. Network and replication
	codec, err := replication.NewCodec(cfg.Network.CompressThreshold)
	if err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	defer codec.Close()

	netServer, err := gonet.NewServer(gonet.ServerConfig{
		BindAddr: cfg.Network.ListenAddress(),
		WSAddr:   cfg.Network.WSAddress,
		Session:  sessionOptions(cfg),
	}, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}

	store := gonet.NewSessionStore()
	pktReg := packet.NewRegistry(log)
	host := replication.NewHost(ws, codec, store, replication.HostOptions{
		Nickname:      cfg.Server.Nickname,
		ReadyPeers:    cfg.Network.ReadyPeers,
		SnapshotEvery: cfg.Network.SnapshotEveryTicks,
	}, log)
	host.Register(pktReg)
	host.Subscribe(ws.Bus)

	// 3. Systems
	runner := coresys.NewRunner(log, cfg.Network.TickRate)
	runner.Register(system.NewInputSystem(netServer, pktReg, store, host, cfg.Network.MaxMessagesPerTick, log))
	runner.Register(system.NewEventSystem(ws.Bus))
	runner.Register(system.NewEconomySystem(ws, log))
	runner.Register(system.NewMerchantSystem(ws, log))
	runner.Register(system.NewOutputSystem(host, store))

	if cfg.Console.Enabled {
		console := scripting.NewConsole(ws, os.Stdout, log)
		defer console.Close()
		if err := console.LoadDir(cfg.Console.ScriptsDir); err != nil {
			return fmt.Errorf("console scripts: %w", err)
		}
		runner.Register(system.NewConsoleSystem(console, readLines(os.Stdin), log))
		printOK("Lua console on stdin")
	}

	var ledger *system.LedgerSystem
	if cfg.Ledger.Enabled {
		printSection("Ledger")
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		db, err := persist.NewDB(dbCtx, cfg.Ledger, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		version, err := persist.RunMigrations(dbCtx, db.Pool, log)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("Schema at version %d", version))

		journal := persist.NewJournal(persist.NewLedgerRepo(db), log)
		ledger = system.NewLedgerSystem(ws, journal, host.WorldID(), log, cfg.Ledger.FlushEveryTicks)
		runner.Register(ledger)
	}

	// 4. Run
	printSection("Ready")
	printReady(fmt.Sprintf("Listening on %s", netServer.Addr()))
	if a := netServer.WSAddr(); a != nil {
		printReady(fmt.Sprintf("WebSocket on %s%s", a, gonet.WSPath))
	}
	printReady(fmt.Sprintf("World %s (tick: %s)", host.WorldID(), cfg.Network.TickRate))
	fmt.Println()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		netServer.AcceptLoop()
		return nil
	})
	g.Go(netServer.ServeWS)
	g.Go(func() error {
		<-gctx.Done()
		netServer.Shutdown()
		return nil
	})
	g.Go(func() error {
		return gameLoop(gctx, runner, cfg.Network.TickRate, cfg.Network.FrameRate, log)
	})
	err = g.Wait()

	if ledger != nil {
		ledger.Flush()
	}
	log.Info("server stopped")
	return err
}

// gameLoop polls input every frame and runs a full tick whenever the clock
// says one is due. Every world access happens on this goroutine.
func gameLoop(ctx context.Context, runner *coresys.Runner, tick, frame time.Duration, log *zap.Logger) error {
	clock := coresys.NewTickClock(tick, time.Now())
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown requested", zap.Uint64("ticks", clock.Ticks()))
			return nil
		case now := <-ticker.C:
			if clock.Due(now) {
				runner.Tick(clock.Quantum())
				if behind := clock.Behind(now); behind > 4*clock.Quantum() {
					log.Warn("simulation falling behind", zap.Duration("behind", behind))
				}
			} else {
				runner.TickPhase(coresys.PhaseInput, 0)
			}
		}
	}
}

func runPeer(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	codec, err := replication.NewCodec(cfg.Network.CompressThreshold)
	if err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	defer codec.Close()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	sess, err := gonet.Dial(dialCtx, cfg.Network.HostAddress, sessionOptions(cfg), log)
	if err != nil {
		return err
	}

	mirror := replication.NewMirror(world.NewState(world.Options{
		MapWidth:  cfg.World.MapWidth,
		MapHeight: cfg.World.MapHeight,
	}, nil), log)
	peer := replication.NewPeer(sess, codec, mirror, log)
	defer peer.Close()
	peer.OnChat = func(c replication.Chat) {
		fmt.Printf("<%s> %s\n", c.From, c.Content)
	}
	if err := peer.Join(cfg.Server.Family, cfg.Server.Nickname); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	printReady(fmt.Sprintf("Connected to %s as %s", cfg.Network.HostAddress, cfg.Server.Nickname))

	lines := readLines(os.Stdin)
	ticker := time.NewTicker(cfg.Network.FrameRate)
	defer ticker.Stop()
	known := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line = strings.TrimSpace(line); line != "" {
				if err := peer.Say(line); err != nil {
					log.Warn("chat not sent", zap.Error(err))
				}
			}
		case <-ticker.C:
			_, err := peer.Poll()
			if n := mirror.Len(); n != known {
				known = n
				log.Info("mirror updated", zap.Int("entities", n), zap.Stringer("world", mirror.WorldID()))
			}
			if errors.Is(err, replication.ErrDisconnected) {
				return fmt.Errorf("host closed the connection")
			}
		}
	}
}

// readLines feeds r line by line into a channel, closed at EOF.
func readLines(r io.Reader) <-chan string {
	out := make(chan string, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
