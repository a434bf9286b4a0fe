package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/praxisgo/collector/internal/catalog"
	"github.com/praxisgo/collector/internal/config"
	"github.com/praxisgo/collector/internal/db"
	"github.com/praxisgo/collector/internal/game/account"
	"github.com/praxisgo/collector/internal/game/catch"
	"github.com/praxisgo/collector/internal/game/compete"
	"github.com/praxisgo/collector/internal/game/control"
	"github.com/praxisgo/collector/internal/game/cover"
	"github.com/praxisgo/collector/internal/game/pending"
	"github.com/praxisgo/collector/internal/game/spawn"
	"github.com/praxisgo/collector/internal/gameserver"
	"github.com/praxisgo/collector/internal/keylock"
	"github.com/praxisgo/collector/internal/places"
	"github.com/praxisgo/collector/internal/tiles"
)

const GameConfigPath = "config/gameserver.yaml"

// permanentSweepInterval is how often force-placed creatures are
// checked and re-placed after expiry.
const permanentSweepInterval = 15 * time.Minute

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := GameConfigPath
	if p := os.Getenv("COLLECTOR_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadGameServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.InternalSecret == "" {
		return fmt.Errorf("internal_secret must be set in %s", cfgPath)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	log := slog.Default()
	log.Info("collector server starting", "log_level", cfg.LogLevel)

	dsn := cfg.Database.DSN()
	if err := db.RunMigrations(ctx, dsn); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	store, err := db.NewPostgres(ctx, dsn)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	var mapSource places.Source = &places.Static{}
	if path := os.Getenv("COLLECTOR_MAP_EXTRACT"); path != "" {
		mapSource, err = places.LoadFile(path)
		if err != nil {
			return fmt.Errorf("loading map extract: %w", err)
		}
	} else {
		log.Warn("no map extract configured, spawning from area and place tables only")
	}

	cat := catalog.Default()
	locks := keylock.New()
	tileCache := tiles.Logging{Log: log}
	queue := &pending.Queue{Store: store, Locks: locks, Secret: cfg.InternalSecret, Log: log}

	populator := &spawn.Populator{
		Store:   store,
		Locks:   locks,
		Builder: &spawn.TableBuilder{Catalog: cat, Places: mapSource, Config: &cfg.Game},
		Config:  &cfg.Game,
		Log:     log,
	}
	ctl := &control.Engine{Store: store, Locks: locks, Catalog: cat, Config: &cfg.Game, Tiles: tileCache, Pending: queue, Log: log}
	cmp := &compete.Engine{Store: store, Locks: locks, Catalog: cat, Config: &cfg.Game, Tiles: tileCache, Pending: queue, Secret: cfg.InternalSecret, Log: log}
	accounts := &account.Engine{Store: store, Locks: locks, Catalog: cat, Config: &cfg.Game, Pending: queue, Control: ctl, Compete: cmp, Log: log}

	if err := cmp.Load(ctx); err != nil {
		return fmt.Errorf("loading compete entries: %w", err)
	}
	if err := account.PublishCatalog(ctx, store, cat); err != nil {
		return fmt.Errorf("publishing catalog: %w", err)
	}
	if err := populator.PlacePermanents(ctx, time.Now().UTC()); err != nil {
		return fmt.Errorf("placing permanents: %w", err)
	}

	srv := &gameserver.Server{
		Addr:     fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Accounts: accounts,
		Catch: &catch.Engine{
			Store: store, Locks: locks, Catalog: cat, Config: &cfg.Game,
			Populator: populator, Log: log,
		},
		Control: ctl,
		Compete: cmp,
		Cover:   &cover.Engine{Store: store, Locks: locks, Catalog: cat, Config: &cfg.Game, Log: log},
		Log:     log,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return sweepPermanents(ctx, populator, log) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// sweepPermanents keeps force-placed creatures alive. Their instances
// carry the normal TTL, so expired ones need a periodic re-place.
func sweepPermanents(ctx context.Context, p *spawn.Populator, log *slog.Logger) error {
	ticker := time.NewTicker(permanentSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.PlacePermanents(ctx, time.Now().UTC()); err != nil {
				log.Error("permanent sweep failed", "error", err)
			}
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
